package bridge

import (
	"encoding/json"
	"time"

	"github.com/lcx/pixelbridge/wire"
)

// Conn is the transport handle a session owns while connected. Send
// enqueues one outbound message for the connection's single writer;
// implementations must never block the caller indefinitely.
type Conn interface {
	Send(m *wire.Message) error
	Close() error
	RemoteAddr() string
}

// EventHandler receives asynchronous pushes from the peer.
type EventHandler func(event string, data json.RawMessage)

// Session is the logical identity of one remote editor peer (one browser
// tab), independent of any single physical connection. The id is minted
// and persisted by the peer, so a reconnect under the same id is the same
// session. At most one connection is bound at any instant; binding a new
// one replaces the old handle, which is abandoned rather than closed.
//
// A session with no bound connection still exists in the registry until it
// is explicitly removed or evicted by the liveness sweep.
type Session struct {
	// ID is the opaque peer-supplied session identifier.
	ID string

	bridge *Bridge

	// Guarded by the owning bridge's registry lock; sessions are never
	// mutated outside it.
	conn          Conn
	connectedAt   time.Time
	lastHeartbeat time.Time
	lastActivity  time.Time

	onEvent      EventHandler
	onDisconnect func()

	metadata map[string]any
}

func newSession(b *Bridge, id string) *Session {
	now := time.Now()
	return &Session{
		ID:     id,
		bridge: b,
		// A fresh unbound session starts its liveness clock at
		// creation so the sweep does not evict it immediately.
		lastHeartbeat: now,
		lastActivity:  now,
		metadata:      make(map[string]any),
	}
}

// IsConnected reports whether a live connection is currently bound.
func (s *Session) IsConnected() bool {
	s.bridge.mu.RLock()
	defer s.bridge.mu.RUnlock()
	return s.conn != nil
}

// ConnectedAt returns the bind time of the current connection. Zero when
// the session has never been bound.
func (s *Session) ConnectedAt() time.Time {
	s.bridge.mu.RLock()
	defer s.bridge.mu.RUnlock()
	return s.connectedAt
}

// LastHeartbeat returns the time of the most recent heartbeat from the
// peer.
func (s *Session) LastHeartbeat() time.Time {
	s.bridge.mu.RLock()
	defer s.bridge.mu.RUnlock()
	return s.lastHeartbeat
}

// RemoteAddr returns the remote address of the bound connection, or the
// empty string when unbound.
func (s *Session) RemoteAddr() string {
	s.bridge.mu.RLock()
	defer s.bridge.mu.RUnlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr()
}

// SetOnEvent installs the handler invoked by the receive loop for every
// event push from the peer. The session keeps only the reference; the
// handler runs on the receive goroutine, so it must not block.
func (s *Session) SetOnEvent(h EventHandler) {
	s.bridge.mu.Lock()
	s.onEvent = h
	s.bridge.mu.Unlock()
}

// SetOnDisconnect installs the hook invoked when the bound connection is
// lost. The session itself stays registered.
func (s *Session) SetOnDisconnect(h func()) {
	s.bridge.mu.Lock()
	s.onDisconnect = h
	s.bridge.mu.Unlock()
}

// SetMetadata stores an opaque key/value pair for collaborators layered on
// top of the bridge. The bridge itself never reads metadata.
func (s *Session) SetMetadata(key string, value any) {
	s.bridge.mu.Lock()
	s.metadata[key] = value
	s.bridge.mu.Unlock()
}

// GetMetadata returns the value stored under key.
func (s *Session) GetMetadata(key string) (any, bool) {
	s.bridge.mu.RLock()
	defer s.bridge.mu.RUnlock()
	v, ok := s.metadata[key]
	return v, ok
}

// currentConn returns the bound connection handle, or nil.
func (s *Session) currentConn() Conn {
	s.bridge.mu.RLock()
	defer s.bridge.mu.RUnlock()
	return s.conn
}

// eventHandler returns the installed event handler, or nil.
func (s *Session) eventHandler() EventHandler {
	s.bridge.mu.RLock()
	defer s.bridge.mu.RUnlock()
	return s.onEvent
}
