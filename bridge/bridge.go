// Package bridge implements the transport bridge between server-side call
// sites and a remote browser-hosted editor peer. Arbitrary goroutines issue
// calls against a session; the bridge mints a correlation id, registers the
// in-flight call, serializes a command onto the session's exclusively owned
// connection, and completes the call when the peer's response or error
// arrives, or fails it on deadline. The peer pushes events and heartbeats
// over the same duplex connection; a background sweep evicts sessions whose
// heartbeats have gone silent.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lcx/pixelbridge/config"
	"github.com/lcx/pixelbridge/log"
	"github.com/lcx/pixelbridge/metrics"
	"github.com/lcx/pixelbridge/wire"
)

// BridgeCfg configures the bridge core and its WebSocket transport.
type BridgeCfg struct {
	// Addr is the listen address of the WebSocket endpoint.
	Addr string `mapstructure:"addr"`

	// Path is the endpoint path prefix; the session id follows it, as in
	// /ws/editor/{session_id}.
	Path string `mapstructure:"path"`

	// ObserveAddr is the listen address of the observability surface.
	ObserveAddr string `mapstructure:"observeAddr"`

	// SendChannelSize bounds each connection's outbound queue.
	SendChannelSize int `mapstructure:"sendChannelSize"`

	// MaxMessageSize bounds a single inbound frame in bytes.
	MaxMessageSize int64 `mapstructure:"maxMessageSize"`

	// IdleTimeoutSec is the read deadline applied to each connection.
	IdleTimeoutSec int `mapstructure:"idleTimeoutSec"`

	// DefaultCallTimeoutMs applies to calls issued without an explicit
	// timeout.
	DefaultCallTimeoutMs int `mapstructure:"defaultCallTimeoutMs"`

	// SessionTimeoutSec is the heartbeat silence after which the sweep
	// evicts a session.
	SessionTimeoutSec int `mapstructure:"sessionTimeoutSec"`

	// SweepIntervalSec is the liveness sweep period.
	SweepIntervalSec int `mapstructure:"sweepIntervalSec"`

	// RecvRateLimit and TokenBurst configure the inbound frame limiter.
	// Both support hot reload.
	RecvRateLimit int `mapstructure:"recvRateLimit"`
	TokenBurst    int `mapstructure:"tokenBurst"`

	// BroadcastRateLimit paces broadcast fan-out in sends per second.
	BroadcastRateLimit int `mapstructure:"broadcastRateLimit"`
}

// GetName returns the configuration name for BridgeCfg.
func (c *BridgeCfg) GetName() string {
	return "bridge"
}

// Validate validates the BridgeCfg parameters.
func (c *BridgeCfg) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if c.SendChannelSize <= 0 {
		return fmt.Errorf("sendChannelSize must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("maxMessageSize must be positive")
	}
	if c.DefaultCallTimeoutMs <= 0 {
		return fmt.Errorf("defaultCallTimeoutMs must be positive")
	}
	if c.SessionTimeoutSec <= 0 {
		return fmt.Errorf("sessionTimeoutSec must be positive")
	}
	if c.SweepIntervalSec <= 0 {
		return fmt.Errorf("sweepIntervalSec must be positive")
	}
	if c.RecvRateLimit <= 0 {
		return fmt.Errorf("recvRateLimit must be positive")
	}
	if c.TokenBurst <= 0 {
		return fmt.Errorf("tokenBurst must be positive")
	}
	return nil
}

// DefaultCallTimeout returns the default per-call deadline.
func (c *BridgeCfg) DefaultCallTimeout() time.Duration {
	return time.Duration(c.DefaultCallTimeoutMs) * time.Millisecond
}

// SessionTimeout returns the heartbeat silence eviction threshold.
func (c *BridgeCfg) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSec) * time.Second
}

// SweepInterval returns the liveness sweep period.
func (c *BridgeCfg) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// IdleTimeout returns the per-connection read deadline.
func (c *BridgeCfg) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}

// DefaultBridgeCfg returns a configuration suitable for development.
func DefaultBridgeCfg() *BridgeCfg {
	return &BridgeCfg{
		Addr:                 ":8391",
		Path:                 "/ws/editor/",
		ObserveAddr:          ":8392",
		SendChannelSize:      64,
		MaxMessageSize:       1 << 20,
		IdleTimeoutSec:       75,
		DefaultCallTimeoutMs: 10000,
		SessionTimeoutSec:    60,
		SweepIntervalSec:     15,
		RecvRateLimit:        200,
		TokenBurst:           50,
		BroadcastRateLimit:   500,
	}
}

// SessionResolver lets the transport layer answer lookups for session ids
// absent from the registry. When the server process restarts while a peer
// keeps its connection alive through the transport, the resolver hands the
// still-connected handle back so the session is transparently
// re-registered instead of failing with a SessionError.
type SessionResolver func(sessionID string) Conn

// Bridge owns the session registry and the pending-call table, and exposes
// the calling conventions to arbitrary caller goroutines. One Bridge
// instance is fully self-contained; tests run several in one process.
type Bridge struct {
	cfg *BridgeCfg

	// mu guards the session registry and all session fields. It is held
	// only for lookups and pointer swaps, never across I/O or waits.
	mu       sync.RWMutex
	sessions map[string]*Session
	resolver SessionResolver

	pending *pendingTable
	stats   *CommandStats

	removedMu    sync.Mutex
	removedHooks []func(*Session)

	broadcastLimiter *FunnelLimiter

	sweepOnce sync.Once
	stopOnce  sync.Once
	sweepDone chan struct{}
}

// NewBridge creates a bridge with the given configuration. A nil cfg
// selects defaults.
func NewBridge(cfg *BridgeCfg) *Bridge {
	if cfg == nil {
		cfg = DefaultBridgeCfg()
	}
	b := &Bridge{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		pending:  newPendingTable(),
		stats:    NewCommandStats(),
	}
	if cfg.BroadcastRateLimit > 0 {
		b.broadcastLimiter = NewFunnelLimiter(cfg.BroadcastRateLimit)
	}
	return b
}

// NewBridgeWithConfigManager creates a bridge from the "bridge"
// configuration.
func NewBridgeWithConfigManager(configManager config.ConfigManager) (*Bridge, error) {
	if configManager == nil {
		return nil, errors.New("configManager cannot be nil")
	}
	cfg := &BridgeCfg{}
	if err := configManager.LoadConfig("bridge", cfg); err != nil {
		return nil, fmt.Errorf("failed to load bridge config: %w", err)
	}
	return NewBridge(cfg), nil
}

// Cfg returns the bridge configuration.
func (b *Bridge) Cfg() *BridgeCfg {
	return b.cfg
}

// Start launches the background liveness sweep. Idempotent.
func (b *Bridge) Start() {
	b.sweepOnce.Do(func() {
		b.sweepDone = make(chan struct{})
		go b.serveSweep()
	})
}

// Stop terminates the liveness sweep. Sessions and pending calls are left
// as they are; in-flight calls run to their own deadlines. Safe to call
// concurrently and more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.sweepDone != nil {
			close(b.sweepDone)
		}
	})
}

// SetSessionResolver installs the transport's lookup fallback.
func (b *Bridge) SetSessionResolver(r SessionResolver) {
	b.mu.Lock()
	b.resolver = r
	b.mu.Unlock()
}

// OnSessionRemoved registers a hook invoked whenever a session leaves the
// registry, by explicit removal or liveness eviction.
func (b *Bridge) OnSessionRemoved(hook func(*Session)) {
	b.removedMu.Lock()
	b.removedHooks = append(b.removedHooks, hook)
	b.removedMu.Unlock()
}

// GetOrCreateSession returns the session for id, creating an unbound entry
// when absent. Collaborators use this to install event hooks before the
// peer's first connect.
func (b *Bridge) GetOrCreateSession(id string) *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[id]; ok {
		return s
	}
	s := newSession(b, id)
	b.sessions[id] = s
	return s
}

// Session returns the registered session for id. When the registry has no
// entry but the transport still holds a connected peer under that id, the
// session is transparently re-registered around the live handle.
func (b *Bridge) Session(id string) (*Session, bool) {
	b.mu.RLock()
	s, ok := b.sessions[id]
	resolver := b.resolver
	b.mu.RUnlock()
	if ok {
		return s, true
	}

	if resolver != nil {
		if conn := resolver(id); conn != nil {
			log.Info().Str("session", id).Msg("re-registering session held by transport")
			return b.Bind(id, conn), true
		}
	}
	return nil, false
}

// Sessions returns a snapshot of all registered sessions.
func (b *Bridge) Sessions() []*Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		out = append(out, s)
	}
	return out
}

// IsConnected reports whether the session exists and has a bound
// connection.
func (b *Bridge) IsConnected(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessions[id]
	return ok && s.conn != nil
}

// RemoveSession removes the session from the registry and fires the
// removed hooks. Pending calls tied to the session are deliberately left
// running; each fails through its own deadline. Returns false when the id
// was not registered.
func (b *Bridge) RemoveSession(id string) bool {
	b.mu.Lock()
	s, ok := b.sessions[id]
	if ok {
		delete(b.sessions, id)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}

	b.fireRemoved(s)
	metrics.UpdateGaugeWithGroup("bridge", "sessions", metrics.Value(b.sessionCount()))
	return true
}

func (b *Bridge) fireRemoved(s *Session) {
	b.removedMu.Lock()
	hooks := make([]func(*Session), len(b.removedHooks))
	copy(hooks, b.removedHooks)
	b.removedMu.Unlock()
	for _, h := range hooks {
		h(s)
	}
}

func (b *Bridge) sessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Bind attaches a connection to the session for id, creating the session
// when absent. Any previous binding is replaced; the old handle is
// abandoned, not closed. Liveness stamps start fresh for the new
// connection.
func (b *Bridge) Bind(id string, conn Conn) *Session {
	b.mu.Lock()
	s, ok := b.sessions[id]
	if !ok {
		s = newSession(b, id)
		b.sessions[id] = s
	}
	now := time.Now()
	s.conn = conn
	s.connectedAt = now
	s.lastHeartbeat = now
	s.lastActivity = now
	b.mu.Unlock()

	metrics.IncrCounterWithGroup("bridge", "connection_bind_total", 1)
	metrics.UpdateGaugeWithGroup("bridge", "sessions", metrics.Value(b.sessionCount()))
	log.Info().Str("session", id).Str("remote", conn.RemoteAddr()).Bool("new", !ok).Msg("connection bound")
	return s
}

// Unbind detaches conn from the session if it is still the bound handle,
// leaving the session registered, and fires the disconnect hook. A stale
// unbind from a connection that has already been replaced is ignored so a
// slow read-loop exit cannot unbind a fresh reconnect.
func (b *Bridge) Unbind(id string, conn Conn) {
	b.mu.Lock()
	s, ok := b.sessions[id]
	if !ok || s.conn != conn {
		b.mu.Unlock()
		return
	}
	s.conn = nil
	hook := s.onDisconnect
	b.mu.Unlock()

	metrics.IncrCounterWithGroup("bridge", "connection_unbind_total", 1)
	log.Info().Str("session", id).Msg("connection unbound")
	if hook != nil {
		hook()
	}
}

// prepare resolves the target session, checks it is bound and encodes the
// params. Shared by every calling convention.
func (b *Bridge) prepare(sessionID, method string, params any) (*Session, json.RawMessage, error) {
	s, ok := b.Session(sessionID)
	if !ok {
		return nil, nil, &SessionError{SessionID: sessionID, Reason: "unknown session"}
	}
	if s.currentConn() == nil {
		return nil, nil, &SessionError{SessionID: sessionID, Reason: "not connected"}
	}

	raw, err := encodeParams(params)
	if err != nil {
		return nil, nil, fmt.Errorf("encode params for %s: %w", method, err)
	}
	return s, raw, nil
}

func encodeParams(params any) (json.RawMessage, error) {
	switch v := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(params)
	}
}

// send hands the command to the session's connection. The connection's
// writer goroutine performs the actual socket write, preserving the
// single-writer discipline; callers never touch the socket.
func (b *Bridge) send(s *Session, m *wire.Message) error {
	conn := s.currentConn()
	if conn == nil {
		return &SessionError{SessionID: s.ID, Reason: "not connected"}
	}
	return conn.Send(m)
}

// Call invokes method on the session's remote peer and blocks the calling
// goroutine until the peer answers or the timeout elapses. Safe from any
// goroutine. A non-positive timeout selects the configured default.
//
// Failure modes: SessionError when the session is unknown or unbound
// (raised before anything is sent), TimeoutError when no answer arrives in
// time, ProtocolError when the peer answers with an error message.
func (b *Bridge) Call(sessionID, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	return b.CallContext(context.Background(), sessionID, method, params, timeout)
}

// CallContext is the async-friendly form of Call: it suspends only the
// calling goroutine and additionally observes ctx cancellation. Both forms
// share one pending-call table and one completion primitive, so in-flight
// calls have a single source of truth regardless of caller style.
func (b *Bridge) CallContext(ctx context.Context, sessionID, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = b.cfg.DefaultCallTimeout()
	}

	s, raw, err := b.prepare(sessionID, method, params)
	if err != nil {
		return nil, err
	}

	p := b.pending.add(sessionID, method, timeout)
	// The entry must leave the table on every path, including a panic in
	// the waiter, so a late answer finds nothing and is dropped.
	defer b.pending.remove(p.id)

	if err := b.send(s, wire.NewCommand(p.id, method, raw)); err != nil {
		return nil, err
	}
	metrics.IncrCounterWithDimGroup("bridge", "calls_issued_total", 1,
		metrics.Dimension{"method": method})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		if p.err != nil {
			return nil, p.err
		}
		return p.result, nil
	case <-timer.C:
		metrics.IncrCounterWithDimGroup("bridge", "calls_timeout_total", 1,
			metrics.Dimension{"method": method})
		return nil, &TimeoutError{SessionID: sessionID, Method: method, Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AsyncCall issues the call on a fresh goroutine and delivers the outcome
// to cb. It shares the pending-call table with the blocking forms.
func (b *Bridge) AsyncCall(sessionID, method string, params any, timeout time.Duration, cb func(json.RawMessage, error)) {
	go func() {
		result, err := b.Call(sessionID, method, params, timeout)
		if cb != nil {
			cb(result, err)
		}
	}()
}

// Fire sends a command without registering a pending call and returns
// immediately. Any eventual answer the peer sends for it is orphaned and
// silently dropped. Fails with SessionError when the session is not
// connected.
func (b *Bridge) Fire(sessionID, method string, params any) error {
	s, raw, err := b.prepare(sessionID, method, params)
	if err != nil {
		return err
	}
	if err := b.send(s, wire.NewCommand(uuid.NewString(), method, raw)); err != nil {
		return err
	}
	metrics.IncrCounterWithDimGroup("bridge", "fires_total", 1,
		metrics.Dimension{"method": method})
	return nil
}

// Broadcast fires method at every currently connected session, best
// effort. Per-session failures are swallowed so one dead peer cannot block
// the others. Returns the number of sessions the command was handed to.
func (b *Bridge) Broadcast(method string, params any) int {
	raw, err := encodeParams(params)
	if err != nil {
		log.Error().Str("method", method).Err(err).Msg("broadcast params encode failed")
		return 0
	}

	sent := 0
	for _, s := range b.Sessions() {
		conn := s.currentConn()
		if conn == nil {
			continue
		}
		if b.broadcastLimiter != nil {
			b.broadcastLimiter.Take()
		}
		if err := conn.Send(wire.NewCommand(uuid.NewString(), method, raw)); err != nil {
			log.Warn().Str("session", s.ID).Str("method", method).Err(err).Msg("broadcast send failed")
			continue
		}
		sent++
	}
	metrics.IncrCounterWithDimGroup("bridge", "broadcasts_total", 1,
		metrics.Dimension{"method": method})
	return sent
}

// Stats returns a snapshot of the per-method call statistics.
func (b *Bridge) Stats() map[string]MethodStats {
	return b.stats.Snapshot()
}

// ResetStats clears the per-method call statistics.
func (b *Bridge) ResetStats() {
	b.stats.Reset()
}

// PendingCalls returns the number of in-flight calls.
func (b *Bridge) PendingCalls() int {
	return b.pending.size()
}
