package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lcx/pixelbridge/config"
	"github.com/lcx/pixelbridge/log"
	"github.com/lcx/pixelbridge/metrics"
	"github.com/lcx/pixelbridge/wire"
)

// WSTransport serves the WebSocket endpoint and owns all socket I/O. Every
// accepted connection gets a dedicated writer goroutine consuming a
// bounded send channel, so there is at most one writer per socket, and a
// receive loop feeding the bridge's dispatch. Caller goroutines never
// touch a socket; they enqueue through the session's Conn handle.
type WSTransport struct {
	cfg     *BridgeCfg
	bridge  *Bridge
	limiter *RecvLimiter

	upgrader websocket.Upgrader
	server   *http.Server

	// connBySession lets the bridge re-register a session id it has
	// forgotten while the peer's connection stayed up.
	mu            sync.RWMutex
	connBySession map[string]*wsConn
}

// NewWSTransport creates the transport bound to the given bridge. The
// transport registers itself as the bridge's session resolver.
func NewWSTransport(cfg *BridgeCfg, b *Bridge) *WSTransport {
	t := &WSTransport{
		cfg:     cfg,
		bridge:  b,
		limiter: NewRecvLimiter(cfg.RecvRateLimit, cfg.TokenBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The editor frontend is served from another origin in
			// development; access control happens at the session layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		connBySession: make(map[string]*wsConn),
	}
	b.SetSessionResolver(t.resolveSession)
	return t
}

// NewWSTransportWithConfigManager creates a transport from the "bridge"
// configuration and registers it for hot reload of the limiter settings.
func NewWSTransportWithConfigManager(configManager config.ConfigManager, b *Bridge) (*WSTransport, error) {
	if configManager == nil {
		return nil, errors.New("configManager cannot be nil")
	}
	cfg := &BridgeCfg{}
	if err := configManager.LoadConfig("bridge", cfg); err != nil {
		return nil, fmt.Errorf("failed to load bridge config: %w", err)
	}
	t := NewWSTransport(cfg, b)
	configManager.AddChangeListener(t)
	return t, nil
}

// OnConfigChanged implements config.ConfigChangeListener. Only the limiter
// settings apply without a restart; the rest requires a new listener.
func (t *WSTransport) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "bridge" {
		return nil
	}
	newCfg, ok := newConfig.(*BridgeCfg)
	if !ok {
		return fmt.Errorf("invalid configuration type for WSTransport")
	}
	t.limiter.Reload(newCfg.RecvRateLimit, newCfg.TokenBurst)
	log.Info().Int("recvRateLimit", newCfg.RecvRateLimit).Int("tokenBurst", newCfg.TokenBurst).
		Msg("transport rate limits updated")
	return nil
}

// GetConfigName implements config.ConfigChangeListener.
func (t *WSTransport) GetConfigName() string {
	return "bridge"
}

// Handler returns the HTTP handler that upgrades connections under the
// configured path. Exposed so tests and embedding servers can mount it.
func (t *WSTransport) Handler() http.Handler {
	return http.HandlerFunc(t.handleWS)
}

// Start begins listening on the configured address. Non-blocking; serve
// errors other than a clean shutdown are logged.
func (t *WSTransport) Start() error {
	mux := http.NewServeMux()
	mux.Handle(t.cfg.Path, t.Handler())
	t.server = &http.Server{Addr: t.cfg.Addr, Handler: mux}

	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("addr", t.cfg.Addr).Err(err).Msg("transport serve failed")
		}
	}()
	log.Info().Str("addr", t.cfg.Addr).Str("path", t.cfg.Path).Msg("transport listening")
	return nil
}

// Stop shuts the listener down and closes every connection.
func (t *WSTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	conns := make([]*wsConn, 0, len(t.connBySession))
	for _, c := range t.connBySession {
		conns = append(conns, c)
	}
	t.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}

	if t.server != nil {
		return t.server.Shutdown(ctx)
	}
	return nil
}

// resolveSession implements the bridge's SessionResolver over the
// transport's own connection index.
func (t *WSTransport) resolveSession(sessionID string) Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if c, ok := t.connBySession[sessionID]; ok {
		return c
	}
	return nil
}

func (t *WSTransport) sessionIDFromPath(path string) (string, bool) {
	id := strings.TrimPrefix(path, t.cfg.Path)
	if id == "" || id == path || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func (t *WSTransport) addConn(id string, c *wsConn) {
	t.mu.Lock()
	t.connBySession[id] = c
	t.mu.Unlock()
}

func (t *WSTransport) removeConn(id string, c *wsConn) {
	t.mu.Lock()
	if cur, ok := t.connBySession[id]; ok && cur == c {
		delete(t.connBySession, id)
	}
	t.mu.Unlock()
}

func (t *WSTransport) connCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.connBySession)
}

// handleWS upgrades one peer connection and runs its receive loop until
// the peer goes away. One invocation owns exactly one physical connection.
func (t *WSTransport) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := t.sessionIDFromPath(r.URL.Path)
	if !ok {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	sock, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.IncrCounterWithDimGroup("transport", "upgrade_error_total", 1,
			metrics.Dimension{"error_type": "upgrade"})
		log.Warn().Str("session", sessionID).Err(err).Msg("upgrade failed")
		return
	}

	c := newWSConn(sock, t.cfg.SendChannelSize)
	t.addConn(sessionID, c)
	t.bridge.Bind(sessionID, c)

	metrics.IncrCounterWithGroup("transport", "connection_open_total", 1)
	metrics.UpdateGaugeWithGroup("transport", "current_connections", metrics.Value(t.connCount()))

	go c.serveSend()

	// Clock sync greeting so the peer can compute its offset.
	if err := c.Send(wire.NewSync(time.Now().UnixMilli())); err != nil {
		log.Warn().Str("session", sessionID).Err(err).Msg("sync greeting not sent")
	}

	t.serveRecv(sessionID, c)

	c.close()
	t.removeConn(sessionID, c)
	t.bridge.Unbind(sessionID, c)

	metrics.IncrCounterWithGroup("transport", "connection_close_total", 1)
	metrics.UpdateGaugeWithGroup("transport", "current_connections", metrics.Value(t.connCount()))
}

// serveRecv is the receive loop: read one frame, decode, dispatch, repeat.
// A decode failure drops the frame and keeps the loop; only a transport
// error ends it.
func (t *WSTransport) serveRecv(sessionID string, c *wsConn) {
	c.sock.SetReadLimit(t.cfg.MaxMessageSize)

	for {
		if t.cfg.IdleTimeoutSec > 0 {
			_ = c.sock.SetReadDeadline(time.Now().Add(t.cfg.IdleTimeout()))
		}
		_, frame, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Str("session", sessionID).Err(err).Msg("connection dropped")
			} else {
				log.Debug().Str("session", sessionID).Err(err).Msg("connection closed")
			}
			return
		}

		if err := t.limiter.Take(); err != nil {
			log.Warn().Str("session", sessionID).Err(err).Msg("recv limiter interrupted")
			return
		}

		m, err := wire.Decode(frame)
		if err != nil {
			metrics.IncrCounterWithDimGroup("transport", "decode_error_total", 1,
				metrics.Dimension{"error_type": "decode"})
			log.Warn().Str("session", sessionID).Err(err).Msg("dropping unparseable frame")
			continue
		}

		metrics.IncrCounterWithDimGroup("transport", "recv_frames_total", 1,
			metrics.Dimension{"type": m.Type})
		t.bridge.DispatchFrom(sessionID, c, m)
	}
}

// wsConn wraps one WebSocket connection with a bounded send queue and a
// single writer goroutine. Send never blocks: a full queue rejects the
// message, and the issuing call's timeout is the backstop.
type wsConn struct {
	sock      *websocket.Conn
	sendCh    chan *wire.Message
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(sock *websocket.Conn, sendChannelSize int) *wsConn {
	return &wsConn{
		sock:   sock,
		sendCh: make(chan *wire.Message, sendChannelSize),
		done:   make(chan struct{}),
	}
}

// Send enqueues one message for the writer goroutine.
func (c *wsConn) Send(m *wire.Message) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.sendCh <- m:
		return nil
	default:
		return errors.New("send channel is full")
	}
}

// Close shuts the connection down. Idempotent.
func (c *wsConn) Close() error {
	c.close()
	return nil
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}

// RemoteAddr returns the peer address.
func (c *wsConn) RemoteAddr() string {
	return c.sock.RemoteAddr().String()
}

// serveSend is the single writer for this connection. A write failure
// closes the connection; in-flight calls fail through their own timeouts.
func (c *wsConn) serveSend() {
	for {
		select {
		case <-c.done:
			return
		case m := <-c.sendCh:
			frame, err := m.Encode()
			if err != nil {
				log.Error().Str("type", m.Type).Err(err).Msg("encode outbound frame failed")
				continue
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug().Err(err).Msg("write failed, closing connection")
				c.close()
				return
			}
			metrics.IncrCounterWithDimGroup("transport", "sent_frames_total", 1,
				metrics.Dimension{"type": m.Type})
		}
	}
}
