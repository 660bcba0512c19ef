package bridge

import (
	"time"

	"github.com/lcx/pixelbridge/log"
	"github.com/lcx/pixelbridge/metrics"
	"github.com/lcx/pixelbridge/wire"
)

// Dispatch classifies one inbound message from the session's receive loop
// and routes it: response and error complete the matching pending call,
// event goes to the session's event handler, heartbeat refreshes liveness
// and is acknowledged. Malformed or unknown frames are logged and dropped;
// nothing here ever terminates the receive loop.
func (b *Bridge) Dispatch(sessionID string, m *wire.Message) {
	b.DispatchFrom(sessionID, nil, m)
}

// DispatchFrom is Dispatch with the originating connection attached.
// Replies produced during dispatch, the heartbeat ack, go back on origin so
// a frame read by a stale loop never writes onto a replacement connection.
// A nil origin falls back to the session's bound connection.
func (b *Bridge) DispatchFrom(sessionID string, origin Conn, m *wire.Message) {
	b.touchActivity(sessionID)

	if err := m.Validate(); err != nil {
		metrics.IncrCounterWithDimGroup("bridge", "recv_invalid_total", 1,
			metrics.Dimension{"type": m.Type})
		log.Warn().Str("session", sessionID).Str("type", m.Type).Err(err).Msg("dropping invalid frame")
		return
	}

	switch m.Type {
	case wire.TypeResponse:
		b.resolvePending(sessionID, m.CorrelationID, m, false)

	case wire.TypeError:
		if m.CorrelationID == "" {
			// Unsolicited fault; nothing to complete.
			log.Warn().Str("session", sessionID).Str("peerError", m.Error.Message).Msg("unsolicited error from peer")
			return
		}
		b.resolvePending(sessionID, m.CorrelationID, m, true)

	case wire.TypeEvent:
		b.handleEvent(sessionID, m)

	case wire.TypeHeartbeat:
		b.handleHeartbeat(sessionID, origin)

	case wire.TypeHeartbeatAck, wire.TypeSync, wire.TypeCommand:
		// Not expected inbound on the server side; informational only.
		log.Debug().Str("session", sessionID).Str("type", m.Type).Msg("ignoring frame")

	default:
		metrics.IncrCounterWithDimGroup("bridge", "recv_unknown_total", 1,
			metrics.Dimension{"type": m.Type})
		log.Warn().Str("session", sessionID).Str("type", m.Type).Msg("unknown frame type")
	}
}

// resolvePending completes the pending call for the given correlation id.
// An absent id means the call already timed out or was fired without
// bookkeeping; the answer is dropped, which is the designed orphan
// behavior, not an error. The frame kind decides success or failure: every
// correlated error frame fails the call, even one with an empty message.
func (b *Bridge) resolvePending(sessionID, correlationID string, m *wire.Message, isError bool) {
	p, ok := b.pending.take(correlationID)
	if !ok {
		log.Debug().Str("session", sessionID).Str("correlationId", correlationID).Msg("dropping orphaned answer")
		return
	}

	if isError {
		p.complete(nil, &ProtocolError{SessionID: p.sessionID, Method: p.method, Message: m.Error.Message})
	} else {
		p.complete(m.Result, nil)
	}

	// Completed calls feed the per-method aggregates; locally timed-out
	// calls never reach this point.
	b.stats.Record(p.method, p.duration())
}

func (b *Bridge) handleEvent(sessionID string, m *wire.Message) {
	b.mu.RLock()
	s, ok := b.sessions[sessionID]
	var handler EventHandler
	if ok {
		handler = s.onEvent
	}
	b.mu.RUnlock()

	if !ok {
		log.Debug().Str("session", sessionID).Str("event", m.Event).Msg("event for unregistered session")
		return
	}
	metrics.IncrCounterWithDimGroup("bridge", "events_total", 1,
		metrics.Dimension{"event": m.Event})
	if handler != nil {
		handler(m.Event, m.Data)
	}
}

func (b *Bridge) handleHeartbeat(sessionID string, origin Conn) {
	b.mu.Lock()
	s, ok := b.sessions[sessionID]
	conn := origin
	if ok {
		s.lastHeartbeat = time.Now()
		if conn == nil {
			conn = s.conn
		}
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	metrics.IncrCounterWithGroup("bridge", "heartbeats_total", 1)
	if conn != nil {
		// Best effort; a full send queue drops the ack and the next
		// heartbeat retriggers it.
		if err := conn.Send(wire.NewHeartbeatAck()); err != nil {
			log.Debug().Str("session", sessionID).Err(err).Msg("heartbeat ack not sent")
		}
	}
}

func (b *Bridge) touchActivity(sessionID string) {
	b.mu.Lock()
	if s, ok := b.sessions[sessionID]; ok {
		s.lastActivity = time.Now()
	}
	b.mu.Unlock()
}
