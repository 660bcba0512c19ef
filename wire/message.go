// Package wire defines the JSON message shapes exchanged between the bridge
// and a remote editor peer over one duplex connection per session.
// Every frame on the wire is a single JSON object with a "type" discriminator;
// the remaining fields depend on the message kind. The package provides
// constructors for outbound messages, a strict decoder for inbound frames,
// and per-kind validation used by the receive loop before dispatch.
package wire

import (
	"encoding/json"
	"fmt"
)

// Message kind discriminators. The set is closed on the server side; frames
// carrying any other value decode successfully but classify as unknown and
// are logged and ignored by the receive loop.
const (
	// TypeCommand invokes a remote method on the peer. The peer must
	// eventually answer with a response or error carrying the same id
	// as its correlationId.
	TypeCommand = "command"

	// TypeResponse is the successful completion of a prior command.
	TypeResponse = "response"

	// TypeError is the failure completion of a prior command when it
	// carries a correlationId, otherwise an unsolicited fault that is
	// logged and dropped.
	TypeError = "error"

	// TypeEvent is an asynchronous push from the peer, not correlated to
	// any command.
	TypeEvent = "event"

	// TypeHeartbeat is a liveness ping from the peer.
	TypeHeartbeat = "heartbeat"

	// TypeHeartbeatAck acknowledges a heartbeat. Informational only.
	TypeHeartbeatAck = "heartbeat_ack"

	// TypeSync is sent once on connect so the peer can compute its clock
	// offset against the server.
	TypeSync = "sync"
)

// ErrorBody carries the failure detail of an error message. Message is the
// only field the bridge interprets; Code and Data pass through untouched for
// the collaborator layer.
type ErrorBody struct {
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Message is the single frame shape for all seven wire kinds. Optional
// fields are omitted from the encoded form when empty so each kind only
// carries its own fields on the wire.
type Message struct {
	Type string `json:"type"`

	// Command fields.
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// Response / error fields.
	CorrelationID string          `json:"correlationId,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         *ErrorBody      `json:"error,omitempty"`

	// Event fields.
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`

	// Sync fields. Server wall clock in unix milliseconds.
	ServerTime int64 `json:"serverTime,omitempty"`
}

// NewCommand builds a command frame for the given correlation id, method
// name and pre-encoded params.
func NewCommand(id, method string, params json.RawMessage) *Message {
	return &Message{Type: TypeCommand, ID: id, Method: method, Params: params}
}

// NewResponse builds a successful completion frame for a prior command.
func NewResponse(correlationID string, result json.RawMessage) *Message {
	return &Message{Type: TypeResponse, CorrelationID: correlationID, Result: result}
}

// NewError builds a failure completion frame. An empty correlationID marks
// the error as an unsolicited fault.
func NewError(correlationID, message string) *Message {
	return &Message{Type: TypeError, CorrelationID: correlationID, Error: &ErrorBody{Message: message}}
}

// NewEvent builds an asynchronous push frame.
func NewEvent(event string, data json.RawMessage) *Message {
	return &Message{Type: TypeEvent, Event: event, Data: data}
}

// NewHeartbeatAck builds a heartbeat acknowledgement frame.
func NewHeartbeatAck() *Message {
	return &Message{Type: TypeHeartbeatAck}
}

// NewSync builds the connect-time clock synchronization frame.
// serverTime is the server wall clock in unix milliseconds.
func NewSync(serverTime int64) *Message {
	return &Message{Type: TypeSync, ServerTime: serverTime}
}

// Encode serializes the message to a single JSON text frame.
func (m *Message) Encode() ([]byte, error) {
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", m.Type, err)
	}
	return buf, nil
}

// Decode parses one inbound frame. It fails on malformed JSON and on frames
// missing the type discriminator; anything else, including unknown kinds,
// decodes successfully so the receive loop decides what to drop.
func Decode(frame []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(frame, m); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("wire: decode: missing type discriminator")
	}
	return m, nil
}

// Known reports whether the message carries one of the seven wire kinds.
func (m *Message) Known() bool {
	switch m.Type {
	case TypeCommand, TypeResponse, TypeError, TypeEvent,
		TypeHeartbeat, TypeHeartbeatAck, TypeSync:
		return true
	}
	return false
}

// Validate checks the per-kind required fields. Unknown kinds pass
// validation; they are classified and dropped later so a single odd frame
// never terminates the connection.
func (m *Message) Validate() error {
	switch m.Type {
	case TypeCommand:
		if m.ID == "" {
			return fmt.Errorf("wire: command missing id")
		}
		if m.Method == "" {
			return fmt.Errorf("wire: command %s missing method", m.ID)
		}
	case TypeResponse:
		if m.CorrelationID == "" {
			return fmt.Errorf("wire: response missing correlationId")
		}
	case TypeError:
		if m.Error == nil {
			return fmt.Errorf("wire: error frame missing error body")
		}
	case TypeEvent:
		if m.Event == "" {
			return fmt.Errorf("wire: event missing event name")
		}
	}
	return nil
}
