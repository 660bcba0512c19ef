package bridge

import (
	"fmt"
	"time"
)

// SessionError reports that the targeted session id is unknown, or known
// but not currently bound to a live connection. It is raised synchronously
// at call issuance, before any message is sent.
type SessionError struct {
	SessionID string
	Reason    string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s", e.SessionID, e.Reason)
}

// TimeoutError reports that a command was sent but no matching response or
// error arrived before the deadline. The pending entry is always cleaned
// up, whether or not the peer eventually answers.
type TimeoutError struct {
	SessionID string
	Method    string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call %s on session %s timed out after %v", e.Method, e.SessionID, e.Timeout)
}

// ProtocolError reports that the peer answered a command with an error
// message; Message carries the peer's error text. It also covers locally
// detected malformed responses.
type ProtocolError struct {
	SessionID string
	Method    string
	Message   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("call %s on session %s failed: %s", e.Method, e.SessionID, e.Message)
}
