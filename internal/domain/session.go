// Package domain contains the data carried through a call: session identity,
// negotiation roles and states, Jingle descriptions and protocol messages.
// No I/O and no collaborator calls live here.
package domain

import "github.com/google/uuid"

type SessionID string

// NewSessionID returns a fresh opaque session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// Role is fixed for the lifetime of a session: the initiator always offers,
// the responder always answers.
type Role int

const (
	RoleUnset Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unset"
	}
}

// SessionState only moves forward: New -> Pending -> Active -> Ended,
// with Ended reachable from every state.
type SessionState int

const (
	SessionStateNew SessionState = iota
	SessionStatePending
	SessionStateActive
	SessionStateEnded
)

func (s SessionState) String() string {
	switch s {
	case SessionStateNew:
		return "new"
	case SessionStatePending:
		return "pending"
	case SessionStateActive:
		return "active"
	case SessionStateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ConnectionState is derived from the peer connection's ICE state.
type ConnectionState int

const (
	ConnectionStateNew ConnectionState = iota
	ConnectionStateConnecting
	ConnectionStateConnected
	ConnectionStateInterrupted
	ConnectionStateDisconnected
	ConnectionStateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNew:
		return "new"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateInterrupted:
		return "interrupted"
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ICEState mirrors the ICE connection states reported by the peer connection.
type ICEState int

const (
	ICEStateNew ICEState = iota
	ICEStateChecking
	ICEStateConnected
	ICEStateCompleted
	ICEStateDisconnected
	ICEStateFailed
	ICEStateClosed
)

func (s ICEState) String() string {
	switch s {
	case ICEStateNew:
		return "new"
	case ICEStateChecking:
		return "checking"
	case ICEStateConnected:
		return "connected"
	case ICEStateCompleted:
		return "completed"
	case ICEStateDisconnected:
		return "disconnected"
	case ICEStateFailed:
		return "failed"
	case ICEStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Peer returns the role of the other side.
func (r Role) Peer() Role {
	switch r {
	case RoleInitiator:
		return RoleResponder
	case RoleResponder:
		return RoleInitiator
	default:
		return RoleUnset
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if r == RoleUnset {
		return []byte{}, nil
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	switch string(text) {
	case "initiator":
		*r = RoleInitiator
	case "responder":
		*r = RoleResponder
	default:
		*r = RoleUnset
	}
	return nil
}
