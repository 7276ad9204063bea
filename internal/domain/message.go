package domain

import "fmt"

// Action is the Jingle action of a protocol message.
type Action string

const (
	ActionSessionInitiate  Action = "session-initiate"
	ActionSessionAccept    Action = "session-accept"
	ActionSessionInfo      Action = "session-info"
	ActionSessionTerminate Action = "session-terminate"
	ActionTransportInfo    Action = "transport-info"
	ActionSourceAdd        Action = "source-add"
	ActionSourceRemove     Action = "source-remove"
	ActionSourceUpdate     Action = "source-update"
	ActionSourceAccept     Action = "source-accept"
)

// Reason is the session-terminate reason condition.
type Reason string

const (
	ReasonSuccess           Reason = "success"
	ReasonBusy              Reason = "busy"
	ReasonDecline           Reason = "decline"
	ReasonCancel            Reason = "cancel"
	ReasonGone              Reason = "gone"
	ReasonTimeout           Reason = "timeout"
	ReasonGeneralError      Reason = "general-error"
	ReasonFailedApplication Reason = "failed-application"
	ReasonFailedTransport   Reason = "failed-transport"
)

// InfoKind tags the session-info payload. It is decided once when the
// message is parsed.
type InfoKind int

const (
	InfoUnknown InfoKind = iota
	InfoRinging
	InfoHold
	InfoActive
	InfoMute
	InfoUnmute
)

func (k InfoKind) String() string {
	switch k {
	case InfoRinging:
		return "ringing"
	case InfoHold:
		return "hold"
	case InfoActive:
		return "active"
	case InfoMute:
		return "mute"
	case InfoUnmute:
		return "unmute"
	default:
		return "unknown"
	}
}

type MuteInfo struct {
	Creator Role   `json:"creator"`
	Name    string `json:"name,omitempty"`
}

type SessionInfo struct {
	Kind InfoKind
	// Mute is set for InfoMute and InfoUnmute.
	Mute *MuteInfo
}

// Message is one Jingle protocol message, inbound or outbound.
type Message struct {
	SID         SessionID
	Action      Action
	Description *Description
	Info        *SessionInfo
	Reason      Reason
}

// Condition is the error condition returned to the remote peer when an
// inbound message cannot be processed.
type Condition string

const (
	ConditionGeneralError       Condition = "general-error"
	ConditionBadRequest         Condition = "bad-request"
	ConditionOutOfOrder         Condition = "out-of-order"
	ConditionUnknownSession     Condition = "unknown-session"
	ConditionResourceConstraint Condition = "resource-constraint"
)

type ProtocolError struct {
	Condition Condition
	Text      string
}

func (e *ProtocolError) Error() string {
	if e.Text == "" {
		return string(e.Condition)
	}
	return fmt.Sprintf("%s: %s", e.Condition, e.Text)
}

func NewProtocolError(cond Condition, format string, args ...any) *ProtocolError {
	return &ProtocolError{Condition: cond, Text: fmt.Sprintf(format, args...)}
}
