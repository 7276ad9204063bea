package app

// IncomingAction is the decision taken for an inbound session-initiate.
type IncomingAction int

const (
	RejectBusy IncomingAction = iota
	Ring
	AutoAccept
)

func (a IncomingAction) String() string {
	switch a {
	case RejectBusy:
		return "reject-busy"
	case Ring:
		return "ring"
	case AutoAccept:
		return "auto-accept"
	default:
		return "unknown"
	}
}

type Policy interface {
	OnIncoming(active int) IncomingAction
}

// SimplePolicy rejects calls once MaxSessions sessions are live. A zero
// MaxSessions means no limit.
type SimplePolicy struct {
	MaxSessions int
	AutoAccept  bool
}

func (p SimplePolicy) OnIncoming(active int) IncomingAction {
	if p.MaxSessions > 0 && active >= p.MaxSessions {
		return RejectBusy
	}
	if p.AutoAccept {
		return AutoAccept
	}
	return Ring
}
