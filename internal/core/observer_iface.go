package core

import "github.com/dkeye/jingle/internal/domain"

// EventKind is the closed set of notifications a session emits.
type EventKind int

const (
	EventRinging EventKind = iota + 1
	EventHold
	EventResumed
	EventMute
	EventUnmute
	EventAccepted
	EventEnded
	EventChangeRinging
	EventChangeHold
	EventChangeConnectionState
	EventPeerStreamAdded
	EventPeerStreamRemoved
	EventPeerTrackAdded
	EventPeerTrackRemoved
	EventAddChannel
	EventICEFailed
)

func (k EventKind) String() string {
	switch k {
	case EventRinging:
		return "ringing"
	case EventHold:
		return "hold"
	case EventResumed:
		return "resumed"
	case EventMute:
		return "mute"
	case EventUnmute:
		return "unmute"
	case EventAccepted:
		return "accepted"
	case EventEnded:
		return "ended"
	case EventChangeRinging:
		return "change:ringing"
	case EventChangeHold:
		return "change:hold"
	case EventChangeConnectionState:
		return "change:connectionState"
	case EventPeerStreamAdded:
		return "peerStreamAdded"
	case EventPeerStreamRemoved:
		return "peerStreamRemoved"
	case EventPeerTrackAdded:
		return "peerTrackAdded"
	case EventPeerTrackRemoved:
		return "peerTrackRemoved"
	case EventAddChannel:
		return "addChannel"
	case EventICEFailed:
		return "iceFailed"
	default:
		return "unknown"
	}
}

// Event is one session notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Session domain.SessionID

	Ringing         bool
	OnHold          bool
	ConnectionState domain.ConnectionState
	Mute            *domain.MuteInfo
	StreamID        string
	TrackID         string
	Track           Track
	Channel         string
	Reason          domain.Reason
}

type Observer interface {
	OnSessionEvent(Event)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnSessionEvent(e Event) { f(e) }

// Observers fans one event out to several observers in order.
type Observers []Observer

func (o Observers) OnSessionEvent(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.OnSessionEvent(e)
		}
	}
}
