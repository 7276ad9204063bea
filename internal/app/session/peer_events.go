package session

import (
	"context"

	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

// peerEvents receives peer connection notifications on behalf of a session.
type peerEvents struct {
	s *MediaSession
}

var _ core.PeerHandler = peerEvents{}

func (p peerEvents) OnLocalCandidate(lc domain.LocalCandidate) {
	if p.s.terminated() {
		return
	}
	p.s.trickle.Candidate(lc)
}

func (p peerEvents) OnEndOfCandidates() {
	if p.s.terminated() {
		return
	}
	p.s.trickle.EndOfCandidates()
}

// OnICEConnectionState maps ICE states onto the connection state. A drop
// while stable is an interruption; a drop during renegotiation is a
// disconnect. ICE failure ends the session.
func (p peerEvents) OnICEConnectionState(st domain.ICEState) {
	s := p.s
	s.logger.Debug().Str("ice_state", st.String()).Msg("ice connection state")

	var next domain.ConnectionState
	switch st {
	case domain.ICEStateChecking:
		next = domain.ConnectionStateConnecting
	case domain.ICEStateConnected, domain.ICEStateCompleted:
		next = domain.ConnectionStateConnected
	case domain.ICEStateDisconnected:
		if s.neg.Stable() {
			next = domain.ConnectionStateInterrupted
		} else {
			next = domain.ConnectionStateDisconnected
		}
	case domain.ICEStateFailed:
		next = domain.ConnectionStateFailed
	case domain.ICEStateClosed:
		next = domain.ConnectionStateDisconnected
	default:
		return
	}
	s.setConnectionState(next)

	if st == domain.ICEStateFailed && !s.terminated() {
		if s.Role() == domain.RoleInitiator {
			s.emit(core.Event{Kind: core.EventICEFailed})
		}
		s.End(context.Background(), domain.ReasonFailedTransport, false)
	}
}

func (p peerEvents) OnRemoteStreamAdded(streamID string) {
	s := p.s
	s.mu.Lock()
	if s.ending || s.state == domain.SessionStateEnded {
		s.mu.Unlock()
		return
	}
	s.remoteStreams = append(s.remoteStreams, streamID)
	s.mu.Unlock()
	s.emit(core.Event{Kind: core.EventPeerStreamAdded, StreamID: streamID})
}

func (p peerEvents) OnRemoteStreamRemoved(streamID string) {
	s := p.s
	s.mu.Lock()
	found := false
	for i, id := range s.remoteStreams {
		if id == streamID {
			s.remoteStreams = append(s.remoteStreams[:i], s.remoteStreams[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()
	if found {
		s.emit(core.Event{Kind: core.EventPeerStreamRemoved, StreamID: streamID})
	}
}

func (p peerEvents) OnRemoteTrackAdded(streamID string, t core.Track) {
	if p.s.terminated() {
		return
	}
	p.s.emit(core.Event{Kind: core.EventPeerTrackAdded, StreamID: streamID, TrackID: t.ID(), Track: t})
}

func (p peerEvents) OnRemoteTrackRemoved(streamID, trackID string) {
	if p.s.terminated() {
		return
	}
	p.s.emit(core.Event{Kind: core.EventPeerTrackRemoved, StreamID: streamID, TrackID: trackID})
}

func (p peerEvents) OnDataChannel(label string) {
	if p.s.terminated() {
		return
	}
	p.s.emit(core.Event{Kind: core.EventAddChannel, Channel: label})
}
