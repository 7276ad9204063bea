// Package trickle turns locally gathered ICE candidates into transport-info
// payloads and synthesizes the end-of-candidates marker.
package trickle

import (
	"sync"

	"github.com/dkeye/jingle/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateCandidatePending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCandidatePending:
		return "candidate-pending"
	default:
		return "unknown"
	}
}

// Coordinator forwards every candidate immediately. With end-of-candidates
// signaling enabled it also keeps the transport metadata of the last
// forwarded candidate so the final marker can name its transport type.
type Coordinator struct {
	endOfCandidates bool
	emit            func(domain.Description)

	mu      sync.Mutex
	pending *domain.LocalCandidate
}

func NewCoordinator(endOfCandidates bool, emit func(domain.Description)) *Coordinator {
	return &Coordinator{endOfCandidates: endOfCandidates, emit: emit}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return StateCandidatePending
	}
	return StateIdle
}

// Candidate emits one transport-info payload for lc.
func (c *Coordinator) Candidate(lc domain.LocalCandidate) {
	if c.endOfCandidates {
		c.mu.Lock()
		kept := lc
		c.pending = &kept
		c.mu.Unlock()
	}
	c.emit(domain.Description{Contents: []domain.Content{{
		Creator: lc.Creator,
		Name:    lc.Content,
		Transport: &domain.Transport{
			TransportType: lc.TransportType,
			Ufrag:         lc.Ufrag,
			Pwd:           lc.Pwd,
			Candidates:    []domain.Candidate{lc.Candidate},
		},
	}}})
}

// EndOfCandidates emits the gathering-complete marker derived from the
// retained candidate. Without one nothing is emitted.
func (c *Coordinator) EndOfCandidates() {
	c.mu.Lock()
	last := c.pending
	c.pending = nil
	c.mu.Unlock()
	if last == nil {
		return
	}
	c.emit(domain.Description{Contents: []domain.Content{{
		Creator: last.Creator,
		Name:    last.Content,
		Transport: &domain.Transport{
			TransportType:     last.TransportType,
			GatheringComplete: true,
		},
	}}})
}
