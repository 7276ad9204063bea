// Package coretest holds in-process fakes of the core collaborators for tests.
package coretest

import (
	"context"
	"sync"

	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

// Compile-time interface checks.
var (
	_ core.PeerConnection = (*FakePeer)(nil)
	_ core.Signaler       = (*RecordingSignaler)(nil)
	_ core.Stream         = (*Stream)(nil)
)

// FakePeer is a scriptable PeerConnection. Offer and Answer return the
// configured descriptions; the Err fields make the matching call fail.
type FakePeer struct {
	mu sync.Mutex

	OfferDesc  domain.Description
	AnswerDesc domain.Description

	OfferErr       error
	AnswerErr      error
	ApplyOfferErr  error
	ApplyAnswerErr error
	CandidateErr   error

	// When Gate is set, Offer signals Entered and waits for Gate to close.
	Gate    chan struct{}
	Entered chan struct{}

	calls      []string
	local      *domain.Description
	remote     *domain.Description
	streams    []string
	candidates []string
	handler    core.PeerHandler
	closed     bool
}

func NewFakePeer() *FakePeer { return &FakePeer{} }

func (f *FakePeer) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *FakePeer) Start(_ context.Context, h core.PeerHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return nil
}

func (f *FakePeer) Offer(_ context.Context, _ domain.Constraints) (domain.Description, error) {
	f.record("offer")
	if f.Gate != nil {
		if f.Entered != nil {
			f.Entered <- struct{}{}
		}
		<-f.Gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OfferErr != nil {
		return domain.Description{}, f.OfferErr
	}
	d := f.OfferDesc.Clone()
	f.local = &d
	return d.Clone(), nil
}

func (f *FakePeer) Answer(_ context.Context, _ domain.Constraints) (domain.Description, error) {
	f.record("answer")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AnswerErr != nil {
		return domain.Description{}, f.AnswerErr
	}
	d := f.AnswerDesc.Clone()
	f.local = &d
	return d.Clone(), nil
}

func (f *FakePeer) ApplyRemoteOffer(_ context.Context, d domain.Description) error {
	f.record("apply-offer")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ApplyOfferErr != nil {
		return f.ApplyOfferErr
	}
	c := d.Clone()
	f.remote = &c
	return nil
}

func (f *FakePeer) ApplyRemoteAnswer(_ context.Context, d domain.Description) error {
	f.record("apply-answer")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ApplyAnswerErr != nil {
		return f.ApplyAnswerErr
	}
	c := d.Clone()
	f.remote = &c
	return nil
}

func (f *FakePeer) LocalDescription() (domain.Description, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.local == nil {
		return domain.Description{}, false
	}
	return f.local.Clone(), true
}

func (f *FakePeer) RemoteDescription() (domain.Description, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		return domain.Description{}, false
	}
	return f.remote.Clone(), true
}

// SetLocal and SetRemote seed the descriptions without recording a call.
func (f *FakePeer) SetLocal(d domain.Description) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := d.Clone()
	f.local = &c
}

func (f *FakePeer) SetRemote(d domain.Description) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := d.Clone()
	f.remote = &c
}

func (f *FakePeer) AddLocalStream(s core.Stream) error {
	f.record("add-stream:" + s.ID())
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, s.ID())
	return nil
}

func (f *FakePeer) RemoveLocalStream(s core.Stream) error {
	f.record("remove-stream:" + s.ID())
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range f.streams {
		if id == s.ID() {
			f.streams = append(f.streams[:i], f.streams[i+1:]...)
			break
		}
	}
	return nil
}

func (f *FakePeer) AddICECandidate(_ context.Context, content string, c *domain.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CandidateErr != nil {
		return f.CandidateErr
	}
	if c == nil {
		f.candidates = append(f.candidates, content+":end")
		return nil
	}
	f.candidates = append(f.candidates, content+":"+c.Foundation)
	return nil
}

func (f *FakePeer) Close() error {
	f.record("close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakePeer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakePeer) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakePeer) Streams() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.streams...)
}

func (f *FakePeer) Candidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.candidates...)
}

func (f *FakePeer) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Handler returns the handler registered by Start, for firing engine events.
func (f *FakePeer) Handler() core.PeerHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}
