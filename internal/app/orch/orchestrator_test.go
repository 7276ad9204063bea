package orch

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/jingle/internal/app"
	"github.com/dkeye/jingle/internal/app/sfu"
	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/core/coretest"
	"github.com/dkeye/jingle/internal/domain"
)

func audioDesc(creator domain.Role, ssrc uint32, stream string) domain.Description {
	return domain.Description{Contents: []domain.Content{{
		Creator: creator,
		Name:    "audio",
		Senders: domain.SendersBoth,
		Description: &domain.MediaDescription{
			DescType: domain.DescTypeRTP,
			Media:    domain.MediaAudio,
			Payloads: []domain.Payload{{ID: 111, Name: "opus", ClockRate: 48000, Channels: 2}},
			Sources: []domain.Source{{SSRC: ssrc, Parameters: []domain.Parameter{
				{Key: domain.ParamMSID, Value: stream + " " + stream + "-audio"},
			}}},
		},
		Transport: &domain.Transport{TransportType: domain.TransportICEUDP, Ufrag: "uf", Pwd: "pw"},
	}}}
}

type fakeMedia struct {
	mu    sync.Mutex
	peers []*coretest.FakePeer
	err   error
	sink  *sinkRecorder
	// delay stalls NewPeer to widen races between concurrent initiates.
	delay time.Duration
}

func (m *fakeMedia) NewPeer(_ domain.SessionID, _ domain.Role) (core.PeerConnection, error) {
	time.Sleep(m.delay)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p := coretest.NewFakePeer()
	p.OfferDesc = audioDesc(domain.RoleInitiator, 1, "server")
	p.AnswerDesc = audioDesc(domain.RoleInitiator, 2, "server")
	m.peers = append(m.peers, p)
	return p, nil
}

func (m *fakeMedia) EchoStream(sid domain.SessionID, remote core.Track) (core.Stream, sfu.Sink, error) {
	track := &coretest.Track{TrackID: "echo-" + remote.ID(), TrackKind: domain.MediaAudio}
	return coretest.NewStream("echo-"+string(sid), track), m.sink, nil
}

func (m *fakeMedia) peer(i int) *coretest.FakePeer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peers[i]
}

type sinkRecorder struct {
	mu   sync.Mutex
	pkts int
}

func (s *sinkRecorder) WriteRTP(*rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pkts++
	return nil
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pkts
}

// remoteTrack is a core.Track that can also be relayed.
type remoteTrack struct {
	coretest.Track
	packets chan *rtp.Packet
}

func (t *remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-t.packets
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

type fixture struct {
	orch  *Orchestrator
	media *fakeMedia
	sig   *coretest.RecordingSignaler
	log   *coretest.EventLog
}

func newFixture(t *testing.T, policy app.Policy) *fixture {
	t.Helper()
	media := &fakeMedia{sink: &sinkRecorder{}}
	o := New(app.NewRegistry(), policy, media)
	events := &coretest.EventLog{}
	o.Observer = events
	sig := &coretest.RecordingSignaler{}
	o.Connect("alice", sig)
	return &fixture{orch: o, media: media, sig: sig, log: events}
}

func initiate(sid domain.SessionID) domain.Message {
	d := audioDesc(domain.RoleInitiator, 10, "remote")
	return domain.Message{SID: sid, Action: domain.ActionSessionInitiate, Description: &d}
}

func conditionOf(t *testing.T, err error) domain.Condition {
	t.Helper()
	var perr *domain.ProtocolError
	require.True(t, errors.As(err, &perr), "expected protocol error, got %v", err)
	return perr.Condition
}

func TestIncoming_AutoAccept(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{AutoAccept: true})
	ctx := context.Background()

	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s1")))

	assert.Equal(t, []domain.Action{domain.ActionSessionAccept}, f.sig.Actions())
	assert.Equal(t, domain.SessionID("s1"), f.sig.Messages()[0].SID)
	sess, ok := f.orch.Registry.GetSession("s1")
	require.True(t, ok)
	assert.Equal(t, domain.SessionStateActive, sess.State())
	assert.Equal(t, domain.RoleResponder, sess.Role())
	assert.Equal(t, []string{"apply-offer", "answer"}, f.media.peer(0).Calls())
}

func TestIncoming_RingThenAccept(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{})
	ctx := context.Background()

	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s1")))
	require.Equal(t, []domain.Action{domain.ActionSessionInfo}, f.sig.Actions())
	assert.Equal(t, domain.InfoRinging, f.sig.Messages()[0].Info.Kind)

	require.NoError(t, f.orch.Accept(ctx, "s1", nil))
	assert.Equal(t, []domain.Action{domain.ActionSessionInfo, domain.ActionSessionAccept}, f.sig.Actions())

	assert.ErrorIs(t, f.orch.Accept(ctx, "missing", nil), ErrUnknownSession)
}

func TestIncoming_BusyAboveLimit(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{MaxSessions: 1, AutoAccept: true})
	ctx := context.Background()

	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s1")))
	f.sig.Reset()

	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s2")))
	msgs := f.sig.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.ActionSessionTerminate, msgs[0].Action)
	assert.Equal(t, domain.ReasonBusy, msgs[0].Reason)
	assert.Equal(t, domain.SessionID("s2"), msgs[0].SID)
	assert.Equal(t, 1, f.orch.Registry.Count())
}

func TestIncoming_DuplicateSession(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{})
	ctx := context.Background()

	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s1")))
	err := f.orch.Dispatch(ctx, "alice", initiate("s1"))
	assert.Equal(t, domain.ConditionOutOfOrder, conditionOf(t, err))
}

func TestIncoming_ConcurrentDuplicateKeepsOwnerRoutable(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{})
	f.media.delay = 20 * time.Millisecond
	f.orch.Connect("bob", &coretest.RecordingSignaler{})
	ctx := context.Background()

	clients := []domain.ClientID{"alice", "bob"}
	errs := make([]error, len(clients))
	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c domain.ClientID) {
			defer wg.Done()
			errs[i] = f.orch.Dispatch(ctx, c, initiate("dup"))
		}(i, c)
	}
	wg.Wait()

	owner, ok := f.orch.Registry.OwnerOf("dup")
	require.True(t, ok)
	rejected := 0
	for i, c := range clients {
		if c == owner {
			assert.NoError(t, errs[i])
			continue
		}
		assert.Equal(t, domain.ConditionOutOfOrder, conditionOf(t, errs[i]))
		rejected++
	}
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, f.orch.Registry.Count())

	hold := domain.Message{SID: "dup", Action: domain.ActionSessionInfo, Info: &domain.SessionInfo{Kind: domain.InfoHold}}
	assert.NoError(t, f.orch.Dispatch(ctx, owner, hold), "the bound session keeps its worker")
	assert.NoError(t, f.orch.HangupFrom(ctx, owner, "dup", domain.ReasonSuccess))
	assert.Zero(t, f.orch.Registry.Count())
}

func TestIncoming_PeerFailure(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{})
	f.media.err = errors.New("no ports")

	err := f.orch.Dispatch(context.Background(), "alice", initiate("s1"))
	assert.Equal(t, domain.ConditionGeneralError, conditionOf(t, err))
	assert.Zero(t, f.orch.Registry.Count())
}

func TestIncoming_BadOfferCleansUp(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{})

	msg := domain.Message{SID: "s1", Action: domain.ActionSessionInitiate}
	err := f.orch.Dispatch(context.Background(), "alice", msg)
	assert.Equal(t, domain.ConditionBadRequest, conditionOf(t, err))
	assert.Zero(t, f.orch.Registry.Count())
	assert.True(t, f.media.peer(0).Closed())
}

func TestDispatch_UnknownSession(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{})
	ctx := context.Background()

	err := f.orch.Dispatch(ctx, "alice", domain.Message{SID: "nope", Action: domain.ActionSessionInfo})
	assert.Equal(t, domain.ConditionUnknownSession, conditionOf(t, err))

	err = f.orch.Dispatch(ctx, "alice", domain.Message{Action: domain.ActionSessionInfo})
	assert.Equal(t, domain.ConditionBadRequest, conditionOf(t, err))

	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s1")))
	bob := &coretest.RecordingSignaler{}
	f.orch.Connect("bob", bob)
	err = f.orch.Dispatch(ctx, "bob", domain.Message{SID: "s1", Action: domain.ActionSessionTerminate})
	assert.Equal(t, domain.ConditionUnknownSession, conditionOf(t, err), "sessions are private to their client")
}

func TestCall_Outbound(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{})
	ctx := context.Background()

	sid, err := f.orch.Call(ctx, "alice", nil)
	require.NoError(t, err)
	msgs := f.sig.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.ActionSessionInitiate, msgs[0].Action)
	assert.Equal(t, sid, msgs[0].SID)

	answer := audioDesc(domain.RoleInitiator, 20, "remote")
	require.NoError(t, f.orch.Dispatch(ctx, "alice", domain.Message{SID: sid, Action: domain.ActionSessionAccept, Description: &answer}))
	sess, ok := f.orch.Registry.GetSession(sid)
	require.True(t, ok)
	assert.Equal(t, domain.SessionStateActive, sess.State())
	assert.Contains(t, f.log.Kinds(), core.EventAccepted)

	_, err = f.orch.Call(ctx, "nobody", nil)
	assert.ErrorIs(t, err, ErrClientGone)
}

func TestHangup(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{AutoAccept: true})
	ctx := context.Background()
	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s1")))
	f.sig.Reset()

	assert.ErrorIs(t, f.orch.HangupFrom(ctx, "bob", "s1", domain.ReasonSuccess), ErrUnknownSession)
	require.NoError(t, f.orch.HangupFrom(ctx, "alice", "s1", domain.ReasonSuccess))

	msgs := f.sig.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.ActionSessionTerminate, msgs[0].Action)
	assert.Equal(t, domain.ReasonSuccess, msgs[0].Reason)
	assert.True(t, f.media.peer(0).Closed())
	assert.Zero(t, f.orch.Registry.Count())

	err := f.orch.Dispatch(ctx, "alice", domain.Message{SID: "s1", Action: domain.ActionSessionInfo})
	assert.Equal(t, domain.ConditionUnknownSession, conditionOf(t, err))
	assert.ErrorIs(t, f.orch.Hangup(ctx, "s1", domain.ReasonSuccess), ErrUnknownSession)
}

func TestRemoteTerminateCleansUp(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{AutoAccept: true})
	ctx := context.Background()
	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s1")))

	require.NoError(t, f.orch.Dispatch(ctx, "alice", domain.Message{SID: "s1", Action: domain.ActionSessionTerminate, Reason: domain.ReasonDecline}))
	assert.Zero(t, f.orch.Registry.Count())
	events := f.log.Events()
	last := events[len(events)-1]
	assert.Equal(t, core.EventEnded, last.Kind)
	assert.Equal(t, domain.ReasonDecline, last.Reason)
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{AutoAccept: true})
	ctx := context.Background()
	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s1")))
	f.sig.Reset()

	// A stale connection does not take the sessions down.
	f.orch.Disconnect(ctx, "alice", &coretest.RecordingSignaler{})
	assert.Equal(t, 1, f.orch.Registry.Count())

	f.orch.Disconnect(ctx, "alice", f.sig)
	assert.Zero(t, f.orch.Registry.Count())
	assert.Empty(t, f.sig.Messages(), "the transport is gone, nothing is sent")
	assert.True(t, f.media.peer(0).Closed())
}

func TestReconnectTakesOver(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{})
	ctx := context.Background()
	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s1")))

	next := &coretest.RecordingSignaler{}
	f.orch.Connect("alice", next)
	f.orch.Disconnect(ctx, "alice", f.sig)
	require.Equal(t, 1, f.orch.Registry.Count())

	require.NoError(t, f.orch.Accept(ctx, "s1", nil))
	assert.Equal(t, []domain.Action{domain.ActionSessionAccept}, next.Actions())
}

func TestShutdown(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{AutoAccept: true})
	f.orch.Relays = sfu.NewRelayManager()
	ctx := context.Background()
	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s1")))
	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s2")))
	f.sig.Reset()

	f.orch.Shutdown(ctx)
	assert.Zero(t, f.orch.Registry.Count())
	assert.Equal(t, []domain.Action{domain.ActionSessionTerminate, domain.ActionSessionTerminate}, f.sig.Actions())
}

func TestLoopback(t *testing.T) {
	f := newFixture(t, app.SimplePolicy{AutoAccept: true})
	f.orch.Relays = sfu.NewRelayManager()
	ctx := context.Background()
	require.NoError(t, f.orch.Dispatch(ctx, "alice", initiate("s1")))
	f.sig.Reset()

	track := &remoteTrack{
		Track:   coretest.Track{TrackID: "remote-audio", TrackKind: domain.MediaAudio},
		packets: make(chan *rtp.Packet, 4),
	}
	peer := f.media.peer(0)
	peer.Handler().OnRemoteTrackAdded("remote", track)

	require.Eventually(t, func() bool {
		return len(f.sig.Actions()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.ActionSourceAdd, f.sig.Actions()[0])
	assert.Contains(t, peer.Streams(), "echo-s1")

	track.packets <- &rtp.Packet{}
	require.Eventually(t, func() bool { return f.media.sink.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.orch.Hangup(ctx, "s1", domain.ReasonSuccess))
	close(track.packets)
	f.orch.Relays.Wait()
	assert.False(t, f.orch.Relays.HasRelay(sfu.RelayKey{Session: "s1", Track: "remote-audio"}))
}
