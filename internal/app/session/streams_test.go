package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/jingle/internal/app/negotiation"
	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/core/coretest"
	"github.com/dkeye/jingle/internal/domain"
)

func sourceStreams(d *domain.Description) []string {
	var out []string
	for _, c := range d.Contents {
		if c.Description == nil {
			continue
		}
		for _, s := range c.Description.Sources {
			out = append(out, s.StreamID())
		}
	}
	return out
}

func TestAddStream_InitiatorAnnouncesFilteredSources(t *testing.T) {
	f := established(t, domain.RoleInitiator)
	ctx := context.Background()

	require.NoError(t, f.s.AddStream(ctx, coretest.NewStream("local"), true, nil))

	assert.Equal(t, []string{"add-stream:local", "offer"}, f.pc.Calls())
	msgs := f.sig.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.ActionSourceAdd, msgs[0].Action)
	desc := msgs[0].Description
	assert.Equal(t, []string{"local", "local"}, sourceStreams(desc))
	for _, c := range desc.Contents {
		assert.Nil(t, c.Transport, c.Name)
	}
	assertNoPrivateLabels(t, desc)
	assert.Equal(t, negotiation.StateHaveLocalOffer, f.s.NegotiationState())

	// the answer arrives as source-accept
	answer := remoteDesc()
	require.NoError(t, f.s.Handle(ctx, domain.Message{Action: domain.ActionSourceAccept, Description: &answer}))
	assert.Equal(t, negotiation.StateStable, f.s.NegotiationState())
	assert.Equal(t, domain.SessionStateActive, f.s.State())
}

func TestAddStream_CompletionAfterEndSendsNothing(t *testing.T) {
	f := established(t, domain.RoleInitiator)
	ctx := context.Background()
	f.pc.Gate = make(chan struct{})
	f.pc.Entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		done <- f.s.AddStream(ctx, coretest.NewStream("local"), true, nil)
	}()
	select {
	case <-f.pc.Entered:
	case <-time.After(5 * time.Second):
		t.Fatal("renegotiation never reached the peer connection")
	}

	f.s.End(ctx, domain.ReasonSuccess, false)
	close(f.pc.Gate)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("add stream did not finish")
	}

	assert.Equal(t, []domain.Action{domain.ActionSessionTerminate}, f.sig.Actions())
	assert.Equal(t, domain.SessionStateEnded, f.s.State())
	assert.True(t, f.pc.Closed())
}

func TestAddStream_CollisionIsNotFatal(t *testing.T) {
	f := established(t, domain.RoleInitiator)
	ctx := context.Background()
	require.NoError(t, f.s.AddStream(ctx, coretest.NewStream("local"), true, nil))

	err := f.s.AddStream(ctx, coretest.NewStream("screen"), true, nil)
	assert.ErrorIs(t, err, negotiation.ErrCollision)
	assert.Equal(t, domain.SessionStateActive, f.s.State())
	assert.Len(t, f.sig.Messages(), 1)
}

func TestAddStream_WithoutRenegotiation(t *testing.T) {
	f := established(t, domain.RoleInitiator)

	require.NoError(t, f.s.AddStream(context.Background(), coretest.NewStream("local"), false, nil))

	assert.Equal(t, []string{"add-stream:local"}, f.pc.Calls())
	assert.Empty(t, f.sig.Messages())
}

func TestAddStream_ResponderAnswersAndAnnounces(t *testing.T) {
	f := established(t, domain.RoleResponder)

	require.NoError(t, f.s.AddStream(context.Background(), coretest.NewStream("local"), true, nil))

	assert.Equal(t, []string{"add-stream:local", "apply-offer", "answer"}, f.pc.Calls())
	assert.Equal(t, []domain.Action{domain.ActionSourceAdd}, f.sig.Actions())
	assert.Equal(t, negotiation.StateStable, f.s.NegotiationState())
}

func TestUpdateStream_SendsSourceUpdate(t *testing.T) {
	f := established(t, domain.RoleResponder)

	require.NoError(t, f.s.UpdateStream(context.Background(), coretest.NewStream("local"), nil))

	msgs := f.sig.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.ActionSourceUpdate, msgs[0].Action)
	assert.Equal(t, []string{"local", "local"}, sourceStreams(msgs[0].Description))
}

func TestRemoveStream_SendsRemoveBeforeDetaching(t *testing.T) {
	pc := newPeer()
	log := &coretest.EventLog{}
	var attachedAtSend []int
	var sent []domain.Message
	sig := core.SignalerFunc(func(_ context.Context, msg domain.Message) error {
		attachedAtSend = append(attachedAtSend, len(pc.Streams()))
		sent = append(sent, msg)
		return nil
	})
	s := newSessionWith(t, pc, sig, log, false)
	ctx := context.Background()
	stream := coretest.NewStream("local")
	require.NoError(t, s.AddStream(ctx, stream, false, nil))
	require.NoError(t, s.Start(ctx, nil))
	answer := remoteDesc()
	require.NoError(t, s.Handle(ctx, domain.Message{Action: domain.ActionSessionAccept, Description: &answer}))
	pc.ResetCalls()
	sent, attachedAtSend = nil, nil

	require.NoError(t, s.RemoveStream(ctx, stream, true, nil))

	require.Len(t, sent, 1)
	assert.Equal(t, domain.ActionSourceRemove, sent[0].Action)
	assert.Equal(t, []string{"local", "local"}, sourceStreams(sent[0].Description))
	assert.Equal(t, []int{1}, attachedAtSend, "source-remove goes out while the stream is still attached")

	// the initiator completes the cycle against the current remote description
	assert.Equal(t, []string{"remove-stream:local", "offer", "apply-answer"}, pc.Calls())
	assert.Equal(t, negotiation.StateStable, s.NegotiationState())
	assert.Empty(t, pc.Streams())
}

func TestRemoveStream_Responder(t *testing.T) {
	f := established(t, domain.RoleResponder)

	require.NoError(t, f.s.RemoveStream(context.Background(), coretest.NewStream("local"), true, nil))

	assert.Equal(t, []domain.Action{domain.ActionSourceRemove}, f.sig.Actions())
	assert.Equal(t, []string{"remove-stream:local", "apply-offer", "answer"}, f.pc.Calls())
}

func TestSwitchStream_MovesAudioAndReannounces(t *testing.T) {
	f := established(t, domain.RoleInitiator)
	ctx := context.Background()
	mic := &coretest.Track{TrackID: "mic", TrackKind: domain.MediaAudio}
	camera := &coretest.Track{TrackID: "camera", TrackKind: domain.MediaVideo}
	oldStream := coretest.NewStream("local", mic, camera)
	newStream := coretest.NewStream("screen", &coretest.Track{TrackID: "screen", TrackKind: domain.MediaVideo})

	require.NoError(t, f.s.SwitchStream(ctx, oldStream, newStream))

	assert.Equal(t, []string{"remove-stream:local", "add-stream:screen", "offer"}, f.pc.Calls())
	assert.Equal(t, []core.Track{newStream.Tracks()[0], mic}, newStream.Tracks())

	msgs := f.sig.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.ActionSourceRemove, msgs[0].Action)
	assert.Equal(t, domain.ActionSourceAdd, msgs[1].Action)
	for _, m := range msgs {
		for _, c := range m.Description.Contents {
			assert.Nil(t, c.Transport)
		}
		assertNoPrivateLabels(t, m.Description)
	}
	// the previous local description is withdrawn as a whole
	assert.ElementsMatch(t, []string{"local", "local", "other"}, sourceStreams(msgs[0].Description))
}

func TestConstraintsOverrideApplies(t *testing.T) {
	f := established(t, domain.RoleInitiator)
	override := &domain.Constraints{ReceiveAudio: domain.Bool(true), ReceiveVideo: domain.Bool(false)}

	require.NoError(t, f.s.AddStream(context.Background(), coretest.NewStream("local"), true, override))

	assert.Equal(t, *override, f.s.neg.Constraints())
}
