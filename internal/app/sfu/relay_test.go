package sfu

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
)

type chanSource struct {
	id      string
	packets chan *rtp.Packet
}

func newChanSource(id string) *chanSource {
	return &chanSource{id: id, packets: make(chan *rtp.Packet, 8)}
}

func (s *chanSource) ID() string { return s.id }

func (s *chanSource) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-s.packets
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

type recordingSink struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (s *recordingSink) WriteRTP(pkt *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.seqs = append(s.seqs, pkt.SequenceNumber)
	return nil
}

func (s *recordingSink) received() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint16(nil), s.seqs...)
}

func packet(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}}
}

func TestRelay_ForwardsToSubscribers(t *testing.T) {
	m := NewRelayManager()
	src := newChanSource("audio-a")
	key := m.StartRelay(context.Background(), "s1", src)
	assert.Equal(t, RelayKey{Session: "s1", Track: "audio-a"}, key)

	sink := &recordingSink{}
	require.True(t, m.AddSubscriber(key, "s1", sink))
	assert.False(t, m.AddSubscriber(RelayKey{Session: "other"}, "s1", sink))

	src.packets <- packet(1)
	src.packets <- packet(2)
	require.Eventually(t, func() bool { return len(sink.received()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint16{1, 2}, sink.received())

	close(src.packets)
	m.Wait()
	assert.False(t, m.HasRelay(key), "relay forgets itself once the source ends")
}

func TestRelay_MutedSubscriberSkipped(t *testing.T) {
	m := NewRelayManager()
	src := newChanSource("audio-a")
	key := m.StartRelay(context.Background(), "s1", src)

	muted := &recordingSink{}
	live := &recordingSink{}
	m.AddSubscriber(key, "muted", muted)
	m.AddSubscriber(key, "live", live)
	m.SetMuted(key, "muted", true)

	src.packets <- packet(7)
	require.Eventually(t, func() bool { return len(live.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, muted.received())

	close(src.packets)
	m.Wait()
}

func TestRelay_WriteErrorDropsSubscriber(t *testing.T) {
	m := NewRelayManager()
	src := newChanSource("audio-a")
	key := m.StartRelay(context.Background(), "s1", src)

	m.AddSubscriber(key, "broken", &recordingSink{err: errors.New("closed pipe")})
	require.Equal(t, 1, m.Subscribers(key))

	src.packets <- packet(1)
	require.Eventually(t, func() bool { return m.Subscribers(key) == 0 }, time.Second, 5*time.Millisecond)

	close(src.packets)
	m.Wait()
}

func TestRelay_StopSession(t *testing.T) {
	m := NewRelayManager()
	src := newChanSource("audio-a")
	key := m.StartRelay(context.Background(), "s1", src)
	sink := &recordingSink{}
	m.AddSubscriber(key, "s1", sink)

	m.StopSession("s1")
	assert.False(t, m.HasRelay(key))

	// The loop notices the cancellation on its next packet.
	src.packets <- packet(1)
	m.Wait()
	assert.Empty(t, sink.received())
}
