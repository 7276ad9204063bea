package sfu

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

// Sink is an outgoing RTP track.
type Sink interface {
	WriteRTP(pkt *rtp.Packet) error
}

// Source is an incoming RTP track.
type Source interface {
	ID() string
	ReadRTP() (*rtp.Packet, error)
}

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// OutTrack is one subscriber of a relay.
type OutTrack struct {
	Sink  Sink
	state atomic.Int32
}

func NewOutTrack(sink Sink) *OutTrack {
	return &OutTrack{Sink: sink}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	ot.state.Store(int32(TrackStateOk))
}

func (ot *OutTrack) MarkMuted() {
	ot.state.Store(int32(TrackStateMuted))
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}
