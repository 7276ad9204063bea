package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

// ErrUnsupportedTrack is returned when a stream carries a track that was not
// created by this package.
var ErrUnsupportedTrack = errors.New("track cannot be sent by this peer connection")

var (
	_ core.Track  = (*LocalTrack)(nil)
	_ core.Track  = (*RemoteTrack)(nil)
	_ core.Stream = (*LocalStream)(nil)
)

// LocalTrack is an outgoing RTP track fed by the application.
type LocalTrack struct {
	track *webrtc.TrackLocalStaticRTP
}

func NewLocalTrack(codec webrtc.RTPCodecCapability, id, streamID string) (*LocalTrack, error) {
	t, err := webrtc.NewTrackLocalStaticRTP(codec, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("new local track: %w", err)
	}
	return &LocalTrack{track: t}, nil
}

func (t *LocalTrack) ID() string       { return t.track.ID() }
func (t *LocalTrack) StreamID() string { return t.track.StreamID() }

func (t *LocalTrack) Kind() domain.MediaType {
	return domain.ParseMediaType(t.track.Kind().String())
}

func (t *LocalTrack) WriteRTP(pkt *rtp.Packet) error { return t.track.WriteRTP(pkt) }

// RemoteTrack is an incoming track announced by the peer connection.
type RemoteTrack struct {
	track *webrtc.TrackRemote
}

func (t *RemoteTrack) ID() string       { return t.track.ID() }
func (t *RemoteTrack) StreamID() string { return t.track.StreamID() }

func (t *RemoteTrack) Kind() domain.MediaType {
	return domain.ParseMediaType(t.track.Kind().String())
}

// Codec is the negotiated codec, usable to create a matching LocalTrack.
func (t *RemoteTrack) Codec() webrtc.RTPCodecCapability {
	return t.track.Codec().RTPCodecCapability
}

func (t *RemoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := t.track.ReadRTP()
	return pkt, err
}

// LocalStream groups local tracks under one stream id.
type LocalStream struct {
	id string

	mu     sync.Mutex
	tracks []core.Track
}

func NewLocalStream(id string, tracks ...core.Track) *LocalStream {
	return &LocalStream{id: id, tracks: tracks}
}

func (s *LocalStream) ID() string { return s.id }

func (s *LocalStream) Tracks() []core.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Track(nil), s.tracks...)
}

func (s *LocalStream) AudioTracks() []core.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Track
	for _, t := range s.tracks {
		if t.Kind() == domain.MediaAudio {
			out = append(out, t)
		}
	}
	return out
}

func (s *LocalStream) AddTrack(t core.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}
