package core

import (
	"context"

	"github.com/dkeye/jingle/internal/domain"
)

// Track is one local or remote media track.
type Track interface {
	ID() string
	Kind() domain.MediaType
}

// Stream groups tracks under one media-stream id. Streams may be shared by
// the application across sessions.
type Stream interface {
	ID() string
	Tracks() []Track
	AudioTracks() []Track
	AddTrack(Track)
}

// PeerConnection is the negotiation engine a session drives. It owns ICE
// gathering, SDP generation/application and media transport. Exactly one
// session owns a PeerConnection.
type PeerConnection interface {
	// Start registers h for engine notifications. Call once, before any
	// negotiation.
	Start(ctx context.Context, h PeerHandler) error

	Offer(ctx context.Context, c domain.Constraints) (domain.Description, error)
	Answer(ctx context.Context, c domain.Constraints) (domain.Description, error)
	ApplyRemoteOffer(ctx context.Context, d domain.Description) error
	ApplyRemoteAnswer(ctx context.Context, d domain.Description) error

	// LocalDescription and RemoteDescription return the last applied
	// descriptions; ok is false before the first one.
	LocalDescription() (domain.Description, bool)
	RemoteDescription() (domain.Description, bool)

	AddLocalStream(s Stream) error
	RemoveLocalStream(s Stream) error

	// AddICECandidate applies a remote candidate for the named content.
	// A nil candidate marks the end of remote candidates.
	AddICECandidate(ctx context.Context, content string, c *domain.Candidate) error

	Close() error
}

// PeerHandler receives PeerConnection notifications. Methods may be called
// from engine goroutines.
type PeerHandler interface {
	OnLocalCandidate(domain.LocalCandidate)
	OnEndOfCandidates()
	OnICEConnectionState(domain.ICEState)
	OnRemoteStreamAdded(streamID string)
	OnRemoteStreamRemoved(streamID string)
	OnRemoteTrackAdded(streamID string, track Track)
	OnRemoteTrackRemoved(streamID string, trackID string)
	OnDataChannel(label string)
}
