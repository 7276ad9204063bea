// Package rtc implements the peer-connection collaborator on top of pion
// WebRTC and maps between SDP and Jingle descriptions.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

var _ core.PeerConnection = (*Connection)(nil)

var errNoLocalDescription = errors.New("no local description")

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// WebRTCConfig builds a configuration from ICE server URLs. An empty list
// falls back to DefaultWebRTCConfig.
func WebRTCConfig(urls []string) webrtc.Configuration {
	if len(urls) == 0 {
		return DefaultWebRTCConfig()
	}
	return webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: urls}}}
}

// NewAPI returns a pion API with the default codecs and interceptors.
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir)), nil
}

// Connection is a core.PeerConnection backed by *webrtc.PeerConnection.
// Descriptions cross the boundary as Jingle descriptions; role decides how
// content senders map onto SDP directions.
type Connection struct {
	pc     *webrtc.PeerConnection
	sid    domain.SessionID
	role   domain.Role
	logger zerolog.Logger

	mu           sync.Mutex
	handler      core.PeerHandler
	local        *domain.Description
	remote       *domain.Description
	senders      map[string][]*webrtc.RTPSender
	remoteTracks map[string]map[string]struct{}
}

func NewConnection(api *webrtc.API, cfg webrtc.Configuration, sid domain.SessionID, role domain.Role) (*Connection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return &Connection{
		pc:           pc,
		sid:          sid,
		role:         role,
		logger:       log.With().Str("module", "webrtc").Str("sid", string(sid)).Logger(),
		senders:      make(map[string][]*webrtc.RTPSender),
		remoteTracks: make(map[string]map[string]struct{}),
	}, nil
}

func (c *Connection) Start(_ context.Context, h core.PeerHandler) error {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		h.OnICEConnectionState(iceState(s))
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			h.OnEndOfCandidates()
			return
		}
		h.OnLocalCandidate(c.localCandidate(cand))
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.trackRemoteTrack(track.StreamID(), track.ID()) {
			h.OnRemoteStreamAdded(track.StreamID())
		}
		h.OnRemoteTrackAdded(track.StreamID(), &RemoteTrack{track: track})
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		h.OnDataChannel(dc.Label())
	})
	return nil
}

func (c *Connection) Offer(_ context.Context, cons domain.Constraints) (domain.Description, error) {
	if err := c.ensureReceivers(cons); err != nil {
		return domain.Description{}, err
	}
	offer, err := c.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: cons.ICERestart})
	if err != nil {
		return domain.Description{}, fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return domain.Description{}, fmt.Errorf("set local offer: %w", err)
	}
	return c.captureLocal()
}

func (c *Connection) Answer(_ context.Context, _ domain.Constraints) (domain.Description, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.Description{}, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return domain.Description{}, fmt.Errorf("set local answer: %w", err)
	}
	return c.captureLocal()
}

func (c *Connection) ApplyRemoteOffer(_ context.Context, d domain.Description) error {
	return c.applyRemote(webrtc.SDPTypeOffer, d)
}

func (c *Connection) ApplyRemoteAnswer(_ context.Context, d domain.Description) error {
	return c.applyRemote(webrtc.SDPTypeAnswer, d)
}

func (c *Connection) applyRemote(typ webrtc.SDPType, d domain.Description) error {
	raw, err := ToSDP(d, c.role.Peer())
	if err != nil {
		return err
	}
	if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: raw}); err != nil {
		return fmt.Errorf("set remote %s: %w", typ, err)
	}
	kept := d.Clone()
	c.mu.Lock()
	c.remote = &kept
	c.mu.Unlock()
	c.pruneRemoteTracks(d)
	return nil
}

func (c *Connection) LocalDescription() (domain.Description, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local == nil {
		return domain.Description{}, false
	}
	return c.local.Clone(), true
}

func (c *Connection) RemoteDescription() (domain.Description, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return domain.Description{}, false
	}
	return c.remote.Clone(), true
}

// AddLocalStream attaches every track of s. Only tracks created with
// NewLocalTrack can be sent.
func (c *Connection) AddLocalStream(s core.Stream) error {
	var added []*webrtc.RTPSender
	for _, t := range s.Tracks() {
		lt, ok := t.(*LocalTrack)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnsupportedTrack, t.ID())
		}
		sender, err := c.pc.AddTrack(lt.track)
		if err != nil {
			return fmt.Errorf("add track %s: %w", t.ID(), err)
		}
		added = append(added, sender)
	}
	c.mu.Lock()
	c.senders[s.ID()] = append(c.senders[s.ID()], added...)
	c.mu.Unlock()
	return nil
}

func (c *Connection) RemoveLocalStream(s core.Stream) error {
	c.mu.Lock()
	senders := c.senders[s.ID()]
	delete(c.senders, s.ID())
	c.mu.Unlock()
	for _, sender := range senders {
		if err := c.pc.RemoveTrack(sender); err != nil {
			return fmt.Errorf("remove track: %w", err)
		}
	}
	return nil
}

// AddICECandidate applies a remote candidate. pion needs no explicit end of
// candidates, so a nil candidate is only logged.
func (c *Connection) AddICECandidate(_ context.Context, content string, cand *domain.Candidate) error {
	if cand == nil {
		c.logger.Debug().Str("content", content).Msg("remote end of candidates")
		return nil
	}
	mid := content
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate: "candidate:" + marshalCandidate(*cand),
		SDPMid:    &mid,
	})
}

func (c *Connection) Close() error {
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}

func (c *Connection) captureLocal() (domain.Description, error) {
	ld := c.pc.LocalDescription()
	if ld == nil {
		return domain.Description{}, errNoLocalDescription
	}
	desc, err := FromSDP(ld.SDP, c.role)
	if err != nil {
		return domain.Description{}, err
	}
	kept := desc.Clone()
	c.mu.Lock()
	c.local = &kept
	c.mu.Unlock()
	return desc, nil
}

// ensureReceivers adds a receive-only transceiver for every wanted media
// kind that has none yet, so an offer without local tracks still asks for
// remote media.
func (c *Connection) ensureReceivers(cons domain.Constraints) error {
	have := map[webrtc.RTPCodecType]bool{}
	for _, t := range c.pc.GetTransceivers() {
		have[t.Kind()] = true
	}
	want := []struct {
		kind webrtc.RTPCodecType
		ok   bool
	}{
		{webrtc.RTPCodecTypeAudio, cons.WantsAudio()},
		{webrtc.RTPCodecTypeVideo, cons.WantsVideo()},
	}
	for _, w := range want {
		if !w.ok || have[w.kind] {
			continue
		}
		_, err := c.pc.AddTransceiverFromKind(w.kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return fmt.Errorf("add %s transceiver: %w", w.kind, err)
		}
	}
	return nil
}

func (c *Connection) localCandidate(cand *webrtc.ICECandidate) domain.LocalCandidate {
	lc := domain.LocalCandidate{
		Creator:       domain.RoleInitiator,
		TransportType: domain.TransportICEUDP,
		Candidate:     candidateFromWebRTC(cand),
	}
	if init := cand.ToJSON(); init.SDPMid != nil {
		lc.Content = *init.SDPMid
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local == nil {
		return lc
	}
	content := c.local.Content(lc.Content)
	if content == nil && len(c.local.Contents) > 0 {
		// bundled: all candidates belong to the first content
		content = &c.local.Contents[0]
		lc.Content = content.Name
	}
	if content != nil {
		lc.Creator = content.Creator
		if content.Transport != nil {
			lc.Ufrag = content.Transport.Ufrag
			lc.Pwd = content.Transport.Pwd
		}
	}
	return lc
}

// trackRemoteTrack records a remote track and reports whether its stream is new.
func (c *Connection) trackRemoteTrack(streamID, trackID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	tracks, ok := c.remoteTracks[streamID]
	if !ok {
		tracks = make(map[string]struct{})
		c.remoteTracks[streamID] = tracks
	}
	tracks[trackID] = struct{}{}
	return !ok
}

// pruneRemoteTracks reports remote tracks and streams whose sources are
// gone from the applied remote description.
func (c *Connection) pruneRemoteTracks(d domain.Description) {
	present := make(map[string]map[string]struct{})
	for _, content := range d.Contents {
		if !content.RTP() {
			continue
		}
		for _, src := range content.Description.Sources {
			stream := src.StreamID()
			if stream == "" {
				continue
			}
			if present[stream] == nil {
				present[stream] = make(map[string]struct{})
			}
			present[stream][src.TrackID()] = struct{}{}
		}
	}

	type removal struct{ stream, track string }
	var removedTracks []removal
	var removedStreams []string

	c.mu.Lock()
	for stream, tracks := range c.remoteTracks {
		for track := range tracks {
			if _, ok := present[stream][track]; !ok {
				delete(tracks, track)
				removedTracks = append(removedTracks, removal{stream, track})
			}
		}
		if len(tracks) == 0 {
			delete(c.remoteTracks, stream)
			removedStreams = append(removedStreams, stream)
		}
	}
	h := c.handler
	c.mu.Unlock()

	if h == nil {
		return
	}
	for _, r := range removedTracks {
		h.OnRemoteTrackRemoved(r.stream, r.track)
	}
	for _, s := range removedStreams {
		h.OnRemoteStreamRemoved(s)
	}
}

func iceState(s webrtc.ICEConnectionState) domain.ICEState {
	switch s {
	case webrtc.ICEConnectionStateChecking:
		return domain.ICEStateChecking
	case webrtc.ICEConnectionStateConnected:
		return domain.ICEStateConnected
	case webrtc.ICEConnectionStateCompleted:
		return domain.ICEStateCompleted
	case webrtc.ICEConnectionStateDisconnected:
		return domain.ICEStateDisconnected
	case webrtc.ICEConnectionStateFailed:
		return domain.ICEStateFailed
	case webrtc.ICEConnectionStateClosed:
		return domain.ICEStateClosed
	default:
		return domain.ICEStateNew
	}
}
