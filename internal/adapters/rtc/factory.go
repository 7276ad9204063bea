package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/jingle/internal/app/sfu"
	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

// Factory creates pion peer connections sharing one API and configuration.
type Factory struct {
	API    *webrtc.API
	Config webrtc.Configuration
}

func NewFactory(iceServers []string) (*Factory, error) {
	api, err := NewAPI()
	if err != nil {
		return nil, err
	}
	return &Factory{API: api, Config: WebRTCConfig(iceServers)}, nil
}

func (f *Factory) NewPeer(sid domain.SessionID, role domain.Role) (core.PeerConnection, error) {
	c, err := NewConnection(f.API, f.Config, sid, role)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// EchoStream returns a local stream with one track matching the codec of
// remote, and the sink that feeds it.
func (f *Factory) EchoStream(sid domain.SessionID, remote core.Track) (core.Stream, sfu.Sink, error) {
	rt, ok := remote.(*RemoteTrack)
	if !ok {
		return nil, nil, fmt.Errorf("echo %s: %w", remote.ID(), ErrUnsupportedTrack)
	}
	streamID := "echo-" + string(sid)
	lt, err := NewLocalTrack(rt.Codec(), "echo-"+rt.ID(), streamID)
	if err != nil {
		return nil, nil, err
	}
	return NewLocalStream(streamID, lt), lt, nil
}
