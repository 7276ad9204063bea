package domain

// Constraints describe the media directions a side wants to negotiate.
// A nil receive flag means "not specified" and behaves like true.
type Constraints struct {
	ReceiveAudio *bool `json:"offerToReceiveAudio,omitempty" mapstructure:"offer_to_receive_audio"`
	ReceiveVideo *bool `json:"offerToReceiveVideo,omitempty" mapstructure:"offer_to_receive_video"`
	ICERestart   bool  `json:"iceRestart,omitempty" mapstructure:"ice_restart"`
}

// DefaultConstraints requests both audio and video in both directions.
func DefaultConstraints() Constraints {
	yes := true
	return Constraints{ReceiveAudio: &yes, ReceiveVideo: &yes}
}

func (c Constraints) WantsAudio() bool { return c.ReceiveAudio == nil || *c.ReceiveAudio }
func (c Constraints) WantsVideo() bool { return c.ReceiveVideo == nil || *c.ReceiveVideo }

// SendOnly reports whether the constraints explicitly refuse to receive the
// given media type.
func (c Constraints) SendOnly(media MediaType) bool {
	switch media {
	case MediaAudio:
		return c.ReceiveAudio != nil && !*c.ReceiveAudio
	case MediaVideo:
		return c.ReceiveVideo != nil && !*c.ReceiveVideo
	default:
		return false
	}
}

// Bool is a small helper for building constraints literals.
func Bool(v bool) *bool { return &v }
