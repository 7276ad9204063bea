package domain

import "strings"

type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
	MediaData  MediaType = "application"
	MediaOther MediaType = "other"
)

func ParseMediaType(s string) MediaType {
	switch MediaType(s) {
	case MediaAudio, MediaVideo, MediaData:
		return MediaType(s)
	default:
		return MediaOther
	}
}

const (
	DescTypeRTP         = "rtp"
	DescTypeDataChannel = "datachannel"
)

// Senders is the Jingle content direction, always relative to the session
// roles rather than to the local side.
type Senders string

const (
	SendersBoth      Senders = "both"
	SendersInitiator Senders = "initiator"
	SendersResponder Senders = "responder"
	SendersNone      Senders = "none"
)

// Well-known source parameter keys.
const (
	ParamCName   = "cname"
	ParamMSID    = "msid"
	ParamMSLabel = "mslabel"
	ParamLabel   = "label"
)

type Parameter struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Source is one SSRC with its ordered attributes.
type Source struct {
	SSRC       uint32      `json:"ssrc"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Param returns the first parameter with the given key.
func (s Source) Param(key string) (string, bool) {
	for _, p := range s.Parameters {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// StreamID is the first token of the msid attribute ("<stream> <track>").
func (s Source) StreamID() string {
	v, ok := s.Param(ParamMSID)
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(v, " ")
	return id
}

// TrackID is the second token of the msid attribute.
func (s Source) TrackID() string {
	v, ok := s.Param(ParamMSID)
	if !ok {
		return ""
	}
	_, track, _ := strings.Cut(v, " ")
	return track
}

type SourceGroup struct {
	Semantics string   `json:"semantics"`
	Sources   []uint32 `json:"sources"`
}

type Payload struct {
	ID         uint8       `json:"id"`
	Name       string      `json:"name"`
	ClockRate  uint32      `json:"clockrate,omitempty"`
	Channels   uint16      `json:"channels,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
	Feedback   []string    `json:"feedback,omitempty"`
}

// MediaDescription is the negotiated state of one media line.
type MediaDescription struct {
	DescType     string        `json:"descType"`
	Media        MediaType     `json:"media"`
	Mux          bool          `json:"mux,omitempty"`
	SCTPPort     uint16        `json:"sctpPort,omitempty"`
	Payloads     []Payload     `json:"payloads,omitempty"`
	Sources      []Source      `json:"sources,omitempty"`
	SourceGroups []SourceGroup `json:"sourceGroups,omitempty"`
}

type Fingerprint struct {
	Hash  string `json:"hash"`
	Value string `json:"value"`
	Setup string `json:"setup,omitempty"`
}

type Candidate struct {
	Foundation string `json:"foundation"`
	Component  uint16 `json:"component"`
	Protocol   string `json:"protocol"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
	RelAddr    string `json:"relAddr,omitempty"`
	RelPort    uint16 `json:"relPort,omitempty"`
	TCPType    string `json:"tcpType,omitempty"`
	Generation int    `json:"generation"`
	ID         string `json:"id,omitempty"`
}

// TransportICEUDP is the only transport type carried in descriptions.
const TransportICEUDP = "iceUdp"

type Transport struct {
	TransportType     string        `json:"transportType"`
	Ufrag             string        `json:"ufrag,omitempty"`
	Pwd               string        `json:"pwd,omitempty"`
	Fingerprints      []Fingerprint `json:"fingerprints,omitempty"`
	Candidates        []Candidate   `json:"candidates,omitempty"`
	GatheringComplete bool          `json:"gatheringComplete,omitempty"`
}

// Content is one named media line of a session description.
type Content struct {
	Creator     Role              `json:"creator"`
	Name        string            `json:"name"`
	Senders     Senders           `json:"senders,omitempty"`
	Description *MediaDescription `json:"description,omitempty"`
	Transport   *Transport        `json:"transport,omitempty"`
}

// RTP reports whether the content carries an RTP media description.
func (c Content) RTP() bool {
	return c.Description != nil && c.Description.DescType == DescTypeRTP
}

type ContentGroup struct {
	Semantics string   `json:"semantics"`
	Contents  []string `json:"contents"`
}

// Description is a Jingle session description: the content set of an offer,
// an answer or a partial source update.
type Description struct {
	Contents []Content      `json:"contents"`
	Groups   []ContentGroup `json:"groups,omitempty"`
}

// Content returns a pointer into d for the content with the given name.
func (d *Description) Content(name string) *Content {
	for i := range d.Contents {
		if d.Contents[i].Name == name {
			return &d.Contents[i]
		}
	}
	return nil
}

// Clone returns a deep copy of d.
func (d Description) Clone() Description {
	out := Description{}
	if d.Contents != nil {
		out.Contents = make([]Content, len(d.Contents))
		for i, c := range d.Contents {
			out.Contents[i] = c.clone()
		}
	}
	if d.Groups != nil {
		out.Groups = make([]ContentGroup, len(d.Groups))
		for i, g := range d.Groups {
			out.Groups[i] = ContentGroup{Semantics: g.Semantics, Contents: append([]string(nil), g.Contents...)}
		}
	}
	return out
}

func (c Content) clone() Content {
	out := c
	if c.Description != nil {
		md := c.Description.Clone()
		out.Description = &md
	}
	if c.Transport != nil {
		t := *c.Transport
		t.Fingerprints = append([]Fingerprint(nil), c.Transport.Fingerprints...)
		t.Candidates = append([]Candidate(nil), c.Transport.Candidates...)
		out.Transport = &t
	}
	return out
}

// Clone returns a deep copy of md.
func (md MediaDescription) Clone() MediaDescription {
	out := md
	if md.Payloads != nil {
		out.Payloads = make([]Payload, len(md.Payloads))
		for i, p := range md.Payloads {
			p.Parameters = append([]Parameter(nil), p.Parameters...)
			p.Feedback = append([]string(nil), p.Feedback...)
			out.Payloads[i] = p
		}
	}
	out.Sources = CloneSources(md.Sources)
	if md.SourceGroups != nil {
		out.SourceGroups = make([]SourceGroup, len(md.SourceGroups))
		for i, g := range md.SourceGroups {
			out.SourceGroups[i] = SourceGroup{Semantics: g.Semantics, Sources: append([]uint32(nil), g.Sources...)}
		}
	}
	return out
}

func CloneSources(in []Source) []Source {
	if in == nil {
		return nil
	}
	out := make([]Source, len(in))
	for i, s := range in {
		out[i] = Source{SSRC: s.SSRC, Parameters: append([]Parameter(nil), s.Parameters...)}
	}
	return out
}

// LocalCandidate is a gathered ICE candidate together with the transport
// metadata of the content it belongs to.
type LocalCandidate struct {
	Content       string
	Creator       Role
	TransportType string
	Ufrag         string
	Pwd           string
	Candidate     Candidate
}
