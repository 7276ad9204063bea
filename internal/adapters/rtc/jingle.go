package rtc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"

	"github.com/dkeye/jingle/internal/domain"
)

const (
	attrMID             = "mid"
	attrGroup           = "group"
	attrMSIDSemantic    = "msid-semantic"
	attrMSID            = "msid"
	attrICEUfrag        = "ice-ufrag"
	attrICEPwd          = "ice-pwd"
	attrFingerprint     = "fingerprint"
	attrSetup           = "setup"
	attrCandidate       = "candidate"
	attrEndOfCandidates = "end-of-candidates"
	attrRTCPMux         = "rtcp-mux"
	attrRTPMap          = "rtpmap"
	attrFMTP            = "fmtp"
	attrRTCPFB          = "rtcp-fb"
	attrSSRC            = "ssrc"
	attrSSRCGroup       = "ssrc-group"
	attrSCTPPort        = "sctp-port"

	dirSendRecv = "sendrecv"
	dirSendOnly = "sendonly"
	dirRecvOnly = "recvonly"
	dirInactive = "inactive"
)

var errNoDescription = errors.New("content has no media description")

// ToSDP renders desc as an SDP document written by author. Content senders
// are translated into the author's send/receive direction.
func ToSDP(desc domain.Description, author domain.Role) (string, error) {
	sd, err := sdp.NewJSEPSessionDescription(false)
	if err != nil {
		return "", fmt.Errorf("new session description: %w", err)
	}
	for _, g := range desc.Groups {
		sd.WithValueAttribute(attrGroup, strings.Join(append([]string{g.Semantics}, g.Contents...), " "))
	}
	sd.WithValueAttribute(attrMSIDSemantic, "WMS *")

	for _, content := range desc.Contents {
		md, err := mediaToSDP(content, author)
		if err != nil {
			return "", fmt.Errorf("content %s: %w", content.Name, err)
		}
		sd.WithMedia(md)
	}

	raw, err := sd.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal sdp: %w", err)
	}
	return string(raw), nil
}

func mediaToSDP(content domain.Content, author domain.Role) (*sdp.MediaDescription, error) {
	desc := content.Description
	if desc == nil {
		return nil, errNoDescription
	}
	media := string(desc.Media)
	if desc.Media == domain.MediaOther || media == "" {
		media = content.Name
	}

	md := sdp.NewJSEPMediaDescription(media, nil)
	if desc.DescType == domain.DescTypeDataChannel {
		md.MediaName.Protos = []string{"UDP", "DTLS", "SCTP"}
		md.MediaName.Formats = []string{"webrtc-datachannel"}
	}
	md.WithValueAttribute(attrMID, content.Name)

	if tr := content.Transport; tr != nil {
		if tr.Ufrag != "" {
			md.WithICECredentials(tr.Ufrag, tr.Pwd)
		}
		for _, fp := range tr.Fingerprints {
			md.WithFingerprint(fp.Hash, fp.Value)
			if fp.Setup != "" {
				md.WithValueAttribute(attrSetup, fp.Setup)
			}
		}
		for _, c := range tr.Candidates {
			md.WithCandidate(marshalCandidate(c))
		}
		if tr.GatheringComplete {
			md.WithPropertyAttribute(attrEndOfCandidates)
		}
	}

	if desc.DescType == domain.DescTypeDataChannel {
		if desc.SCTPPort > 0 {
			md.WithValueAttribute(attrSCTPPort, strconv.Itoa(int(desc.SCTPPort)))
		}
		return md, nil
	}

	md.WithPropertyAttribute(direction(content.Senders, author))
	if desc.Mux {
		md.WithPropertyAttribute(attrRTCPMux)
	}
	for _, p := range desc.Payloads {
		md.WithCodec(p.ID, p.Name, p.ClockRate, p.Channels, formatParams(p.Parameters))
		for _, fb := range p.Feedback {
			md.WithValueAttribute(attrRTCPFB, fmt.Sprintf("%d %s", p.ID, fb))
		}
	}
	for _, g := range desc.SourceGroups {
		fields := make([]string, 0, len(g.Sources)+1)
		fields = append(fields, g.Semantics)
		for _, ssrc := range g.Sources {
			fields = append(fields, strconv.FormatUint(uint64(ssrc), 10))
		}
		md.WithValueAttribute(attrSSRCGroup, strings.Join(fields, " "))
	}
	for _, src := range desc.Sources {
		for _, p := range src.Parameters {
			value := p.Key
			if p.Value != "" {
				value += ":" + p.Value
			}
			md.WithValueAttribute(attrSSRC, fmt.Sprintf("%d %s", src.SSRC, value))
		}
	}
	return md, nil
}

// FromSDP parses an SDP document written by author into a description.
func FromSDP(raw string, author domain.Role) (domain.Description, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(raw)); err != nil {
		return domain.Description{}, fmt.Errorf("parse sdp: %w", err)
	}

	session := sessionDefaults{}
	session.ufrag, _ = sd.Attribute(attrICEUfrag)
	session.pwd, _ = sd.Attribute(attrICEPwd)
	session.fingerprint, _ = sd.Attribute(attrFingerprint)
	session.setup, _ = sd.Attribute(attrSetup)

	var out domain.Description
	for _, a := range sd.Attributes {
		if a.Key != attrGroup {
			continue
		}
		fields := strings.Fields(a.Value)
		if len(fields) == 0 {
			continue
		}
		out.Groups = append(out.Groups, domain.ContentGroup{Semantics: fields[0], Contents: fields[1:]})
	}

	for i, md := range sd.MediaDescriptions {
		content, err := contentFromSDP(md, i, author, session)
		if err != nil {
			return domain.Description{}, err
		}
		out.Contents = append(out.Contents, content)
	}
	return out, nil
}

type sessionDefaults struct {
	ufrag, pwd, fingerprint, setup string
}

func contentFromSDP(md *sdp.MediaDescription, index int, author domain.Role, session sessionDefaults) (domain.Content, error) {
	name, ok := md.Attribute(attrMID)
	if !ok {
		name = strconv.Itoa(index)
	}
	media := domain.ParseMediaType(md.MediaName.Media)
	desc := &domain.MediaDescription{DescType: domain.DescTypeRTP, Media: media}
	if media == domain.MediaData {
		desc.DescType = domain.DescTypeDataChannel
	}
	tr := &domain.Transport{TransportType: domain.TransportICEUDP, Ufrag: session.ufrag, Pwd: session.pwd}
	content := domain.Content{Creator: domain.RoleInitiator, Name: name, Senders: domain.SendersBoth}

	payloadIdx := make(map[uint8]int)
	if desc.DescType == domain.DescTypeRTP {
		for _, f := range md.MediaName.Formats {
			pt, err := strconv.ParseUint(f, 10, 8)
			if err != nil {
				continue
			}
			payloadIdx[uint8(pt)] = len(desc.Payloads)
			desc.Payloads = append(desc.Payloads, domain.Payload{ID: uint8(pt)})
		}
	}
	payload := func(value string) (*domain.Payload, string) {
		ptStr, rest, _ := strings.Cut(value, " ")
		pt, err := strconv.ParseUint(ptStr, 10, 8)
		if err != nil {
			return nil, ""
		}
		i, ok := payloadIdx[uint8(pt)]
		if !ok {
			return nil, ""
		}
		return &desc.Payloads[i], rest
	}

	var fingerprints []string
	setup := session.setup
	mediaMSID := ""
	for _, a := range md.Attributes {
		switch a.Key {
		case attrICEUfrag:
			tr.Ufrag = a.Value
		case attrICEPwd:
			tr.Pwd = a.Value
		case attrFingerprint:
			fingerprints = append(fingerprints, a.Value)
		case attrSetup:
			setup = a.Value
		case attrCandidate:
			c, err := ice.UnmarshalCandidate(a.Value)
			if err != nil {
				return domain.Content{}, fmt.Errorf("content %s: %w", name, err)
			}
			tr.Candidates = append(tr.Candidates, candidateFromICE(c))
		case attrEndOfCandidates:
			tr.GatheringComplete = true
		case attrRTCPMux:
			desc.Mux = true
		case dirSendRecv, dirSendOnly, dirRecvOnly, dirInactive:
			content.Senders = senders(a.Key, author)
		case attrSCTPPort:
			if port, err := strconv.ParseUint(a.Value, 10, 16); err == nil {
				desc.SCTPPort = uint16(port)
			}
		case attrMSID:
			mediaMSID = a.Value
		case attrRTPMap:
			if p, rest := payload(a.Value); p != nil {
				parseRTPMap(p, rest)
			}
		case attrFMTP:
			if p, rest := payload(a.Value); p != nil {
				p.Parameters = parseParams(rest)
			}
		case attrRTCPFB:
			if p, rest := payload(a.Value); p != nil {
				p.Feedback = append(p.Feedback, rest)
			}
		case attrSSRC:
			addSourceParam(desc, a.Value)
		case attrSSRCGroup:
			if g, ok := parseSourceGroup(a.Value); ok {
				desc.SourceGroups = append(desc.SourceGroups, g)
			}
		}
	}

	if len(fingerprints) == 0 && session.fingerprint != "" {
		fingerprints = append(fingerprints, session.fingerprint)
	}
	for _, fp := range fingerprints {
		hash, value, _ := strings.Cut(fp, " ")
		tr.Fingerprints = append(tr.Fingerprints, domain.Fingerprint{Hash: hash, Value: value, Setup: setup})
	}
	if mediaMSID != "" {
		for i := range desc.Sources {
			if _, ok := desc.Sources[i].Param(domain.ParamMSID); !ok {
				desc.Sources[i].Parameters = append(desc.Sources[i].Parameters, domain.Parameter{Key: domain.ParamMSID, Value: mediaMSID})
			}
		}
	}

	content.Description = desc
	content.Transport = tr
	return content, nil
}

func parseRTPMap(p *domain.Payload, value string) {
	parts := strings.Split(value, "/")
	p.Name = parts[0]
	if len(parts) > 1 {
		if rate, err := strconv.ParseUint(parts[1], 10, 32); err == nil {
			p.ClockRate = uint32(rate)
		}
	}
	if len(parts) > 2 {
		if ch, err := strconv.ParseUint(parts[2], 10, 16); err == nil {
			p.Channels = uint16(ch)
		}
	}
}

func parseParams(value string) []domain.Parameter {
	var out []domain.Parameter
	for _, kv := range strings.Split(value, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, _ := strings.Cut(kv, "=")
		out = append(out, domain.Parameter{Key: k, Value: v})
	}
	return out
}

func formatParams(params []domain.Parameter) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.Value == "" {
			parts = append(parts, p.Key)
			continue
		}
		parts = append(parts, p.Key+"="+p.Value)
	}
	return strings.Join(parts, ";")
}

// addSourceParam handles "a=ssrc:<ssrc> <key>[:<value>]". Sources keep the
// order of their first appearance.
func addSourceParam(desc *domain.MediaDescription, value string) {
	ssrcStr, attr, _ := strings.Cut(value, " ")
	ssrc, err := strconv.ParseUint(ssrcStr, 10, 32)
	if err != nil {
		return
	}
	key, val, _ := strings.Cut(attr, ":")
	param := domain.Parameter{Key: key, Value: val}
	for i := range desc.Sources {
		if desc.Sources[i].SSRC == uint32(ssrc) {
			desc.Sources[i].Parameters = append(desc.Sources[i].Parameters, param)
			return
		}
	}
	desc.Sources = append(desc.Sources, domain.Source{SSRC: uint32(ssrc), Parameters: []domain.Parameter{param}})
}

func parseSourceGroup(value string) (domain.SourceGroup, bool) {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return domain.SourceGroup{}, false
	}
	g := domain.SourceGroup{Semantics: fields[0]}
	for _, f := range fields[1:] {
		ssrc, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return domain.SourceGroup{}, false
		}
		g.Sources = append(g.Sources, uint32(ssrc))
	}
	return g, true
}

// direction maps content senders onto the SDP direction of author.
func direction(s domain.Senders, author domain.Role) string {
	switch s {
	case domain.SendersInitiator:
		if author == domain.RoleInitiator {
			return dirSendOnly
		}
		return dirRecvOnly
	case domain.SendersResponder:
		if author == domain.RoleResponder {
			return dirSendOnly
		}
		return dirRecvOnly
	case domain.SendersNone:
		return dirInactive
	default:
		return dirSendRecv
	}
}

func senders(dir string, author domain.Role) domain.Senders {
	var sender domain.Role
	switch dir {
	case dirSendOnly:
		sender = author
	case dirRecvOnly:
		sender = author.Peer()
	case dirInactive:
		return domain.SendersNone
	default:
		return domain.SendersBoth
	}
	if sender == domain.RoleResponder {
		return domain.SendersResponder
	}
	return domain.SendersInitiator
}
