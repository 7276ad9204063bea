package rtc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/jingle/internal/domain"
)

const fingerprint = "D2:FA:0E:C3:22:59:5E:14:95:69:92:3D:13:B4:84:24:2C:C2:A2:C0:3E:FD:34:8E:5E:EA:6F:AF:52:CE:E6:0F"

var sampleOffer = strings.Join([]string{
	"v=0",
	"o=- 4611731400430051336 2 IN IP4 127.0.0.1",
	"s=-",
	"t=0 0",
	"a=group:BUNDLE 0 1 2",
	"a=msid-semantic:WMS stream-a",
	"m=audio 9 UDP/TLS/RTP/SAVPF 111 0",
	"c=IN IP4 0.0.0.0",
	"a=candidate:1467250027 1 udp 2122260223 192.168.0.196 46243 typ host generation 0",
	"a=candidate:435653019 1 udp 1845501695 203.0.113.5 46243 typ srflx raddr 192.168.0.196 rport 46243 generation 0",
	"a=end-of-candidates",
	"a=ice-ufrag:EsAw",
	"a=ice-pwd:bP+XJMM09aR8AiX1jdukzR6Y",
	"a=fingerprint:sha-256 " + fingerprint,
	"a=setup:actpass",
	"a=mid:0",
	"a=sendrecv",
	"a=rtcp-mux",
	"a=rtpmap:111 opus/48000/2",
	"a=rtcp-fb:111 transport-cc",
	"a=fmtp:111 minptime=10;useinbandfec=1",
	"a=rtpmap:0 PCMU/8000",
	"a=ssrc:3570614608 cname:4TOk42mSjXCkVIa6",
	"a=ssrc:3570614608 msid:stream-a audio-a",
	"a=ssrc:3570614608 mslabel:stream-a",
	"a=ssrc:3570614608 label:audio-a",
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97",
	"c=IN IP4 0.0.0.0",
	"a=ice-ufrag:EsAw",
	"a=ice-pwd:bP+XJMM09aR8AiX1jdukzR6Y",
	"a=fingerprint:sha-256 " + fingerprint,
	"a=setup:actpass",
	"a=mid:1",
	"a=recvonly",
	"a=rtcp-mux",
	"a=rtpmap:96 VP8/90000",
	"a=rtcp-fb:96 nack",
	"a=rtcp-fb:96 nack pli",
	"a=rtpmap:97 rtx/90000",
	"a=fmtp:97 apt=96",
	"a=ssrc-group:FID 1001 1002",
	"a=ssrc:1001 cname:4TOk42mSjXCkVIa6",
	"a=ssrc:1002 cname:4TOk42mSjXCkVIa6",
	"a=msid:stream-a video-a",
	"m=application 9 UDP/DTLS/SCTP webrtc-datachannel",
	"c=IN IP4 0.0.0.0",
	"a=ice-ufrag:EsAw",
	"a=ice-pwd:bP+XJMM09aR8AiX1jdukzR6Y",
	"a=fingerprint:sha-256 " + fingerprint,
	"a=setup:actpass",
	"a=mid:2",
	"a=sctp-port:5000",
	"",
}, "\r\n")

func TestFromSDP_ParsesOffer(t *testing.T) {
	desc, err := FromSDP(sampleOffer, domain.RoleInitiator)
	require.NoError(t, err)

	assert.Equal(t, []domain.ContentGroup{{Semantics: "BUNDLE", Contents: []string{"0", "1", "2"}}}, desc.Groups)
	require.Len(t, desc.Contents, 3)

	audio := desc.Content("0")
	require.NotNil(t, audio)
	assert.Equal(t, domain.SendersBoth, audio.Senders)
	md := audio.Description
	assert.Equal(t, domain.DescTypeRTP, md.DescType)
	assert.Equal(t, domain.MediaAudio, md.Media)
	assert.True(t, md.Mux)
	assert.Equal(t, []domain.Payload{
		{
			ID: 111, Name: "opus", ClockRate: 48000, Channels: 2,
			Parameters: []domain.Parameter{{Key: "minptime", Value: "10"}, {Key: "useinbandfec", Value: "1"}},
			Feedback:   []string{"transport-cc"},
		},
		{ID: 0, Name: "PCMU", ClockRate: 8000},
	}, md.Payloads)
	require.Len(t, md.Sources, 1)
	assert.Equal(t, uint32(3570614608), md.Sources[0].SSRC)
	assert.Equal(t, "stream-a", md.Sources[0].StreamID())
	assert.Equal(t, "audio-a", md.Sources[0].TrackID())

	tr := audio.Transport
	assert.Equal(t, domain.TransportICEUDP, tr.TransportType)
	assert.Equal(t, "EsAw", tr.Ufrag)
	assert.Equal(t, []domain.Fingerprint{{Hash: "sha-256", Value: fingerprint, Setup: "actpass"}}, tr.Fingerprints)
	assert.True(t, tr.GatheringComplete)
	require.Len(t, tr.Candidates, 2)
	assert.Equal(t, domain.Candidate{
		Foundation: "1467250027", Component: 1, Protocol: "udp", Priority: 2122260223,
		IP: "192.168.0.196", Port: 46243, Type: "host",
	}, tr.Candidates[0])
	assert.Equal(t, "srflx", tr.Candidates[1].Type)
	assert.Equal(t, "192.168.0.196", tr.Candidates[1].RelAddr)
	assert.Equal(t, uint16(46243), tr.Candidates[1].RelPort)

	video := desc.Content("1")
	require.NotNil(t, video)
	assert.Equal(t, domain.SendersResponder, video.Senders, "recvonly from the initiator")
	assert.Equal(t, []string{"nack", "nack pli"}, video.Description.Payloads[0].Feedback)
	assert.Equal(t, []domain.SourceGroup{{Semantics: "FID", Sources: []uint32{1001, 1002}}}, video.Description.SourceGroups)
	for _, s := range video.Description.Sources {
		assert.Equal(t, "stream-a", s.StreamID(), "media-level msid applies to every source")
	}

	data := desc.Content("2")
	require.NotNil(t, data)
	assert.Equal(t, domain.DescTypeDataChannel, data.Description.DescType)
	assert.Equal(t, uint16(5000), data.Description.SCTPPort)
	assert.Nil(t, data.Description.Payloads)
}

func TestFromSDP_AuthorDecidesSenders(t *testing.T) {
	desc, err := FromSDP(sampleOffer, domain.RoleResponder)
	require.NoError(t, err)
	assert.Equal(t, domain.SendersInitiator, desc.Content("1").Senders)
}

func TestFromSDP_Invalid(t *testing.T) {
	_, err := FromSDP("not sdp", domain.RoleInitiator)
	assert.Error(t, err)
}

func TestToSDP_RoundTrip(t *testing.T) {
	desc, err := FromSDP(sampleOffer, domain.RoleInitiator)
	require.NoError(t, err)

	for _, author := range []domain.Role{domain.RoleInitiator, domain.RoleResponder} {
		raw, err := ToSDP(desc, author)
		require.NoError(t, err)
		back, err := FromSDP(raw, author)
		require.NoError(t, err)
		assert.Equal(t, desc, back, "author %s", author)
	}
}

func TestToSDP_ContentWithoutDescription(t *testing.T) {
	_, err := ToSDP(domain.Description{Contents: []domain.Content{{Name: "audio"}}}, domain.RoleInitiator)
	assert.ErrorIs(t, err, errNoDescription)
}

func TestDirection(t *testing.T) {
	cases := []struct {
		senders domain.Senders
		author  domain.Role
		want    string
	}{
		{domain.SendersBoth, domain.RoleInitiator, "sendrecv"},
		{"", domain.RoleResponder, "sendrecv"},
		{domain.SendersNone, domain.RoleInitiator, "inactive"},
		{domain.SendersInitiator, domain.RoleInitiator, "sendonly"},
		{domain.SendersInitiator, domain.RoleResponder, "recvonly"},
		{domain.SendersResponder, domain.RoleResponder, "sendonly"},
		{domain.SendersResponder, domain.RoleInitiator, "recvonly"},
	}
	for _, tc := range cases {
		got := direction(tc.senders, tc.author)
		assert.Equal(t, tc.want, got, "%s/%s", tc.senders, tc.author)
		if tc.senders != "" {
			assert.Equal(t, tc.senders, senders(got, tc.author))
		}
	}
}

func TestParseCandidate(t *testing.T) {
	raw := "candidate:842163049 1 tcp 1518280447 192.168.0.196 9 typ host tcptype active generation 0"

	c, err := ParseCandidate(raw)
	require.NoError(t, err)
	assert.Equal(t, "tcp", c.Protocol)
	assert.Equal(t, "active", c.TCPType)
	assert.Equal(t, uint16(9), c.Port)
	assert.Equal(t, strings.TrimPrefix(raw, "candidate:"), marshalCandidate(c))

	_, err = ParseCandidate("candidate:garbage")
	assert.Error(t, err)
}
