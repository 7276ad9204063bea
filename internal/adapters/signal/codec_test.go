package signal

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/jingle/internal/domain"
)

const initiateFrame = `{
  "type": "jingle",
  "id": "42",
  "sid": "s1",
  "action": "session-initiate",
  "contents": [{
    "creator": "initiator",
    "name": "audio",
    "senders": "both",
    "description": {
      "descType": "rtp",
      "media": "audio",
      "payloads": [{"id": 111, "name": "opus", "clockrate": 48000, "channels": 2}],
      "sources": [{"ssrc": 1234, "parameters": [{"key": "msid", "value": "stream-a audio-a"}]}]
    },
    "transport": {"transportType": "iceUdp", "ufrag": "uf", "pwd": "pw"}
  }],
  "groups": [{"semantics": "BUNDLE", "contents": ["audio"]}]
}`

func TestDecodeMessage_Initiate(t *testing.T) {
	msg, id, err := decodeMessage([]byte(initiateFrame))
	require.NoError(t, err)

	assert.Equal(t, "42", id)
	assert.Equal(t, domain.SessionID("s1"), msg.SID)
	assert.Equal(t, domain.ActionSessionInitiate, msg.Action)
	require.NotNil(t, msg.Description)
	require.Len(t, msg.Description.Contents, 1)
	c := msg.Description.Contents[0]
	assert.Equal(t, domain.RoleInitiator, c.Creator)
	assert.True(t, c.RTP())
	assert.Equal(t, "stream-a", c.Description.Sources[0].StreamID())
	assert.Equal(t, domain.TransportICEUDP, c.Transport.TransportType)
	assert.Equal(t, []string{"audio"}, msg.Description.Groups[0].Contents)
	assert.Nil(t, msg.Info)
}

func TestDecodeMessage_NoContentsMeansNoDescription(t *testing.T) {
	msg, _, err := decodeMessage([]byte(`{"type":"jingle","sid":"s1","action":"session-initiate","contents":[]}`))
	require.NoError(t, err)
	assert.Nil(t, msg.Description)
}

func TestDecodeMessage_SessionInfo(t *testing.T) {
	cases := []struct {
		raw  string
		kind domain.InfoKind
		mute *domain.MuteInfo
	}{
		{`{"kind":"ringing"}`, domain.InfoRinging, nil},
		{`{"kind":"hold"}`, domain.InfoHold, nil},
		{`{"kind":"active"}`, domain.InfoActive, nil},
		{`{"kind":"mute","creator":"responder","name":"video"}`, domain.InfoMute, &domain.MuteInfo{Creator: domain.RoleResponder, Name: "video"}},
		{`{"kind":"unmute","creator":"initiator"}`, domain.InfoUnmute, &domain.MuteInfo{Creator: domain.RoleInitiator}},
		{`{"kind":"transfer"}`, domain.InfoUnknown, nil},
	}
	for _, tc := range cases {
		raw := `{"type":"jingle","sid":"s1","action":"session-info","info":` + tc.raw + `}`
		msg, _, err := decodeMessage([]byte(raw))
		require.NoError(t, err, tc.raw)
		require.NotNil(t, msg.Info, tc.raw)
		assert.Equal(t, tc.kind, msg.Info.Kind, tc.raw)
		assert.Equal(t, tc.mute, msg.Info.Mute, tc.raw)
	}
}

func TestDecodeMessage_Errors(t *testing.T) {
	_, _, err := decodeMessage([]byte(`{"type":`))
	assert.Error(t, err)

	_, id, err := decodeMessage([]byte(`{"type":"ping","id":"7"}`))
	assert.ErrorIs(t, err, errNotJingle)
	assert.Equal(t, "7", id)
}

func TestEncodeMessage(t *testing.T) {
	b, err := encodeMessage(domain.Message{
		SID:    "s1",
		Action: domain.ActionSessionInfo,
		Info:   &domain.SessionInfo{Kind: domain.InfoMute, Mute: &domain.MuteInfo{Creator: domain.RoleInitiator, Name: "audio"}},
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "jingle", got["type"])
	assert.Equal(t, "session-info", got["action"])
	assert.Equal(t, map[string]any{"kind": "mute", "creator": "initiator", "name": "audio"}, got["info"])
	assert.NotContains(t, got, "contents")

	b, err = encodeMessage(domain.Message{SID: "s1", Action: domain.ActionSessionTerminate, Reason: domain.ReasonBusy})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"jingle","sid":"s1","action":"session-terminate","reason":"busy"}`, string(b))
}

func TestEncodeMessage_DescriptionSurvivesDecode(t *testing.T) {
	in, _, err := decodeMessage([]byte(initiateFrame))
	require.NoError(t, err)

	b, err := encodeMessage(in)
	require.NoError(t, err)
	out, _, err := decodeMessage(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestErrorReply(t *testing.T) {
	r := errorReply("1", "s1", domain.NewProtocolError(domain.ConditionOutOfOrder, "late"))
	assert.Equal(t, domain.ConditionOutOfOrder, r.Condition)
	assert.Equal(t, "out-of-order: late", r.Error)

	r = errorReply("2", "s1", errors.New("boom"))
	assert.Equal(t, domain.ConditionGeneralError, r.Condition)
}
