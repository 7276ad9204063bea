package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/jingle/internal/domain"
)

const (
	typeJingle = "jingle"
	typeAck    = "ack"
	typeError  = "error"
)

var errNotJingle = errors.New("not a jingle frame")

// jingleFrame is the wire form of one protocol message.
type jingleFrame struct {
	Type     string                `json:"type"`
	ID       string                `json:"id,omitempty"`
	SID      domain.SessionID      `json:"sid"`
	Action   domain.Action         `json:"action"`
	Contents []domain.Content      `json:"contents,omitempty"`
	Groups   []domain.ContentGroup `json:"groups,omitempty"`
	Info     *infoFrame            `json:"info,omitempty"`
	Reason   domain.Reason         `json:"reason,omitempty"`
}

type infoFrame struct {
	Kind    string      `json:"kind"`
	Creator domain.Role `json:"creator,omitempty"`
	Name    string      `json:"name,omitempty"`
}

type ackFrame struct {
	Type string           `json:"type"`
	ID   string           `json:"id,omitempty"`
	SID  domain.SessionID `json:"sid,omitempty"`
}

type errorFrame struct {
	Type      string           `json:"type"`
	ID        string           `json:"id,omitempty"`
	SID       domain.SessionID `json:"sid,omitempty"`
	Error     string           `json:"error"`
	Condition domain.Condition `json:"condition,omitempty"`
}

var infoKinds = []domain.InfoKind{
	domain.InfoRinging,
	domain.InfoHold,
	domain.InfoActive,
	domain.InfoMute,
	domain.InfoUnmute,
}

func parseInfoKind(s string) domain.InfoKind {
	for _, k := range infoKinds {
		if k.String() == s {
			return k
		}
	}
	return domain.InfoUnknown
}

// encodeMessage renders msg as a jingle frame.
func encodeMessage(msg domain.Message) ([]byte, error) {
	f := jingleFrame{
		Type:   typeJingle,
		SID:    msg.SID,
		Action: msg.Action,
		Reason: msg.Reason,
	}
	if msg.Description != nil {
		f.Contents = msg.Description.Contents
		f.Groups = msg.Description.Groups
	}
	if msg.Info != nil {
		f.Info = &infoFrame{Kind: msg.Info.Kind.String()}
		if msg.Info.Mute != nil {
			f.Info.Creator = msg.Info.Mute.Creator
			f.Info.Name = msg.Info.Mute.Name
		}
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Action, err)
	}
	return b, nil
}

// decodeMessage parses a jingle frame. The session-info kind is resolved
// here, once; an unrecognized kind decodes as domain.InfoUnknown.
func decodeMessage(data []byte) (domain.Message, string, error) {
	var f jingleFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return domain.Message{}, "", fmt.Errorf("decode jingle frame: %w", err)
	}
	if f.Type != typeJingle {
		return domain.Message{}, f.ID, errNotJingle
	}
	msg := domain.Message{
		SID:    f.SID,
		Action: f.Action,
		Reason: f.Reason,
	}
	if len(f.Contents) > 0 {
		msg.Description = &domain.Description{Contents: f.Contents, Groups: f.Groups}
	}
	if f.Info != nil {
		info := &domain.SessionInfo{Kind: parseInfoKind(f.Info.Kind)}
		if info.Kind == domain.InfoMute || info.Kind == domain.InfoUnmute {
			info.Mute = &domain.MuteInfo{Creator: f.Info.Creator, Name: f.Info.Name}
		}
		msg.Info = info
	}
	return msg, f.ID, nil
}

// errorReply builds the error frame for err. Protocol errors keep their
// condition; anything else is reported as general-error.
func errorReply(id string, sid domain.SessionID, err error) errorFrame {
	out := errorFrame{Type: typeError, ID: id, SID: sid, Error: err.Error(), Condition: domain.ConditionGeneralError}
	var perr *domain.ProtocolError
	if errors.As(err, &perr) {
		out.Condition = perr.Condition
	}
	return out
}
