package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/jingle/internal/domain"
)

// handleJingle routes one protocol message and replies with an ack or an
// error carrying the condition.
func (ctl *SignalWSController) handleJingle(
	ctx context.Context,
	client domain.ClientID,
	conn *WsSignalConn,
	data []byte,
) {
	msg, id, err := decodeMessage(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("client", string(client)).Msg("bad jingle frame")
		ctl.sendJSON(conn, errorReply(id, "", domain.NewProtocolError(domain.ConditionBadRequest, "malformed message")))
		return
	}
	if msg.Action == domain.ActionSessionInitiate && !ctl.Limiter.Allow(client) {
		log.Warn().Str("module", "signal").Str("client", string(client)).Msg("session-initiate rate limited")
		ctl.sendJSON(conn, errorReply(id, msg.SID, domain.NewProtocolError(domain.ConditionResourceConstraint, "too many calls")))
		return
	}

	if err := ctl.Orch.Dispatch(ctx, client, msg); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("sid", string(msg.SID)).Str("action", string(msg.Action)).Msg("jingle rejected")
		ctl.sendJSON(conn, errorReply(id, msg.SID, err))
		return
	}
	ctl.sendJSON(conn, ackFrame{Type: typeAck, ID: id, SID: msg.SID})
}

// handleCall asks the server to call this client.
func (ctl *SignalWSController) handleCall(
	ctx context.Context,
	client domain.ClientID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		ID          string              `json:"id"`
		Constraints *domain.Constraints `json:"constraints,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(conn, errorFrame{Type: typeError, Error: "bad_payload", Condition: domain.ConditionBadRequest})
		return
	}
	if !ctl.Limiter.Allow(client) {
		ctl.sendJSON(conn, errorReply(p.ID, "", domain.NewProtocolError(domain.ConditionResourceConstraint, "too many calls")))
		return
	}
	sid, err := ctl.Orch.Call(ctx, client, p.Constraints)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("client", string(client)).Msg("call")
		ctl.sendJSON(conn, errorReply(p.ID, sid, err))
		return
	}
	resp := struct {
		Type string           `json:"type"`
		ID   string           `json:"id,omitempty"`
		SID  domain.SessionID `json:"sid"`
	}{
		Type: "calling",
		ID:   p.ID,
		SID:  sid,
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleHangup(
	ctx context.Context,
	client domain.ClientID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		ID     string           `json:"id"`
		SID    domain.SessionID `json:"sid"`
		Reason domain.Reason    `json:"reason"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendJSON(conn, errorFrame{Type: typeError, Error: "bad_payload", Condition: domain.ConditionBadRequest})
		return
	}
	if p.Reason == "" {
		p.Reason = domain.ReasonSuccess
	}
	if err := ctl.Orch.HangupFrom(ctx, client, p.SID, p.Reason); err != nil {
		ctl.sendJSON(conn, errorReply(p.ID, p.SID, domain.NewProtocolError(domain.ConditionUnknownSession, "%s", p.SID)))
		return
	}
	ctl.sendJSON(conn, ackFrame{Type: typeAck, ID: p.ID, SID: p.SID})
}
