package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/jingle/internal/domain"
)

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleWhoAmI(
	id domain.ClientID,
	conn *WsSignalConn,
) {
	client := ctl.Orch.Registry.GetOrCreateClient(id)
	sessions := []domain.SessionID{}
	for _, s := range ctl.Orch.Registry.SessionsOf(id) {
		sessions = append(sessions, s.ID())
	}

	resp := struct {
		Type     string             `json:"type"`
		Client   domain.ClientID    `json:"client"`
		Name     string             `json:"name"`
		Sessions []domain.SessionID `json:"sessions"`
	}{
		Type:     "whoami",
		Client:   id,
		Name:     client.Name,
		Sessions: sessions,
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) handleRename(
	id domain.ClientID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendJSON(conn, errorFrame{Type: typeError, Error: "bad_payload", Condition: domain.ConditionBadRequest})
		return
	}
	if err := ctl.Orch.Registry.UpdateClientName(id, p.Name); err != nil {
		ctl.sendJSON(conn, errorFrame{Type: typeError, Error: "invalid_name", Condition: domain.ConditionBadRequest})
		return
	}
	ctl.handleWhoAmI(id, conn)
}
