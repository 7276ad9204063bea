package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/jingle/internal/app/sfu"
	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

// OnEvent is registered as the first observer of every session.
func (o *Orchestrator) OnEvent(e core.Event) {
	logger := log.With().Str("module", "orch").Str("sid", string(e.Session)).Logger()
	switch e.Kind {
	case core.EventEnded:
		logger.Info().Str("reason", string(e.Reason)).Msg("session ended")
		o.cleanup(e.Session)
	case core.EventPeerTrackAdded:
		o.loopback(e)
	case core.EventICEFailed:
		logger.Warn().Msg("ice failed")
	case core.EventChangeConnectionState:
		logger.Info().Str("state", e.ConnectionState.String()).Msg("connection state")
	default:
		logger.Debug().Str("event", e.Kind.String()).Msg("session event")
	}
}

func (o *Orchestrator) cleanup(sid domain.SessionID) {
	o.Registry.Cancel(sid)
	o.Registry.Unbind(sid)
	if o.Relays != nil {
		o.Relays.StopSession(sid)
	}
	o.forget(sid)
}

// loopback echoes a new remote track back to the same peer through a relay.
func (o *Orchestrator) loopback(e core.Event) {
	if o.Relays == nil || e.Track == nil {
		return
	}
	logger := log.With().Str("module", "orch").Str("sid", string(e.Session)).Str("track", e.TrackID).Logger()
	src, ok := e.Track.(sfu.Source)
	if !ok {
		logger.Debug().Msg("track cannot be relayed")
		return
	}
	sess, ok := o.Registry.GetSession(e.Session)
	if !ok {
		return
	}
	o.mu.RLock()
	live, ok := o.live[e.Session]
	o.mu.RUnlock()
	if !ok {
		return
	}

	stream, sink, err := o.Media.EchoStream(e.Session, e.Track)
	if err != nil {
		logger.Error().Err(err).Msg("echo stream")
		return
	}
	key := o.Relays.StartRelay(live.ctx, e.Session, src)
	o.Relays.AddSubscriber(key, e.Session, sink)

	live.worker.post(func() {
		renegotiate := sess.State() == domain.SessionStateActive
		if err := sess.AddStream(live.ctx, stream, renegotiate, nil); err != nil {
			logger.Warn().Err(err).Msg("add echo stream")
			return
		}
		logger.Info().Str("stream", stream.ID()).Msg("loopback started")
	})
}
