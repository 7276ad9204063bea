package session

import (
	"context"
	"errors"

	"github.com/dkeye/jingle/internal/app/negotiation"
	"github.com/dkeye/jingle/internal/app/sources"
	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

// Handle processes one inbound protocol message. Messages for an ended
// session are ignored.
func (s *MediaSession) Handle(ctx context.Context, msg domain.Message) error {
	if s.terminated() {
		s.logger.Debug().Str("action", string(msg.Action)).Msg("ignoring message for terminated session")
		return nil
	}
	s.logger.Debug().Str("action", string(msg.Action)).Msg("inbound")

	switch msg.Action {
	case domain.ActionSessionInitiate:
		return s.onSessionInitiate(ctx, msg)
	case domain.ActionSessionAccept:
		return s.onSessionAccept(ctx, msg)
	case domain.ActionSessionInfo:
		s.onSessionInfo(msg)
		return nil
	case domain.ActionSessionTerminate:
		reason := msg.Reason
		if reason == "" {
			reason = domain.ReasonSuccess
		}
		s.End(ctx, reason, true)
		return nil
	case domain.ActionTransportInfo:
		return s.onTransportInfo(ctx, msg)
	case domain.ActionSourceAdd:
		return s.onSourceChange(ctx, msg, sources.MergeSources)
	case domain.ActionSourceRemove:
		return s.onSourceChange(ctx, msg, sources.RemoveSources)
	case domain.ActionSourceUpdate:
		return s.onSourceChange(ctx, msg, sources.UpdateSources)
	case domain.ActionSourceAccept:
		return s.onSourceAccept(ctx, msg)
	default:
		return domain.NewProtocolError(domain.ConditionBadRequest, "unsupported action %q", msg.Action)
	}
}

func (s *MediaSession) onSessionInitiate(ctx context.Context, msg domain.Message) error {
	if msg.Description == nil {
		return domain.NewProtocolError(domain.ConditionBadRequest, "session-initiate without contents")
	}
	s.mu.Lock()
	if s.state != domain.SessionStateNew {
		s.mu.Unlock()
		return domain.NewProtocolError(domain.ConditionOutOfOrder, "session already %s", s.state)
	}
	s.state = domain.SessionStatePending
	s.mu.Unlock()

	if err := s.neg.SetRole(domain.RoleResponder); err != nil {
		return domain.NewProtocolError(domain.ConditionOutOfOrder, "%v", err)
	}
	if err := s.neg.ReceiveOffer(ctx, *msg.Description); err != nil {
		s.logger.Error().Err(err).Msg("could not apply offer")
		s.End(ctx, domain.ReasonFailedApplication, true)
		return domain.NewProtocolError(domain.ConditionGeneralError, "%v", err)
	}
	return nil
}

func (s *MediaSession) onSessionAccept(ctx context.Context, msg domain.Message) error {
	if msg.Description == nil {
		return domain.NewProtocolError(domain.ConditionBadRequest, "session-accept without contents")
	}
	s.mu.Lock()
	if s.state != domain.SessionStatePending || s.neg.Role() != domain.RoleInitiator {
		state := s.state
		s.mu.Unlock()
		return domain.NewProtocolError(domain.ConditionOutOfOrder, "session-accept in state %s", state)
	}
	s.state = domain.SessionStateActive
	s.mu.Unlock()

	if err := s.neg.ApplyAnswer(ctx, *msg.Description); err != nil {
		s.logger.Error().Err(err).Msg("could not apply answer")
		s.End(ctx, domain.ReasonFailedApplication, false)
		return domain.NewProtocolError(domain.ConditionGeneralError, "%v", err)
	}
	s.setRinging(false)
	s.emit(core.Event{Kind: core.EventAccepted})
	return nil
}

func (s *MediaSession) onSessionInfo(msg domain.Message) {
	if msg.Info == nil {
		return
	}
	switch msg.Info.Kind {
	case domain.InfoRinging:
		s.setRinging(true)
		s.emit(core.Event{Kind: core.EventRinging})
	case domain.InfoHold:
		s.setHold(true)
		s.emit(core.Event{Kind: core.EventHold})
	case domain.InfoActive:
		s.setHold(false)
		s.emit(core.Event{Kind: core.EventResumed})
	case domain.InfoMute:
		s.emit(core.Event{Kind: core.EventMute, Mute: msg.Info.Mute})
	case domain.InfoUnmute:
		s.emit(core.Event{Kind: core.EventUnmute, Mute: msg.Info.Mute})
	case domain.InfoUnknown:
		// acknowledged without effect
	}
}

func (s *MediaSession) onTransportInfo(ctx context.Context, msg domain.Message) error {
	if msg.Description == nil {
		return domain.NewProtocolError(domain.ConditionBadRequest, "transport-info without contents")
	}
	var failed error
	for _, content := range msg.Description.Contents {
		if content.Transport == nil {
			continue
		}
		for i := range content.Transport.Candidates {
			cand := content.Transport.Candidates[i]
			if err := s.pc.AddICECandidate(ctx, content.Name, &cand); err != nil {
				s.logger.Warn().Err(err).Str("content", content.Name).Str("foundation", cand.Foundation).Msg("could not add remote candidate")
				failed = err
			}
		}
		if content.Transport.GatheringComplete {
			if err := s.pc.AddICECandidate(ctx, content.Name, nil); err != nil {
				s.logger.Warn().Err(err).Str("content", content.Name).Msg("could not signal end of remote candidates")
				failed = err
			}
		}
	}
	if failed != nil {
		return domain.NewProtocolError(domain.ConditionGeneralError, "%v", failed)
	}
	return nil
}

// onSourceChange reconciles the current remote description with the
// incoming sources and renegotiates with the result. A responder answers
// source-add and source-update with source-accept.
func (s *MediaSession) onSourceChange(ctx context.Context, msg domain.Message, reconcile func(remote, incoming domain.Description) domain.Description) error {
	if msg.Description == nil {
		return domain.NewProtocolError(domain.ConditionBadRequest, "%s without contents", msg.Action)
	}
	remote, ok := s.pc.RemoteDescription()
	if !ok {
		return domain.NewProtocolError(domain.ConditionOutOfOrder, "%s before session negotiation", msg.Action)
	}
	updated := reconcile(remote, *msg.Description)

	out, err := s.neg.ProposeOrRespond(ctx, &updated)
	if err != nil {
		s.logger.Error().Err(err).Str("action", string(msg.Action)).Msg("could not renegotiate remote source change")
		return domain.NewProtocolError(domain.ConditionGeneralError, "%v", err)
	}
	if out.Local == nil || msg.Action == domain.ActionSourceRemove || s.Role() != domain.RoleResponder {
		return nil
	}
	answer := sources.StripPrivateLabels(*out.Local)
	if err := s.send(ctx, domain.Message{Action: domain.ActionSourceAccept, Description: &answer}); err != nil {
		s.logger.Warn().Err(err).Msg("could not send source-accept")
	}
	return nil
}

func (s *MediaSession) onSourceAccept(ctx context.Context, msg domain.Message) error {
	if msg.Description == nil {
		return domain.NewProtocolError(domain.ConditionBadRequest, "source-accept without contents")
	}
	if err := s.neg.ApplyAnswer(ctx, *msg.Description); err != nil {
		if errors.Is(err, negotiation.ErrNoPendingOffer) {
			return domain.NewProtocolError(domain.ConditionOutOfOrder, "%v", err)
		}
		s.logger.Error().Err(err).Msg("could not apply source-accept")
		return domain.NewProtocolError(domain.ConditionGeneralError, "%v", err)
	}
	return nil
}
