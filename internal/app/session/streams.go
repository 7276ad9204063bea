package session

import (
	"context"
	"fmt"

	"github.com/dkeye/jingle/internal/app/sources"
	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

// AddStream attaches a local stream. With renegotiate set, the stream's
// sources are announced with source-add after a renegotiation cycle.
// Renegotiation errors are returned to the caller and do not end the session.
func (s *MediaSession) AddStream(ctx context.Context, stream core.Stream, renegotiate bool, override *domain.Constraints) error {
	if s.terminated() {
		return nil
	}
	if err := s.pc.AddLocalStream(stream); err != nil {
		return fmt.Errorf("add local stream %s: %w", stream.ID(), err)
	}
	if !renegotiate {
		return nil
	}
	return s.announce(ctx, domain.ActionSourceAdd, stream, override)
}

// UpdateStream re-announces the sources of an already attached stream with
// source-update, after its tracks changed.
func (s *MediaSession) UpdateStream(ctx context.Context, stream core.Stream, override *domain.Constraints) error {
	if s.terminated() {
		return nil
	}
	return s.announce(ctx, domain.ActionSourceUpdate, stream, override)
}

func (s *MediaSession) announce(ctx context.Context, action domain.Action, stream core.Stream, override *domain.Constraints) error {
	if override != nil {
		s.neg.SetConstraints(*override)
	}
	out, err := s.neg.ProposeOrRespond(ctx, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("stream", stream.ID()).Str("action", string(action)).Msg("renegotiation failed")
		return fmt.Errorf("renegotiate %s: %w", action, err)
	}
	if out.Local == nil {
		return nil
	}
	desc := sources.StripPrivateLabels(sources.FilterForStream(*out.Local, stream.ID()))
	return s.send(ctx, domain.Message{Action: action, Description: &desc})
}

// RemoveStream detaches a local stream. With renegotiate set, source-remove
// is sent before the stream is detached, then the session renegotiates on
// its own: the initiator re-applies the current remote description as the
// answer, the responder re-applies it as the offer.
func (s *MediaSession) RemoveStream(ctx context.Context, stream core.Stream, renegotiate bool, override *domain.Constraints) error {
	if s.terminated() {
		return nil
	}
	if !renegotiate {
		if err := s.pc.RemoveLocalStream(stream); err != nil {
			return fmt.Errorf("remove local stream %s: %w", stream.ID(), err)
		}
		return nil
	}
	if override != nil {
		s.neg.SetConstraints(*override)
	}

	if local, ok := s.pc.LocalDescription(); ok {
		desc := sources.StripPrivateLabels(sources.FilterForStream(local, stream.ID()))
		if err := s.send(ctx, domain.Message{Action: domain.ActionSourceRemove, Description: &desc}); err != nil {
			return err
		}
	}
	if err := s.pc.RemoveLocalStream(stream); err != nil {
		return fmt.Errorf("remove local stream %s: %w", stream.ID(), err)
	}

	var remote *domain.Description
	if s.Role() == domain.RoleInitiator {
		if current, ok := s.pc.RemoteDescription(); ok {
			remote = &current
		}
	}
	if _, err := s.neg.ProposeOrRespond(ctx, remote); err != nil {
		s.logger.Error().Err(err).Str("stream", stream.ID()).Msg("renegotiation after removal failed")
		return fmt.Errorf("renegotiate %s: %w", domain.ActionSourceRemove, err)
	}
	return nil
}

// SwitchStream replaces one local stream with another. The first audio
// track of the old stream moves to the new one. The remote side sees a
// source-remove of the whole previous local description followed by a
// source-add of the new one.
func (s *MediaSession) SwitchStream(ctx context.Context, oldStream, newStream core.Stream) error {
	if s.terminated() {
		return nil
	}
	previous, hadLocal := s.pc.LocalDescription()

	if err := s.pc.RemoveLocalStream(oldStream); err != nil {
		return fmt.Errorf("remove local stream %s: %w", oldStream.ID(), err)
	}
	if hadLocal {
		desc := sources.StripPrivateLabels(sources.StripTransport(previous))
		if err := s.send(ctx, domain.Message{Action: domain.ActionSourceRemove, Description: &desc}); err != nil {
			return err
		}
	}

	if audio := oldStream.AudioTracks(); len(audio) > 0 {
		newStream.AddTrack(audio[0])
	}
	if err := s.pc.AddLocalStream(newStream); err != nil {
		return fmt.Errorf("add local stream %s: %w", newStream.ID(), err)
	}

	out, err := s.neg.ProposeOrRespond(ctx, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("stream", newStream.ID()).Msg("renegotiation after switch failed")
		return fmt.Errorf("renegotiate switch: %w", err)
	}
	if out.Local == nil {
		return nil
	}
	desc := sources.StripPrivateLabels(sources.StripTransport(*out.Local))
	return s.send(ctx, domain.Message{Action: domain.ActionSourceAdd, Description: &desc})
}
