package session

import (
	"context"

	"github.com/dkeye/jingle/internal/domain"
)

// Ring tells the initiator that the call is being presented to the user.
func (s *MediaSession) Ring(ctx context.Context) error {
	if s.terminated() {
		return nil
	}
	s.setRinging(true)
	return s.sendInfo(ctx, domain.SessionInfo{Kind: domain.InfoRinging})
}

func (s *MediaSession) Hold(ctx context.Context) error {
	if s.terminated() {
		return nil
	}
	s.setHold(true)
	return s.sendInfo(ctx, domain.SessionInfo{Kind: domain.InfoHold})
}

func (s *MediaSession) Resume(ctx context.Context) error {
	if s.terminated() {
		return nil
	}
	s.setHold(false)
	return s.sendInfo(ctx, domain.SessionInfo{Kind: domain.InfoActive})
}

// Mute announces that the named content of creator is muted.
func (s *MediaSession) Mute(ctx context.Context, creator domain.Role, name string) error {
	return s.sendInfo(ctx, domain.SessionInfo{
		Kind: domain.InfoMute,
		Mute: &domain.MuteInfo{Creator: creator, Name: name},
	})
}

func (s *MediaSession) Unmute(ctx context.Context, creator domain.Role, name string) error {
	return s.sendInfo(ctx, domain.SessionInfo{
		Kind: domain.InfoUnmute,
		Mute: &domain.MuteInfo{Creator: creator, Name: name},
	})
}

func (s *MediaSession) sendInfo(ctx context.Context, info domain.SessionInfo) error {
	return s.send(ctx, domain.Message{Action: domain.ActionSessionInfo, Info: &info})
}
