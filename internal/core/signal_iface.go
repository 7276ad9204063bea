package core

import (
	"context"

	"github.com/dkeye/jingle/internal/domain"
)

//go:generate mockgen -source=signal_iface.go -destination=mocks/mock_signaler.go -package=mocks

// Signaler delivers outbound protocol messages to the remote peer.
// Send returns once the transport accepted (or refused) the message.
type Signaler interface {
	Send(ctx context.Context, msg domain.Message) error
}

// SignalerFunc adapts a function to a Signaler.
type SignalerFunc func(ctx context.Context, msg domain.Message) error

func (f SignalerFunc) Send(ctx context.Context, msg domain.Message) error { return f(ctx, msg) }
