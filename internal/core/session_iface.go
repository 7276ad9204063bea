package core

import (
	"context"

	"github.com/dkeye/jingle/internal/domain"
)

// CallSession is what the registry stores and the orchestrator drives.
type CallSession interface {
	ID() domain.SessionID
	Role() domain.Role
	State() domain.SessionState
	ConnectionState() domain.ConnectionState

	Start(ctx context.Context, c *domain.Constraints) error
	Accept(ctx context.Context, c *domain.Constraints) error
	Ring(ctx context.Context) error
	End(ctx context.Context, reason domain.Reason, silent bool)

	AddStream(ctx context.Context, s Stream, renegotiate bool, override *domain.Constraints) error
	RemoveStream(ctx context.Context, s Stream, renegotiate bool, override *domain.Constraints) error

	// Handle processes one inbound protocol message. A non-nil error is a
	// *domain.ProtocolError to be returned to the remote peer.
	Handle(ctx context.Context, msg domain.Message) error
}
