// Package session implements the call state machine: it owns the session and
// connection state, drives the negotiation controller for local commands and
// inbound protocol messages, and reports lifecycle events to observers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/jingle/internal/app/negotiation"
	"github.com/dkeye/jingle/internal/app/sources"
	"github.com/dkeye/jingle/internal/app/trickle"
	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

// ErrInvalidState is returned when a command is not valid in the current
// session state or role.
var ErrInvalidState = errors.New("invalid session state")

var _ core.CallSession = (*MediaSession)(nil)

type Options struct {
	ID       domain.SessionID
	Peer     core.PeerConnection
	Signaler core.Signaler
	Observer core.Observer
	// EndOfCandidates enables the synthesized gathering-complete
	// transport-info after the last local candidate.
	EndOfCandidates bool
	Logger          *zerolog.Logger
}

type MediaSession struct {
	id       domain.SessionID
	pc       core.PeerConnection
	signaler core.Signaler
	observer core.Observer
	neg      *negotiation.Controller
	trickle  *trickle.Coordinator
	logger   zerolog.Logger

	mu            sync.Mutex
	state         domain.SessionState
	connState     domain.ConnectionState
	ending        bool
	ringing       bool
	onHold        bool
	remoteStreams []string
}

// New creates a session in the New state and registers it for peer
// connection notifications.
func New(ctx context.Context, opts Options) (*MediaSession, error) {
	if opts.ID == "" {
		opts.ID = domain.NewSessionID()
	}
	base := log.Logger
	if opts.Logger != nil {
		base = *opts.Logger
	}
	logger := base.With().Str("module", "session").Str("sid", string(opts.ID)).Logger()

	s := &MediaSession{
		id:       opts.ID,
		pc:       opts.Peer,
		signaler: opts.Signaler,
		observer: opts.Observer,
		neg:      negotiation.NewController(opts.Peer, logger),
		logger:   logger,
	}
	s.trickle = trickle.NewCoordinator(opts.EndOfCandidates, s.sendTransportInfo)
	if err := opts.Peer.Start(ctx, peerEvents{s}); err != nil {
		return nil, fmt.Errorf("start peer connection: %w", err)
	}
	return s, nil
}

func (s *MediaSession) ID() domain.SessionID { return s.id }
func (s *MediaSession) Role() domain.Role    { return s.neg.Role() }

func (s *MediaSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *MediaSession) ConnectionState() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

func (s *MediaSession) Ringing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ringing
}

func (s *MediaSession) OnHold() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onHold
}

// NegotiationState exposes the controller's signaling state.
func (s *MediaSession) NegotiationState() negotiation.State { return s.neg.State() }

// terminated reports whether the session ended or is ending. No protocol
// message other than the final session-terminate leaves a terminated session.
func (s *MediaSession) terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ending || s.state == domain.SessionStateEnded
}

// Start makes this side the initiator and sends session-initiate with a
// fresh offer. A failed offer ends the session silently.
func (s *MediaSession) Start(ctx context.Context, c *domain.Constraints) error {
	s.mu.Lock()
	if s.state != domain.SessionStateNew || s.ending {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.state = domain.SessionStatePending
	s.mu.Unlock()

	if err := s.neg.SetRole(domain.RoleInitiator); err != nil {
		return err
	}
	if c != nil {
		s.neg.SetConstraints(*c)
	}

	offer, err := s.neg.Offer(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("could not create offer")
		s.End(ctx, domain.ReasonFailedApplication, true)
		return err
	}

	// Offer generators default to sendrecv; receive-only refusals are
	// expressed through the content senders instead.
	if c != nil {
		for i := range offer.Contents {
			content := &offer.Contents[i]
			if content.RTP() && c.SendOnly(content.Description.Media) {
				content.Senders = domain.SendersInitiator
			}
		}
	}

	desc := sources.StripPrivateLabels(offer)
	return s.send(ctx, domain.Message{Action: domain.ActionSessionInitiate, Description: &desc})
}

// Accept answers a pending inbound session.
func (s *MediaSession) Accept(ctx context.Context, c *domain.Constraints) error {
	s.mu.Lock()
	if s.state != domain.SessionStatePending || s.ending || s.neg.Role() != domain.RoleResponder {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.state = domain.SessionStateActive
	s.mu.Unlock()

	s.logger.Info().Msg("accepted incoming session")

	cons := domain.DefaultConstraints()
	if c != nil {
		cons = *c
	}
	s.neg.SetConstraints(cons)

	answer, err := s.neg.Answer(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("could not create answer")
		s.End(ctx, domain.ReasonFailedApplication, false)
		return err
	}
	desc := sources.StripPrivateLabels(answer)
	return s.send(ctx, domain.Message{Action: domain.ActionSessionAccept, Description: &desc})
}

// End tears the session down. Remote streams are reported removed, the
// terminate message goes out unless silent, and the peer connection is
// released. Calling End again is a no-op.
func (s *MediaSession) End(ctx context.Context, reason domain.Reason, silent bool) {
	s.mu.Lock()
	if s.ending || s.state == domain.SessionStateEnded {
		s.mu.Unlock()
		return
	}
	s.ending = true
	streams := s.remoteStreams
	s.remoteStreams = nil
	s.mu.Unlock()

	s.logger.Info().Str("reason", string(reason)).Bool("silent", silent).Msg("ending session")

	for _, id := range streams {
		s.emit(core.Event{Kind: core.EventPeerStreamRemoved, StreamID: id})
	}
	if !silent {
		msg := domain.Message{SID: s.id, Action: domain.ActionSessionTerminate, Reason: reason}
		if err := s.signaler.Send(ctx, msg); err != nil {
			s.logger.Error().Err(err).Msg("send session-terminate")
		}
	}
	if err := s.pc.Close(); err != nil {
		s.logger.Error().Err(err).Msg("close peer connection")
	}

	s.mu.Lock()
	s.state = domain.SessionStateEnded
	s.mu.Unlock()
	s.emit(core.Event{Kind: core.EventEnded, Reason: reason})
}

func (s *MediaSession) send(ctx context.Context, msg domain.Message) error {
	if s.terminated() {
		s.logger.Debug().Str("action", string(msg.Action)).Msg("dropping message for terminated session")
		return nil
	}
	msg.SID = s.id
	if err := s.signaler.Send(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("action", string(msg.Action)).Msg("send failed")
		return fmt.Errorf("send %s: %w", msg.Action, err)
	}
	return nil
}

func (s *MediaSession) sendTransportInfo(d domain.Description) {
	_ = s.send(context.Background(), domain.Message{Action: domain.ActionTransportInfo, Description: &d})
}

func (s *MediaSession) emit(e core.Event) {
	if s.observer == nil {
		return
	}
	e.Session = s.id
	s.observer.OnSessionEvent(e)
}

func (s *MediaSession) setRinging(v bool) {
	s.mu.Lock()
	changed := s.ringing != v
	s.ringing = v
	s.mu.Unlock()
	if changed {
		s.emit(core.Event{Kind: core.EventChangeRinging, Ringing: v})
	}
}

func (s *MediaSession) setHold(v bool) {
	s.mu.Lock()
	changed := s.onHold != v
	s.onHold = v
	s.mu.Unlock()
	if changed {
		s.emit(core.Event{Kind: core.EventChangeHold, OnHold: v})
	}
}

func (s *MediaSession) setConnectionState(v domain.ConnectionState) {
	s.mu.Lock()
	if s.ending || s.state == domain.SessionStateEnded {
		s.mu.Unlock()
		return
	}
	changed := s.connState != v
	s.connState = v
	s.mu.Unlock()
	if changed {
		s.logger.Info().Str("connection_state", v.String()).Msg("connection state")
		s.emit(core.Event{Kind: core.EventChangeConnectionState, ConnectionState: v})
	}
}
