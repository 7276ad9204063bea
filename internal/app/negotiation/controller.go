// Package negotiation runs offer/answer cycles against a PeerConnection.
// It is the only package that asks the peer connection for offers and
// answers, and it keeps the signaling state explicitly instead of reading
// it back from the engine.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

var (
	// ErrCollision is returned when a cycle is requested while another one
	// is running or an offer is still waiting for its answer.
	ErrCollision = errors.New("negotiation collision")
	// ErrNoPendingOffer is returned by ApplyAnswer without an offer in flight.
	ErrNoPendingOffer = errors.New("no local offer awaiting an answer")
	// ErrNoRemoteOffer is returned by Answer before a remote offer was applied.
	ErrNoRemoteOffer = errors.New("no remote offer to answer")
	// ErrNoRemoteDescription is returned when a responder has nothing to re-apply.
	ErrNoRemoteDescription = errors.New("no remote description")
	ErrRoleUnset           = errors.New("negotiation role not set")
	ErrRoleFixed           = errors.New("negotiation role already set")
	ErrWrongRole           = errors.New("operation not allowed for this role")
)

// State is the signaling state of the controller.
type State int

const (
	StateStable State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
)

func (s State) String() string {
	switch s {
	case StateStable:
		return "stable"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	default:
		return "unknown"
	}
}

// Outcome is the result of ProposeOrRespond. Local is the description to
// transmit; it is nil when the cycle completed without an outbound payload.
type Outcome struct {
	Local *domain.Description
}

func (o Outcome) Completed() bool { return o.Local == nil }

type Controller struct {
	pc     core.PeerConnection
	logger zerolog.Logger

	mu          sync.Mutex
	role        domain.Role
	state       State
	busy        bool
	constraints domain.Constraints
}

func NewController(pc core.PeerConnection, logger zerolog.Logger) *Controller {
	return &Controller{
		pc:          pc,
		logger:      logger.With().Str("module", "negotiation").Logger(),
		constraints: domain.DefaultConstraints(),
	}
}

// SetRole fixes the local role. It may be called once.
func (c *Controller) SetRole(role domain.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role != domain.RoleUnset {
		return ErrRoleFixed
	}
	c.role = role
	return nil
}

func (c *Controller) Role() domain.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stable reports whether no cycle is running or half-done.
func (c *Controller) Stable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateStable && !c.busy
}

func (c *Controller) SetConstraints(cons domain.Constraints) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.constraints = cons
}

func (c *Controller) Constraints() domain.Constraints {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.constraints
}

// begin claims the controller for one step. want is the state the step
// starts from.
func (c *Controller) begin(want State) (domain.Role, domain.Constraints, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role == domain.RoleUnset {
		return c.role, c.constraints, ErrRoleUnset
	}
	if c.busy {
		return c.role, c.constraints, ErrCollision
	}
	if c.state != want {
		switch want {
		case StateHaveLocalOffer:
			return c.role, c.constraints, ErrNoPendingOffer
		case StateHaveRemoteOffer:
			return c.role, c.constraints, ErrNoRemoteOffer
		default:
			return c.role, c.constraints, ErrCollision
		}
	}
	c.busy = true
	return c.role, c.constraints, nil
}

// finish releases the controller. A failed step drops back to Stable so a
// later renegotiation can start from whatever the engine now holds.
func (c *Controller) finish(next State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if err != nil {
		c.state = StateStable
		return
	}
	c.state = next
}

// Offer creates the initial offer of an initiator. The controller then
// waits in HaveLocalOffer for ApplyAnswer.
func (c *Controller) Offer(ctx context.Context) (domain.Description, error) {
	role, cons, err := c.begin(StateStable)
	if err != nil {
		return domain.Description{}, err
	}
	if role != domain.RoleInitiator {
		c.finish(StateStable, nil)
		return domain.Description{}, ErrWrongRole
	}
	offer, err := c.pc.Offer(ctx, cons)
	c.finish(StateHaveLocalOffer, err)
	if err != nil {
		return domain.Description{}, fmt.Errorf("create offer: %w", err)
	}
	return offer, nil
}

// ApplyAnswer completes an outstanding local offer.
func (c *Controller) ApplyAnswer(ctx context.Context, answer domain.Description) error {
	if _, _, err := c.begin(StateHaveLocalOffer); err != nil {
		return err
	}
	err := c.pc.ApplyRemoteAnswer(ctx, answer)
	c.finish(StateStable, err)
	if err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	return nil
}

// ReceiveOffer applies the initial remote offer of a responder. The
// controller then waits in HaveRemoteOffer for Answer.
func (c *Controller) ReceiveOffer(ctx context.Context, offer domain.Description) error {
	role, _, err := c.begin(StateStable)
	if err != nil {
		return err
	}
	if role != domain.RoleResponder {
		c.finish(StateStable, nil)
		return ErrWrongRole
	}
	err = c.pc.ApplyRemoteOffer(ctx, offer)
	c.finish(StateHaveRemoteOffer, err)
	if err != nil {
		return fmt.Errorf("apply offer: %w", err)
	}
	return nil
}

// Answer answers the applied remote offer.
func (c *Controller) Answer(ctx context.Context) (domain.Description, error) {
	_, cons, err := c.begin(StateHaveRemoteOffer)
	if err != nil {
		return domain.Description{}, err
	}
	answer, err := c.pc.Answer(ctx, cons)
	c.finish(StateStable, err)
	if err != nil {
		return domain.Description{}, fmt.Errorf("create answer: %w", err)
	}
	return answer, nil
}

// ProposeOrRespond runs one renegotiation cycle. The branch depends on the
// role only:
//
//   - initiator, remote nil: offer and wait for the answer (Outcome.Local is the offer)
//   - initiator, remote set: offer and apply remote as the answer (completed)
//   - responder: apply remote (or the current remote description) as an
//     offer and answer it (Outcome.Local is the answer)
func (c *Controller) ProposeOrRespond(ctx context.Context, remote *domain.Description) (Outcome, error) {
	role, cons, err := c.begin(StateStable)
	if err != nil {
		return Outcome{}, err
	}

	switch role {
	case domain.RoleInitiator:
		offer, err := c.pc.Offer(ctx, cons)
		if err != nil {
			c.finish(StateStable, err)
			return Outcome{}, fmt.Errorf("create offer: %w", err)
		}
		if remote == nil {
			c.finish(StateHaveLocalOffer, nil)
			c.logger.Debug().Msg("renegotiation offer awaiting answer")
			return Outcome{Local: &offer}, nil
		}
		err = c.pc.ApplyRemoteAnswer(ctx, *remote)
		c.finish(StateStable, err)
		if err != nil {
			return Outcome{}, fmt.Errorf("apply answer: %w", err)
		}
		return Outcome{}, nil

	default:
		if remote == nil {
			current, ok := c.pc.RemoteDescription()
			if !ok {
				c.finish(StateStable, ErrNoRemoteDescription)
				return Outcome{}, ErrNoRemoteDescription
			}
			remote = &current
		}
		if err := c.pc.ApplyRemoteOffer(ctx, *remote); err != nil {
			c.finish(StateStable, err)
			return Outcome{}, fmt.Errorf("apply offer: %w", err)
		}
		answer, err := c.pc.Answer(ctx, cons)
		c.finish(StateStable, err)
		if err != nil {
			return Outcome{}, fmt.Errorf("create answer: %w", err)
		}
		return Outcome{Local: &answer}, nil
	}
}
