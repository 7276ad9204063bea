// Package orch wires call sessions to signaling clients: it creates sessions
// for outbound calls and inbound session-initiate, routes inbound messages to
// their session in arrival order and cleans up when a session ends.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/jingle/internal/app"
	"github.com/dkeye/jingle/internal/app/session"
	"github.com/dkeye/jingle/internal/app/sfu"
	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrClientGone     = errors.New("signaling client not connected")
)

// MediaFactory builds the peer connection of a new session and the local
// echo streams used by the loopback.
type MediaFactory interface {
	NewPeer(sid domain.SessionID, role domain.Role) (core.PeerConnection, error)
	EchoStream(sid domain.SessionID, remote core.Track) (core.Stream, sfu.Sink, error)
}

type Orchestrator struct {
	Registry *app.Registry
	Policy   app.Policy
	Media    MediaFactory
	// Relays enables the loopback: remote tracks are echoed back to the peer.
	Relays          *sfu.RelayManager
	EndOfCandidates bool
	// Observer receives every session event after the orchestrator.
	Observer core.Observer

	mu        sync.RWMutex
	signalers map[domain.ClientID]core.Signaler
	live      map[domain.SessionID]*liveSession
}

type liveSession struct {
	ctx    context.Context
	worker *worker
}

func New(reg *app.Registry, policy app.Policy, media MediaFactory) *Orchestrator {
	return &Orchestrator{
		Registry:  reg,
		Policy:    policy,
		Media:     media,
		signalers: make(map[domain.ClientID]core.Signaler),
		live:      make(map[domain.SessionID]*liveSession),
	}
}

// Connect makes sig the transport of client. A reconnecting client takes
// over its sessions.
func (o *Orchestrator) Connect(client domain.ClientID, sig core.Signaler) {
	o.mu.Lock()
	o.signalers[client] = sig
	o.mu.Unlock()
	o.Registry.GetOrCreateClient(client)
	log.Info().Str("module", "orch").Str("client", string(client)).Msg("client connected")
}

// Disconnect drops sig and ends the client's sessions unless another
// connection already took over.
func (o *Orchestrator) Disconnect(ctx context.Context, client domain.ClientID, sig core.Signaler) {
	o.mu.Lock()
	if o.signalers[client] != sig {
		o.mu.Unlock()
		return
	}
	delete(o.signalers, client)
	o.mu.Unlock()

	for _, sess := range o.Registry.SessionsOf(client) {
		o.end(ctx, sess, domain.ReasonGone, true)
	}
	o.Registry.RemoveClient(client)
	log.Info().Str("module", "orch").Str("client", string(client)).Msg("client disconnected")
}

func (o *Orchestrator) signalerFor(client domain.ClientID) core.Signaler {
	return core.SignalerFunc(func(ctx context.Context, msg domain.Message) error {
		o.mu.RLock()
		sig, ok := o.signalers[client]
		o.mu.RUnlock()
		if !ok {
			return ErrClientGone
		}
		return sig.Send(ctx, msg)
	})
}

// Dispatch routes one inbound protocol message from client. A non-nil error
// is a *domain.ProtocolError for the sender.
func (o *Orchestrator) Dispatch(ctx context.Context, client domain.ClientID, msg domain.Message) error {
	if msg.SID == "" {
		return domain.NewProtocolError(domain.ConditionBadRequest, "missing sid")
	}
	if msg.Action == domain.ActionSessionInitiate {
		return o.incoming(ctx, client, msg)
	}
	sess, ok := o.owned(client, msg.SID)
	if !ok {
		return domain.NewProtocolError(domain.ConditionUnknownSession, "%s", msg.SID)
	}
	err := o.run(ctx, sess.ID(), func() error { return sess.Handle(ctx, msg) })
	if errors.Is(err, errWorkerStopped) {
		return domain.NewProtocolError(domain.ConditionUnknownSession, "%s", msg.SID)
	}
	return err
}

func (o *Orchestrator) incoming(ctx context.Context, client domain.ClientID, msg domain.Message) error {
	if _, ok := o.Registry.GetSession(msg.SID); ok {
		return domain.NewProtocolError(domain.ConditionOutOfOrder, "session %s already exists", msg.SID)
	}
	action := o.Policy.OnIncoming(o.Registry.Count())
	logger := log.With().Str("module", "orch").Str("sid", string(msg.SID)).Str("client", string(client)).Logger()
	logger.Info().Str("action", action.String()).Msg("incoming call")

	if action == app.RejectBusy {
		reject := domain.Message{SID: msg.SID, Action: domain.ActionSessionTerminate, Reason: domain.ReasonBusy}
		if err := o.signalerFor(client).Send(ctx, reject); err != nil {
			logger.Warn().Err(err).Msg("send busy")
		}
		return nil
	}

	sess, err := o.newSession(ctx, client, msg.SID, domain.RoleResponder)
	if err != nil {
		var perr *domain.ProtocolError
		if errors.As(err, &perr) {
			return perr
		}
		logger.Error().Err(err).Msg("create session")
		return domain.NewProtocolError(domain.ConditionGeneralError, "create session")
	}
	return o.run(ctx, msg.SID, func() error {
		if err := sess.Handle(ctx, msg); err != nil {
			sess.End(ctx, domain.ReasonFailedApplication, true)
			return err
		}
		if action == app.AutoAccept {
			if err := sess.Accept(ctx, nil); err != nil {
				logger.Warn().Err(err).Msg("auto accept")
			}
			return nil
		}
		if err := sess.Ring(ctx); err != nil {
			logger.Warn().Err(err).Msg("ring")
		}
		return nil
	})
}

// Call starts an outbound session towards client.
func (o *Orchestrator) Call(ctx context.Context, client domain.ClientID, c *domain.Constraints) (domain.SessionID, error) {
	o.mu.RLock()
	_, ok := o.signalers[client]
	o.mu.RUnlock()
	if !ok {
		return "", ErrClientGone
	}
	sid := domain.NewSessionID()
	sess, err := o.newSession(ctx, client, sid, domain.RoleInitiator)
	if err != nil {
		return "", err
	}
	if err := o.run(ctx, sid, func() error { return sess.Start(ctx, c) }); err != nil {
		return "", fmt.Errorf("start %s: %w", sid, err)
	}
	return sid, nil
}

// Accept answers a ringing inbound session.
func (o *Orchestrator) Accept(ctx context.Context, sid domain.SessionID, c *domain.Constraints) error {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return ErrUnknownSession
	}
	return o.run(ctx, sid, func() error { return sess.Accept(ctx, c) })
}

// AcceptFrom is Accept restricted to the sessions owned by client.
func (o *Orchestrator) AcceptFrom(ctx context.Context, client domain.ClientID, sid domain.SessionID, c *domain.Constraints) error {
	if _, ok := o.owned(client, sid); !ok {
		return ErrUnknownSession
	}
	return o.Accept(ctx, sid, c)
}

// Hangup ends a session and tells the remote peer.
func (o *Orchestrator) Hangup(ctx context.Context, sid domain.SessionID, reason domain.Reason) error {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return ErrUnknownSession
	}
	o.end(ctx, sess, reason, false)
	return nil
}

// HangupFrom is Hangup restricted to the sessions owned by client.
func (o *Orchestrator) HangupFrom(ctx context.Context, client domain.ClientID, sid domain.SessionID, reason domain.Reason) error {
	if _, ok := o.owned(client, sid); !ok {
		return ErrUnknownSession
	}
	return o.Hangup(ctx, sid, reason)
}

// Shutdown ends every live session and waits for the relays to stop.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	for _, snap := range o.Registry.Snapshot() {
		if sess, ok := o.Registry.GetSession(snap.ID); ok {
			o.end(ctx, sess, domain.ReasonGone, false)
		}
	}
	if o.Relays != nil {
		o.Relays.Wait()
	}
	log.Info().Str("module", "orch").Msg("all sessions ended")
}

func (o *Orchestrator) end(ctx context.Context, sess core.CallSession, reason domain.Reason, silent bool) {
	err := o.run(ctx, sess.ID(), func() error {
		sess.End(ctx, reason, silent)
		return nil
	})
	if err != nil {
		// The worker is gone; End is idempotent.
		sess.End(ctx, reason, silent)
	}
}

func (o *Orchestrator) owned(client domain.ClientID, sid domain.SessionID) (core.CallSession, bool) {
	owner, ok := o.Registry.OwnerOf(sid)
	if !ok || owner != client {
		return nil, false
	}
	return o.Registry.GetSession(sid)
}

func (o *Orchestrator) newSession(ctx context.Context, client domain.ClientID, sid domain.SessionID, role domain.Role) (*session.MediaSession, error) {
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	live := &liveSession{ctx: sctx, worker: newWorker()}
	// The sid is reserved before the peer is built so a concurrent initiate
	// for the same sid cannot replace this worker.
	o.mu.Lock()
	if _, taken := o.live[sid]; taken {
		o.mu.Unlock()
		live.worker.stop()
		cancel()
		return nil, domain.NewProtocolError(domain.ConditionOutOfOrder, "session %s already exists", sid)
	}
	o.live[sid] = live
	o.mu.Unlock()

	pc, err := o.Media.NewPeer(sid, role)
	if err != nil {
		o.release(sid, live)
		cancel()
		return nil, fmt.Errorf("new peer: %w", err)
	}
	sess, err := session.New(sctx, session.Options{
		ID:              sid,
		Peer:            pc,
		Signaler:        o.signalerFor(client),
		Observer:        core.Observers{core.ObserverFunc(o.OnEvent), o.Observer},
		EndOfCandidates: o.EndOfCandidates,
	})
	if err != nil {
		o.release(sid, live)
		cancel()
		_ = pc.Close()
		return nil, err
	}
	if !o.Registry.BindSession(client, sess, cancel) {
		o.release(sid, live)
		cancel()
		_ = pc.Close()
		return nil, domain.NewProtocolError(domain.ConditionOutOfOrder, "session %s already exists", sid)
	}
	return sess, nil
}

func (o *Orchestrator) run(ctx context.Context, sid domain.SessionID, fn func() error) error {
	o.mu.RLock()
	live, ok := o.live[sid]
	o.mu.RUnlock()
	if !ok {
		return errWorkerStopped
	}
	return live.worker.do(ctx, fn)
}

func (o *Orchestrator) forget(sid domain.SessionID) *liveSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	live, ok := o.live[sid]
	if !ok {
		return nil
	}
	delete(o.live, sid)
	live.worker.stop()
	return live
}

// release drops the reservation of sid if it still belongs to live.
func (o *Orchestrator) release(sid domain.SessionID, live *liveSession) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.live[sid] == live {
		delete(o.live, sid)
	}
	live.worker.stop()
}
