package app

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/jingle/internal/core"
	"github.com/dkeye/jingle/internal/domain"
)

type sessionEntry struct {
	Client  domain.ClientID
	Session core.CallSession
	Cancel  context.CancelFunc
}

// Registry tracks live call sessions by id and the signaling clients that
// own them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionEntry
	clients  map[domain.ClientID]*domain.Client
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.SessionID]*sessionEntry),
		clients:  make(map[domain.ClientID]*domain.Client),
	}
}

func (r *Registry) GetOrCreateClient(id domain.ClientID) *domain.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		return c
	}
	c := domain.NewClient(id)
	r.clients[id] = c
	log.Info().Str("module", "app.registry").Str("client", string(id)).Msg("created new client")
	return c
}

// Client returns a copy of the client record.
func (r *Registry) Client(id domain.ClientID) (domain.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return domain.Client{}, false
	}
	return *c, true
}

func (r *Registry) UpdateClientName(id domain.ClientID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		c = domain.NewClient(id)
		r.clients[id] = c
	}
	if err := c.SetName(name); err != nil {
		return err
	}
	log.Info().Str("module", "app.registry").Str("client", string(id)).Str("name", name).Msg("updated client name")
	return nil
}

func (r *Registry) RemoveClient(id domain.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// BindSession stores sess. It reports false when the id is already bound.
func (r *Registry) BindSession(client domain.ClientID, sess core.CallSession, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sess.ID()]; ok {
		return false
	}
	r.sessions[sess.ID()] = &sessionEntry{Client: client, Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID())).Str("client", string(client)).Msg("bound session")
	return true
}

func (r *Registry) GetSession(sid domain.SessionID) (core.CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) OwnerOf(sid domain.SessionID) (domain.ClientID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", false
	}
	return e.Client, true
}

// SessionsOf returns the sessions owned by client.
func (r *Registry) SessionsOf(client domain.ClientID) []core.CallSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.CallSession
	for _, e := range r.sessions {
		if e.Client == client {
			out = append(out, e.Session)
		}
	}
	return out
}

func (r *Registry) Unbind(sid domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

type SessionSnap struct {
	ID              domain.SessionID `json:"sid"`
	Client          domain.ClientID  `json:"-"`
	Role            string           `json:"role"`
	State           string           `json:"state"`
	ConnectionState string           `json:"connectionState"`
}

// Snapshot lists the live sessions ordered by id.
func (r *Registry) Snapshot() []SessionSnap {
	return r.snapshot(func(domain.ClientID) bool { return true })
}

// SnapshotOf is Snapshot restricted to the sessions owned by client.
func (r *Registry) SnapshotOf(client domain.ClientID) []SessionSnap {
	return r.snapshot(func(owner domain.ClientID) bool { return owner == client })
}

func (r *Registry) snapshot(keep func(domain.ClientID) bool) []SessionSnap {
	r.mu.RLock()
	out := make([]SessionSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if !keep(e.Client) {
			continue
		}
		out = append(out, SessionSnap{
			ID:              sid,
			Client:          e.Client,
			Role:            e.Session.Role().String(),
			State:           e.Session.State().String(),
			ConnectionState: e.Session.ConnectionState().String(),
		})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Cancel(sid domain.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
