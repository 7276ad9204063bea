package sfu

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/jingle/internal/domain"
)

// RelayKey identifies a relay by the session and remote track it reads.
type RelayKey struct {
	Session domain.SessionID
	Track   string
}

type RelayManager struct {
	mu     sync.RWMutex
	relays map[RelayKey]*Relay
	wg     conc.WaitGroup
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[RelayKey]*Relay),
	}
}

// StartRelay creates a relay for the remote track src of session sid and
// starts its loop. An existing relay for the same key is replaced.
func (m *RelayManager) StartRelay(ctx context.Context, sid domain.SessionID, src Source) RelayKey {
	key := RelayKey{Session: sid, Track: src.ID()}
	logger := log.With().
		Str("module", "relay").
		Str("sid", string(sid)).
		Str("track", key.Track).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(sid, src, cancel)

	m.mu.Lock()
	if old, ok := m.relays[key]; ok {
		logger.Info().Msg("replacing existing relay")
		old.markAllDelete()
		old.cancel()
	}
	m.relays[key] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")
	m.wg.Go(func() {
		relay.loop(relayCtx, &logger)
		m.forget(key, relay)
	})
	return key
}

func (m *RelayManager) forget(key RelayKey, relay *Relay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.relays[key] == relay {
		delete(m.relays, key)
	}
}

// AddSubscriber attaches sink to the relay at key on behalf of dst.
func (m *RelayManager) AddSubscriber(key RelayKey, dst domain.SessionID, sink Sink) bool {
	m.mu.RLock()
	relay, ok := m.relays[key]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	relay.AddOutTrack(dst, NewOutTrack(sink))
	return true
}

// MarkSubscriberDelete detaches dst from every relay it subscribes to.
func (m *RelayManager) MarkSubscriberDelete(dst domain.SessionID) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, relay := range m.relays {
		if ot, ok := relay.outTrack(dst); ok {
			ot.MarkDelete()
		}
	}
}

// SetMuted pauses or resumes forwarding of the relay at key to dst.
func (m *RelayManager) SetMuted(key RelayKey, dst domain.SessionID, muted bool) {
	m.mu.RLock()
	relay, ok := m.relays[key]
	m.mu.RUnlock()
	if !ok {
		return
	}
	ot, ok := relay.outTrack(dst)
	if !ok {
		return
	}
	if muted {
		ot.MarkMuted()
	} else {
		ot.MarkOk()
	}
}

// StopSession stops every relay reading from sid and detaches sid from the
// relays of other sessions.
func (m *RelayManager) StopSession(sid domain.SessionID) {
	m.mu.Lock()
	var stopped []*Relay
	for key, relay := range m.relays {
		if key.Session == sid {
			delete(m.relays, key)
			stopped = append(stopped, relay)
		}
	}
	m.mu.Unlock()

	for _, relay := range stopped {
		relay.markAllDelete()
		relay.cancel()
	}
	m.MarkSubscriberDelete(sid)
}

func (m *RelayManager) HasRelay(key RelayKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[key]
	return ok
}

// Subscribers returns the number of subscribers of the relay at key.
func (m *RelayManager) Subscribers(key RelayKey) int {
	m.mu.RLock()
	relay, ok := m.relays[key]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return relay.subscribers()
}

// Wait blocks until every relay loop returned.
func (m *RelayManager) Wait() {
	m.wg.Wait()
}
