package signal

import (
	"sync"
	"time"

	"github.com/dkeye/jingle/internal/domain"
)

// InitiateRateLimiter bounds how many session-initiate messages one client
// may send within a sliding window.
type InitiateRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ClientID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewInitiateRateLimiter(limit int, interval time.Duration) *InitiateRateLimiter {
	return &InitiateRateLimiter{
		history:  make(map[domain.ClientID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow records an attempt for id and reports whether it is within the
// limit. A nil limiter allows everything. History outlives the connection so
// reconnecting does not reset the window; clients whose attempts all fell out
// of the window are pruned here.
func (rl *InitiateRateLimiter) Allow(id domain.ClientID) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)
	rl.prune(windowStart)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

// prune drops clients whose latest attempt is not after windowStart.
func (rl *InitiateRateLimiter) prune(windowStart time.Time) {
	for id, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, id)
		}
	}
}
