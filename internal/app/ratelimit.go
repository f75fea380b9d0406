package app

import (
	"sync"
	"time"

	"github.com/beatsync/server/internal/core"
	"github.com/beatsync/server/internal/domain"
	"golang.org/x/time/rate"
)

// ChatRateLimit and ChatRateLimitInterval cap how many chat messages a
// single client may send in a rolling window before HandleSendChatMessage
// starts rejecting them.
const (
	ChatRateLimit         = 5
	ChatRateLimitInterval = 10 * time.Second
)

// NTPRateLimit and NTPRateLimitBurst bound the token bucket behind
// per-client NTP probe throttling. A client's own convergence loop
// bursts a handful of probes on join then settles to roughly one per
// second, well inside this budget; a runaway or hostile client is cut
// off instead of burning a goroutine per probe.
const (
	NTPRateLimit      rate.Limit = core.NTPBootstrapHz
	NTPRateLimitBurst            = 10
)

// chatRateLimiter is a sliding-window limiter keyed by client: a
// per-client slice of recent timestamps, pruned to the window on every
// check. Kept as a plain timestamp slice rather than a token bucket
// because the chat window is small and low-frequency enough that the
// slice copy never matters.
type chatRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ClientID][]time.Time
	limit    int
	interval time.Duration
}

func newChatRateLimiter(limit int, interval time.Duration) *chatRateLimiter {
	return &chatRateLimiter{
		history:  make(map[domain.ClientID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

// Allow reports whether id may send another message right now, and
// records the attempt if so.
func (rl *chatRateLimiter) Allow(id domain.ClientID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts))
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

// forget drops id's window, called once its session leaves the room so
// the map doesn't keep growing for every clientId that ever connected.
func (rl *chatRateLimiter) forget(id domain.ClientID) {
	rl.mu.Lock()
	delete(rl.history, id)
	rl.mu.Unlock()
}

// ntpRateLimiter hands out a token-bucket rate.Limiter per client,
// lazily created on a client's first probe. Unlike chat, NTP probes
// arrive often enough that a sliding-window slice copy per request
// would be wasteful, so this uses golang.org/x/time/rate directly.
type ntpRateLimiter struct {
	mu       sync.Mutex
	limiters map[domain.ClientID]*rate.Limiter
}

func newNTPRateLimiter() *ntpRateLimiter {
	return &ntpRateLimiter{limiters: make(map[domain.ClientID]*rate.Limiter)}
}

// Allow reports whether id's bucket currently has a token, consuming
// one if so.
func (rl *ntpRateLimiter) Allow(id domain.ClientID) bool {
	rl.mu.Lock()
	lim, ok := rl.limiters[id]
	if !ok {
		lim = rate.NewLimiter(NTPRateLimit, NTPRateLimitBurst)
		rl.limiters[id] = lim
	}
	rl.mu.Unlock()
	return lim.Allow()
}

// forget drops id's bucket, called once its session leaves the room.
func (rl *ntpRateLimiter) forget(id domain.ClientID) {
	rl.mu.Lock()
	delete(rl.limiters, id)
	rl.mu.Unlock()
}
