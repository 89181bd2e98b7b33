// Package ratelimit implements the per-key sliding-window counter used to
// throttle login-initiation abuse.
package ratelimit

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Config sets the window length and the number of requests allowed inside
// it.
type Config struct {
	Window time.Duration
	Max    int
}

// DefaultConfig allows 10 requests per minute.
func DefaultConfig() Config {
	return Config{Window: time.Minute, Max: 10}
}

// Limiter is a sliding-window rate limiter. Each key's request timestamps
// live in a TTL cache whose background expiry reclaims memory for idle
// keys; correctness relies only on the inline pruning in Check.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	history *ttlcache.Cache[string, []time.Time]

	now func() time.Time
}

// New creates a Limiter and starts its background cleanup.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Max <= 0 {
		cfg.Max = 10
	}
	history := ttlcache.New(
		ttlcache.WithTTL[string, []time.Time](cfg.Window),
		ttlcache.WithDisableTouchOnHit[string, []time.Time](),
	)
	go history.Start()

	return &Limiter{
		window:  cfg.Window,
		max:     cfg.Max,
		history: history,
		now:     time.Now,
	}
}

// Check records the current attempt against key and reports whether it is
// allowed. Denied attempts are not recorded.
func (l *Limiter) Check(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var hist []time.Time
	if item := l.history.Get(key); item != nil {
		hist = item.Value()
	}

	pruned := make([]time.Time, 0, len(hist)+1)
	for _, ts := range hist {
		if now.Sub(ts) < l.window {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= l.max {
		l.history.Set(key, pruned, l.window)
		return false
	}

	pruned = append(pruned, now)
	l.history.Set(key, pruned, l.window)
	return true
}

// Reset clears one key's history, restoring its full capacity.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history.Delete(key)
}

// Clear clears the history of every key.
func (l *Limiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history.DeleteAll()
}

// Stop halts the background cleanup goroutine.
func (l *Limiter) Stop() {
	l.history.Stop()
}
