// Package limiter provides shared per-capability token buckets. External
// quota is one pool across all concurrent jobs, so every stage executor
// acquires here before calling out instead of only reacting to the
// provider's rate-limit response after the fact.
package limiter

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/talentsignal/sourcing-cli/internal/resilience"
)

// Config sets per-capability sustained request rates (requests per second)
// and burst sizes. A zero rate means the capability is unthrottled.
type Config struct {
	SearchPerSecond float64 `yaml:"search_per_second" mapstructure:"search_per_second"`
	EnrichPerSecond float64 `yaml:"enrich_per_second" mapstructure:"enrich_per_second"`
	ScreenPerSecond float64 `yaml:"screen_per_second" mapstructure:"screen_per_second"`
	Burst           int     `yaml:"burst" mapstructure:"burst"`
}

// Limiter hands out tokens per external capability. It is shared across
// all jobs of all users within one process.
type Limiter struct {
	mu      sync.Mutex
	buckets map[resilience.Capability]*rate.Limiter
}

// New creates a Limiter from config. Capabilities with a zero rate get no
// bucket and Acquire returns immediately for them.
func New(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	buckets := make(map[resilience.Capability]*rate.Limiter)
	add := func(cap resilience.Capability, perSecond float64) {
		if perSecond > 0 {
			buckets[cap] = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
	add(resilience.CapabilityDirectorySearch, cfg.SearchPerSecond)
	add(resilience.CapabilityDirectoryEnrich, cfg.EnrichPerSecond)
	add(resilience.CapabilityScreening, cfg.ScreenPerSecond)

	return &Limiter{buckets: buckets}
}

// Acquire blocks until a token is available for the capability, or the
// context is canceled.
func (l *Limiter) Acquire(ctx context.Context, cap resilience.Capability) error {
	l.mu.Lock()
	bucket := l.buckets[cap]
	l.mu.Unlock()

	if bucket == nil {
		return nil
	}
	if err := bucket.Wait(ctx); err != nil {
		return eris.Wrapf(err, "limiter: acquire %s", cap)
	}
	return nil
}
