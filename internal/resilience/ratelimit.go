package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Capability names one external quota pool. Each capability is throttled
// independently by the provider, so each carries its own reset time.
type Capability string

const (
	CapabilityDirectorySearch Capability = "directory_search"
	CapabilityDirectoryEnrich Capability = "directory_enrich"
	CapabilityScreening       Capability = "screening"
)

// RateLimitError signals that an external capability's quota is exhausted.
// It pauses the owning job reversibly: no retry count is consumed, and the
// job may resume once ResetAt has passed.
type RateLimitError struct {
	Capability Capability
	ResetAt    time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s until %s", e.Capability, e.ResetAt.UTC().Format(time.RFC3339))
}

// NewRateLimitError builds a rate-limit signal. A zero resetAt defaults to
// one minute out, so callers always get a usable cooldown.
func NewRateLimitError(capability Capability, resetAt time.Time) *RateLimitError {
	if resetAt.IsZero() {
		resetAt = time.Now().Add(time.Minute)
	}
	return &RateLimitError{Capability: capability, ResetAt: resetAt}
}

// AsRateLimit extracts a RateLimitError from the chain, or nil.
func AsRateLimit(err error) *RateLimitError {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle
	}
	return nil
}

// IsRateLimit reports whether the error chain contains a rate-limit signal.
func IsRateLimit(err error) bool {
	return AsRateLimit(err) != nil
}
