package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/store"
)

// Decision is the outcome of a retry eligibility check.
type Decision struct {
	Allowed bool
	// Wait is how long until the job becomes eligible, when it is denied
	// only because a cooldown or rate-limit window is still open.
	Wait time.Duration
	// Reason explains a denial in user-facing terms.
	Reason string
	// ConsumeAttempt is true when acting on this decision spends one of
	// the job's retry attempts. Rate-limit and stuck-job resumptions are
	// free; genuine failures are not.
	ConsumeAttempt bool
}

// RetryController gates when an interrupted job may run again.
type RetryController struct {
	store store.Store
	// StaleAfter is how long an active job may go without checkpoint
	// activity before it is presumed stuck and eligible for resumption.
	staleAfter time.Duration
	now        func() time.Time
}

// NewRetryController creates a retry controller.
func NewRetryController(st store.Store, staleAfter time.Duration) *RetryController {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &RetryController{store: st, staleAfter: staleAfter, now: time.Now}
}

// CanRetry evaluates whether the job may be resumed right now.
func (c *RetryController) CanRetry(ctx context.Context, jobID string) (Decision, error) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return Decision{}, err
	}
	return c.evaluate(job), nil
}

func (c *RetryController) evaluate(job *model.SourcingJob) Decision {
	now := c.now()

	switch {
	case job.Status == model.StatusCompleted:
		return Decision{Reason: "job already completed"}

	case job.Status.IsActive():
		idle := now.Sub(job.LastActivityAt)
		if idle < c.staleAfter {
			return Decision{Reason: "job is in progress"}
		}
		// No checkpoint writes for a long time: the worker that owned
		// this job is presumed gone. Resuming costs nothing.
		return Decision{Allowed: true}

	case job.Status == model.StatusRateLimited:
		if job.RateLimitResetAt != nil && now.Before(*job.RateLimitResetAt) {
			return Decision{
				Wait:   job.RateLimitResetAt.Sub(now),
				Reason: fmt.Sprintf("rate limited on %s", job.RateLimitType),
			}
		}
		return Decision{Allowed: true}

	case job.Status == model.StatusFailed:
		if job.RetryCount >= job.MaxRetries {
			return Decision{Reason: fmt.Sprintf("retry budget exhausted (%d/%d)", job.RetryCount, job.MaxRetries)}
		}
		if job.RetryAfter != nil && now.Before(*job.RetryAfter) {
			return Decision{
				Wait:   job.RetryAfter.Sub(now),
				Reason: "failure cooldown still open",
			}
		}
		return Decision{Allowed: true, ConsumeAttempt: true}
	}

	return Decision{Reason: fmt.Sprintf("job in unexpected state %s", job.Status)}
}

// Retry applies an allowed decision: it clears the interruption fields,
// restores the job to its interrupted stage, and consumes an attempt
// when the decision says so. The caller is responsible for actually
// running the job afterwards.
func (c *RetryController) Retry(ctx context.Context, jobID string) (Decision, error) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return Decision{}, err
	}
	decision := c.evaluate(job)
	if !decision.Allowed {
		return decision, nil
	}

	// The register is guarded on the status the decision was made
	// against. If another caller resumed the job in between, the guard
	// misses and this request is denied instead of double-counted.
	if err := c.store.RegisterRetry(ctx, jobID, job.Status, decision.ConsumeAttempt); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Decision{Reason: "job already resumed by another request"}, nil
		}
		return Decision{}, err
	}
	zap.L().Info("retry registered",
		zap.String("job_id", jobID),
		zap.Bool("consumed_attempt", decision.ConsumeAttempt),
	)
	return decision, nil
}
