package pipeline

import (
	"context"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/resilience"
)

// scoreBatch scores the batch's non-duplicate candidates one at a time.
// Each score is persisted as it lands, so a rate limit mid-batch loses at
// most the in-flight call and the replayed batch only scores what is
// still unscored. The reported item count is read back from the store so
// work done before an interruption is not lost from the counters.
func (p *Pipeline) scoreBatch(ctx context.Context, job *model.SourcingJob, batch int) (int, error) {
	candidates, err := p.store.ListUnscoredCandidates(ctx, job.ID, batch)
	if err != nil {
		return 0, err
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := p.limiter.Acquire(ctx, resilience.CapabilityScreening); err != nil {
			return 0, err
		}

		c := c
		sb, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*model.ScoreBreakdown, error) {
			return p.screening.ScoreProfile(ctx, &c, job.Requirements)
		})
		if err != nil {
			return 0, err
		}

		if err := p.store.UpdateCandidateScores(ctx, job.ID, map[string]model.ScoreBreakdown{c.ID: *sb}); err != nil {
			return 0, err
		}
	}

	return p.store.CountScoredCandidates(ctx, job.ID, batch)
}
