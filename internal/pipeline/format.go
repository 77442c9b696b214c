package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/resilience"
)

// runFormat turns the job's free-text requirements into structured
// filters. Idempotent: a job that already has filters persisted skips
// the LLM call on resume.
func (p *Pipeline) runFormat(ctx context.Context, job *model.SourcingJob) error {
	if job.Requirements != nil && !job.Requirements.IsZero() {
		return nil
	}

	if err := p.limiter.Acquire(ctx, resilience.CapabilityScreening); err != nil {
		return err
	}

	filters, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*model.JobFilters, error) {
		return p.screening.FormatRequirements(ctx, job.RawRequirements)
	})
	if err != nil {
		return err
	}

	zap.L().Debug("pipeline: requirements formatted",
		zap.String("job_id", job.ID),
		zap.Strings("skills", filters.Skills),
		zap.Strings("titles", filters.Titles),
	)
	return p.store.SetRequirements(ctx, job.ID, filters)
}
