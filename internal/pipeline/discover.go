package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/resilience"
)

// runDiscover searches the directory for identities matching the job's
// filters and persists them in discovery order. Returns done=true when
// the search matched nothing, which completes the job immediately.
func (p *Pipeline) runDiscover(ctx context.Context, job *model.SourcingJob) (done bool, err error) {
	if job.Requirements.IsZero() {
		return false, eris.Errorf("pipeline: job %s reached discovery without filters", job.ID)
	}

	// Already discovered on a previous attempt; only the counters write
	// was lost.
	if job.TotalProfilesFound > 0 {
		return false, nil
	}

	if err := p.limiter.Acquire(ctx, resilience.CapabilityDirectorySearch); err != nil {
		return false, err
	}

	identities, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) ([]model.Identity, error) {
		return p.directory.Search(ctx, job.Requirements, job.MaxCandidates)
	})
	if err != nil {
		return false, err
	}

	zap.L().Info("pipeline: profiles discovered",
		zap.String("job_id", job.ID),
		zap.Int("found", len(identities)),
	)

	if len(identities) == 0 {
		return true, nil
	}

	if err := p.store.InsertIdentities(ctx, job.ID, identities); err != nil {
		return false, err
	}
	batches := model.BatchCount(len(identities), p.opts.BatchSize)
	if err := p.store.SetDiscovered(ctx, job.ID, len(identities), batches); err != nil {
		return false, err
	}
	return false, nil
}
