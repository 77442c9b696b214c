package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/model"
)

// saveBatch persists one batch of parsed profiles as candidate rows.
// Re-surfaced profile URLs are stored flagged as duplicates. The item
// count is the parsed length, not the insert count: on a crash replay
// the rows already exist and the insert reports zero, but the batch
// still covered every parsed profile.
func (p *Pipeline) saveBatch(ctx context.Context, job *model.SourcingJob, batch int) (int, error) {
	parsed, err := p.store.ListParsedProfiles(ctx, job.ID, batch)
	if err != nil {
		return 0, err
	}
	if len(parsed) == 0 {
		return 0, nil
	}

	_, duplicates, err := p.store.InsertCandidates(ctx, job.ID, batch, parsed)
	if err != nil {
		return 0, err
	}
	if duplicates > 0 {
		zap.L().Info("pipeline: duplicates flagged",
			zap.String("job_id", job.ID),
			zap.Int("batch", batch),
			zap.Int("duplicates", duplicates),
		)
	}
	return len(parsed), nil
}
