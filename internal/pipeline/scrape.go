package pipeline

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/resilience"
)

// enrichChunkSize is how many identities one directory fetch carries.
const enrichChunkSize = 5

// scrapeBatch fetches raw profiles for one batch of identities. Fetches
// fan out across sub-chunks of the batch; the batch checkpoint is only
// written after every chunk landed, so a crash re-fetches the whole
// batch (the raw-profile upsert makes that harmless).
func (p *Pipeline) scrapeBatch(ctx context.Context, job *model.SourcingJob, batch int) (int, error) {
	offset := (batch - 1) * p.opts.BatchSize
	identities, err := p.store.ListIdentities(ctx, job.ID, offset, p.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(identities) == 0 {
		return 0, nil
	}

	type chunkResult struct {
		start    int
		profiles []model.RawProfile
	}

	var mu sync.Mutex
	var results []chunkResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.EnrichFanout)

	for start := 0; start < len(identities); start += enrichChunkSize {
		start := start
		end := min(start+enrichChunkSize, len(identities))
		chunk := identities[start:end]

		g.Go(func() error {
			if err := p.limiter.Acquire(gctx, resilience.CapabilityDirectoryEnrich); err != nil {
				return err
			}
			profiles, err := resilience.DoVal(gctx, resilience.DefaultRetryConfig(), func(ctx context.Context) ([]model.RawProfile, error) {
				return p.directory.Fetch(ctx, chunk)
			})
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, chunkResult{start: start, profiles: profiles})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	// Reassemble in discovery order before persisting.
	sort.Slice(results, func(i, j int) bool { return results[i].start < results[j].start })
	var profiles []model.RawProfile
	for _, r := range results {
		profiles = append(profiles, r.profiles...)
	}

	if err := p.store.SaveRawProfiles(ctx, job.ID, batch, offset, profiles); err != nil {
		return 0, err
	}
	return len(profiles), nil
}
