// Package pipeline orchestrates the stages of a sourcing job: formatting
// requirements, discovering identities, scraping, parsing, saving and
// scoring candidate profiles. Every stage checkpoint lives in the store,
// so a job can resume mid-stage after a crash, failure or rate limit.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/limiter"
	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/resilience"
	"github.com/talentsignal/sourcing-cli/internal/store"
	"github.com/talentsignal/sourcing-cli/pkg/directory"
	"github.com/talentsignal/sourcing-cli/pkg/screening"
)

// Notifier receives a wake-up whenever a job's persisted state changed.
// The stream hub implements it; NopNotifier is used when nobody watches.
type Notifier interface {
	Notify(jobID string)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(string) {}

// Options tunes the pipeline's batching and failure behavior.
type Options struct {
	// BatchSize is the number of profiles per batch in the scrape, parse,
	// save and score stages.
	BatchSize int
	// EnrichFanout caps concurrent directory fetches within one batch.
	EnrichFanout int
	// DefaultMaxCandidates applies when a job does not set its own cap.
	DefaultMaxCandidates int
	// FailureBackoff is the base cooldown before a failed job may retry;
	// it doubles per consumed retry.
	FailureBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.EnrichFanout <= 0 {
		o.EnrichFanout = 4
	}
	if o.DefaultMaxCandidates <= 0 {
		o.DefaultMaxCandidates = 50
	}
	if o.FailureBackoff <= 0 {
		o.FailureBackoff = 30 * time.Second
	}
	return o
}

// Pipeline drives sourcing jobs through their stages.
type Pipeline struct {
	store     store.Store
	directory directory.Client
	screening screening.Client
	limiter   *limiter.Limiter
	notifier  Notifier
	opts      Options
}

// New creates a Pipeline with all dependencies.
func New(
	st store.Store,
	dirClient directory.Client,
	screenClient screening.Client,
	lim *limiter.Limiter,
	notifier Notifier,
	opts Options,
) *Pipeline {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Pipeline{
		store:     st,
		directory: dirClient,
		screening: screenClient,
		limiter:   lim,
		notifier:  notifier,
		opts:      opts.withDefaults(),
	}
}

// Create registers a new job and returns it. The job is not started.
func (p *Pipeline) Create(ctx context.Context, title, rawRequirements string, maxCandidates int) (*model.SourcingJob, error) {
	if maxCandidates <= 0 {
		maxCandidates = p.opts.DefaultMaxCandidates
	}
	job := &model.SourcingJob{
		Title:           title,
		RawRequirements: rawRequirements,
		MaxCandidates:   maxCandidates,
	}
	if err := p.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	p.notifier.Notify(job.ID)
	return job, nil
}

// Resume drives the job from its checkpointed state until it completes,
// fails, or hits a rate limit. It is idempotent: calling it on a job in
// any state either makes progress or returns immediately.
func (p *Pipeline) Resume(ctx context.Context, jobID string) error {
	log := zap.L().With(zap.String("job_id", jobID))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := p.store.GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		switch job.Status {
		case model.StatusCompleted:
			return nil
		case model.StatusFailed, model.StatusRateLimited:
			// Another writer paused the job; retry goes through the
			// retry controller, not Resume.
			return nil
		}

		log.Info("pipeline: running stage",
			zap.String("stage", string(job.Status)),
			zap.Int("progress", Progress(job)),
		)

		if err := p.step(ctx, job); err != nil {
			return p.interrupt(ctx, job, err)
		}
		p.notifier.Notify(jobID)
	}
}

// step advances the job by one unit of work: a full non-batch stage, or
// one batch of a batch stage, including the transition out of a finished
// stage.
func (p *Pipeline) step(ctx context.Context, job *model.SourcingJob) error {
	switch job.Status {
	case model.StatusCreated:
		return p.transition(ctx, job, model.StatusFormattingJD)
	case model.StatusFormattingJD:
		if err := p.runFormat(ctx, job); err != nil {
			return err
		}
		return p.transition(ctx, job, model.StatusJDFormatted)
	case model.StatusJDFormatted:
		return p.transition(ctx, job, model.StatusSearching)
	case model.StatusSearching:
		done, err := p.runDiscover(ctx, job)
		if err != nil {
			return err
		}
		if done {
			// Nothing to source; the job is complete with zero candidates.
			return p.complete(ctx, job)
		}
		return p.transition(ctx, job, model.StatusProfilesFound)
	case model.StatusProfilesFound:
		return p.transition(ctx, job, model.StatusScraping)
	case model.StatusScraping:
		return p.runBatchStage(ctx, job, p.scrapeBatch)
	case model.StatusParsing:
		return p.runBatchStage(ctx, job, p.parseBatch)
	case model.StatusSaving:
		return p.runBatchStage(ctx, job, p.saveBatch)
	case model.StatusScoring:
		return p.runBatchStage(ctx, job, p.scoreBatch)
	}
	return eris.Errorf("pipeline: job %s in unexpected state %s", job.ID, job.Status)
}

// batchFn performs one batch of a stage and returns the number of items
// it handled.
type batchFn func(ctx context.Context, job *model.SourcingJob, batch int) (int, error)

// runBatchStage executes the next pending batch of the job's current
// stage, or transitions to the following stage when all batches are done.
func (p *Pipeline) runBatchStage(ctx context.Context, job *model.SourcingJob, fn batchFn) error {
	if job.StageDone(job.Status) {
		if job.Status == model.StatusScoring {
			return p.complete(ctx, job)
		}
		return p.transition(ctx, job, job.Status.Next())
	}

	batch := job.Cursor(job.Status) + 1
	items, err := fn(ctx, job, batch)
	if err != nil {
		return err
	}

	if err := p.store.CompleteBatch(ctx, job.ID, job.Status, batch, items); err != nil {
		return err
	}
	zap.L().Info("pipeline: batch complete",
		zap.String("job_id", job.ID),
		zap.String("stage", string(job.Status)),
		zap.Int("batch", batch),
		zap.Int("of", job.TotalBatches),
		zap.Int("items", items),
	)
	return nil
}

func (p *Pipeline) transition(ctx context.Context, job *model.SourcingJob, to model.JobStatus) error {
	return p.store.TransitionStatus(ctx, job.ID, []model.JobStatus{job.Status}, to)
}

func (p *Pipeline) complete(ctx context.Context, job *model.SourcingJob) error {
	if err := p.store.MarkCompleted(ctx, job.ID); err != nil {
		return err
	}
	zap.L().Info("pipeline: job complete",
		zap.String("job_id", job.ID),
		zap.Int("found", job.TotalProfilesFound),
		zap.Int("scored", job.ProfilesScored),
	)
	return nil
}

// interrupt records why the job stopped. A typed rate-limit error pauses
// the job without consuming a retry attempt; a store conflict means some
// other writer already owns the job; anything else fails the job with a
// cooldown before it may be retried.
func (p *Pipeline) interrupt(ctx context.Context, job *model.SourcingJob, cause error) error {
	defer p.notifier.Notify(job.ID)
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("stage", string(job.Status)))

	if errors.Is(cause, store.ErrConflict) {
		log.Warn("pipeline: lost checkpoint race, yielding")
		return nil
	}

	if rle := resilience.AsRateLimit(cause); rle != nil {
		log.Warn("pipeline: rate limited",
			zap.String("capability", string(rle.Capability)),
			zap.Time("reset_at", rle.ResetAt),
		)
		if err := p.store.MarkRateLimited(ctx, job.ID, string(rle.Capability), rle.ResetAt); err != nil && !errors.Is(err, store.ErrConflict) {
			return err
		}
		return nil
	}

	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		// Shutdown, not failure. The checkpoint is intact; a sweep or
		// manual retry resumes from it.
		log.Info("pipeline: interrupted", zap.Error(cause))
		return cause
	}

	cooldown := p.opts.FailureBackoff << uint(min(job.RetryCount, 6))
	log.Error("pipeline: stage failed", zap.Error(cause), zap.Duration("cooldown", cooldown))
	if err := p.store.MarkFailed(ctx, job.ID, cause.Error(), time.Now().Add(cooldown)); err != nil && !errors.Is(err, store.ErrConflict) {
		return err
	}
	return cause
}
