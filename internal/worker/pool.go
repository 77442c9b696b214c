// Package worker runs sourcing jobs in the background and sweeps up
// interrupted ones.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/pipeline"
	"github.com/talentsignal/sourcing-cli/internal/store"
)

// Runner is the piece of the pipeline the pool drives. Satisfied by
// *pipeline.Pipeline.
type Runner interface {
	Resume(ctx context.Context, jobID string) error
}

// Pool runs at most one goroutine per job. The store's compare-and-set
// guards are the cross-process lock; the pool's map is just the
// in-process fast path that rejects duplicate starts cleanly.
type Pool struct {
	runner Runner
	retry  *pipeline.RetryController
	store  store.Store

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// New creates a Pool.
func New(runner Runner, rc *pipeline.RetryController, st store.Store) *Pool {
	return &Pool{
		runner:  runner,
		retry:   rc,
		store:   st,
		running: make(map[string]struct{}),
	}
}

// Start launches the job in the background. Returns an error if the job
// is already running in this process.
func (p *Pool) Start(ctx context.Context, jobID string) error {
	p.mu.Lock()
	if _, ok := p.running[jobID]; ok {
		p.mu.Unlock()
		return eris.Errorf("worker: job %s already running", jobID)
	}
	p.running[jobID] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.running, jobID)
			p.mu.Unlock()
		}()

		if err := p.runner.Resume(ctx, jobID); err != nil {
			zap.L().Warn("worker: job stopped", zap.String("job_id", jobID), zap.Error(err))
		}
	}()
	return nil
}

// Running reports whether the job is currently running in this process.
func (p *Pool) Running(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[jobID]
	return ok
}

// Wait blocks until every started job has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Sweep finds jobs whose last checkpoint activity is older than the
// threshold, asks the retry controller whether each may resume, and
// starts the eligible ones. Returns how many were restarted.
func (p *Pool) Sweep(ctx context.Context, staleAfter time.Duration) (int, error) {
	stale, err := p.store.ListStaleJobs(ctx, time.Now().Add(-staleAfter))
	if err != nil {
		return 0, err
	}

	started := 0
	for _, job := range stale {
		if p.Running(job.ID) {
			continue
		}
		decision, err := p.retry.Retry(ctx, job.ID)
		if err != nil {
			zap.L().Warn("worker: sweep retry check failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if !decision.Allowed {
			zap.L().Debug("worker: sweep skipping job",
				zap.String("job_id", job.ID),
				zap.String("reason", decision.Reason),
				zap.Duration("wait", decision.Wait),
			)
			continue
		}
		if err := p.Start(ctx, job.ID); err != nil {
			continue
		}
		started++
	}

	if started > 0 {
		zap.L().Info("worker: sweep restarted jobs", zap.Int("count", started))
	}
	return started, nil
}

// RunSweeper sweeps on an interval until the context ends.
func (p *Pool) RunSweeper(ctx context.Context, interval, staleAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Sweep(ctx, staleAfter); err != nil {
				zap.L().Warn("worker: sweep failed", zap.Error(err))
			}
		}
	}
}
