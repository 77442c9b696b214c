package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/pipeline"
	"github.com/talentsignal/sourcing-cli/internal/store"
)

// blockingRunner resumes jobs only when released.
type blockingRunner struct {
	mu      sync.Mutex
	resumed []string
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{})}
}

func (r *blockingRunner) Resume(ctx context.Context, jobID string) error {
	r.mu.Lock()
	r.resumed = append(r.resumed, jobID)
	r.mu.Unlock()
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *blockingRunner) resumedJobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.resumed...)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestStartRejectsDuplicate(t *testing.T) {
	runner := newBlockingRunner()
	pool := New(runner, nil, nil)

	require.NoError(t, pool.Start(context.Background(), "job-1"))
	assert.Error(t, pool.Start(context.Background(), "job-1"))
	assert.True(t, pool.Running("job-1"))

	close(runner.release)
	pool.Wait()
	assert.False(t, pool.Running("job-1"))

	// Finished jobs can start again.
	runner.release = make(chan struct{})
	close(runner.release)
	require.NoError(t, pool.Start(context.Background(), "job-1"))
	pool.Wait()
}

func TestSweepRestartsEligibleJobs(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	eligible := &model.SourcingJob{Title: "A", RawRequirements: "x", MaxCandidates: 10}
	require.NoError(t, st.CreateJob(ctx, eligible))
	require.NoError(t, st.TransitionStatus(ctx, eligible.ID, []model.JobStatus{model.StatusCreated}, model.StatusFormattingJD))
	require.NoError(t, st.MarkFailed(ctx, eligible.ID, "boom", time.Now().Add(-time.Minute)))

	cooling := &model.SourcingJob{Title: "B", RawRequirements: "x", MaxCandidates: 10}
	require.NoError(t, st.CreateJob(ctx, cooling))
	require.NoError(t, st.MarkFailed(ctx, cooling.ID, "boom", time.Now().Add(time.Hour)))

	runner := newBlockingRunner()
	close(runner.release)
	pool := New(runner, pipeline.NewRetryController(st, 10*time.Minute), st)

	// Negative threshold: every non-completed job counts as stale, so
	// eligibility is decided purely by the retry controller.
	started, err := pool.Sweep(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, started)

	pool.Wait()
	assert.Equal(t, []string{eligible.ID}, runner.resumedJobs())

	// The eligible job's failure bookkeeping was cleared on restart.
	got, err := st.GetJob(ctx, eligible.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFormattingJD, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestSweepSkipsRunningJobs(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	job := &model.SourcingJob{Title: "A", RawRequirements: "x", MaxCandidates: 10}
	require.NoError(t, st.CreateJob(ctx, job))
	require.NoError(t, st.MarkFailed(ctx, job.ID, "boom", time.Now().Add(-time.Minute)))

	runner := newBlockingRunner()
	pool := New(runner, pipeline.NewRetryController(st, 10*time.Minute), st)
	require.NoError(t, pool.Start(ctx, job.ID))

	started, err := pool.Sweep(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Zero(t, started)

	close(runner.release)
	pool.Wait()
	assert.Len(t, runner.resumedJobs(), 1)
}
