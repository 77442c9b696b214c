package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/resilience"
)

func TestResumeRunsJobToCompletion(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	dir := happyDirectory(12)
	scr := happyScreening()
	notifier := &recordingNotifier{store: st}
	p := newTestPipeline(t, st, dir, scr, notifier)

	job, err := p.Create(ctx, "Backend Engineer", "We need a senior Go engineer.", 50)
	require.NoError(t, err)

	require.NoError(t, p.Resume(ctx, job.ID))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 12, got.TotalProfilesFound)
	assert.Equal(t, 3, got.TotalBatches) // 12 profiles, batch size 5
	assert.Equal(t, 3, got.LastScrapedBatch)
	assert.Equal(t, 3, got.LastScoredBatch)
	assert.Equal(t, 12, got.ProfilesScraped)
	assert.Equal(t, 12, got.ProfilesParsed)
	assert.Equal(t, 12, got.ProfilesSaved)
	assert.Equal(t, 12, got.ProfilesScored)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 100, Progress(got))

	ranked, err := st.RankedCandidates(ctx, job.ID, 50)
	require.NoError(t, err)
	assert.Len(t, ranked, 12)
	for _, c := range ranked {
		assert.True(t, c.IsScored)
		require.NotNil(t, c.Scores)
		assert.Equal(t, 80.0, c.Scores.MatchScore)
	}

	// Progress observed through notifications never goes backwards.
	for i := 1; i < len(notifier.progress); i++ {
		assert.GreaterOrEqual(t, notifier.progress[i], notifier.progress[i-1],
			"progress moved backwards at notification %d: %v", i, notifier.progress)
	}
}

func TestResumeIsIdempotentOnCompletedJob(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	dir := happyDirectory(3)
	p := newTestPipeline(t, st, dir, happyScreening(), nil)

	job, err := p.Create(ctx, "Backend Engineer", "Go engineer.", 50)
	require.NoError(t, err)
	require.NoError(t, p.Resume(ctx, job.ID))

	fetchesAfterFirstRun := len(dir.fetchedURLs())
	require.NoError(t, p.Resume(ctx, job.ID))
	assert.Equal(t, fetchesAfterFirstRun, len(dir.fetchedURLs()), "completed job must not refetch")
}

func TestEmptySearchCompletesWithZeroCandidates(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	dir := &fakeDirectory{
		searchFn: func(*model.JobFilters, int) ([]model.Identity, error) {
			return nil, nil
		},
	}
	p := newTestPipeline(t, st, dir, happyScreening(), nil)

	job, err := p.Create(ctx, "Unicorn Role", "COBOL plus K8s plus juggling.", 50)
	require.NoError(t, err)
	require.NoError(t, p.Resume(ctx, job.ID))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Zero(t, got.TotalProfilesFound)
	assert.Equal(t, 100, Progress(got))
}

func TestMaxCandidatesCapsDiscovery(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	dir := happyDirectory(100)
	p := newTestPipeline(t, st, dir, happyScreening(), nil)

	job, err := p.Create(ctx, "Backend Engineer", "Go engineer.", 7)
	require.NoError(t, err)
	require.NoError(t, p.Resume(ctx, job.ID))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.TotalProfilesFound)
	assert.Equal(t, 2, got.TotalBatches)
}

func TestRateLimitPausesJobAtBatchBoundary(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	dir := happyDirectory(15)

	resetAt := time.Now().Add(time.Minute)
	scr := happyScreening()
	failing := true
	scr.scoreFn = func(c *model.CandidateProfile) (*model.ScoreBreakdown, error) {
		scr.mu.Lock()
		calls := scr.scoreCalls
		scr.mu.Unlock()
		// Scores 1-5 (batch 1) succeed, then the quota runs dry.
		if failing && calls > 5 {
			return nil, resilience.NewRateLimitError(resilience.CapabilityScreening, resetAt)
		}
		return &model.ScoreBreakdown{SkillsScore: 80, MatchScore: 80}, nil
	}
	p := newTestPipeline(t, st, dir, scr, nil)

	job, err := p.Create(ctx, "Backend Engineer", "Go engineer.", 50)
	require.NoError(t, err)
	require.NoError(t, p.Resume(ctx, job.ID))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRateLimited, got.Status)
	assert.Equal(t, model.StatusScoring, got.CurrentStage)
	assert.Equal(t, "screening", got.RateLimitType)
	require.NotNil(t, got.RateLimitResetAt)
	assert.Equal(t, 1, got.LastScoredBatch, "batch 1 checkpoint survives the pause")
	assert.Equal(t, 5, got.ProfilesScored)
	assert.Zero(t, got.RetryCount, "rate limits never consume retry attempts")

	// Progress is derived from the intact checkpoint, not the side state.
	pausedProgress := Progress(got)
	assert.Greater(t, pausedProgress, 70)
	assert.Less(t, pausedProgress, 100)

	// Quota restored: the retry controller clears the pause and Resume
	// picks up scoring where it left off.
	failing = false
	rc := NewRetryController(st, 10*time.Minute)
	rc.now = func() time.Time { return resetAt.Add(time.Second) }
	decision, err := rc.Retry(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.False(t, decision.ConsumeAttempt)

	require.NoError(t, p.Resume(ctx, job.ID))

	got, err = st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 15, got.ProfilesScored)
	assert.Zero(t, got.RetryCount)
}

func TestRetryDeniedWhileRateLimitWindowOpen(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	dir := happyDirectory(5)
	scr := happyScreening()
	resetAt := time.Now().Add(time.Minute)
	scr.scoreFn = func(*model.CandidateProfile) (*model.ScoreBreakdown, error) {
		return nil, resilience.NewRateLimitError(resilience.CapabilityScreening, resetAt)
	}
	p := newTestPipeline(t, st, dir, scr, nil)

	job, err := p.Create(ctx, "Backend Engineer", "Go engineer.", 50)
	require.NoError(t, err)
	require.NoError(t, p.Resume(ctx, job.ID))

	rc := NewRetryController(st, 10*time.Minute)
	decision, err := rc.CanRetry(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Greater(t, decision.Wait, 30*time.Second)
	assert.Contains(t, decision.Reason, "rate limited")
}

func TestPermanentFailureMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	dir := &fakeDirectory{
		searchFn: func(*model.JobFilters, int) ([]model.Identity, error) {
			return nil, eris.New("directory: status 403: forbidden")
		},
	}
	p := newTestPipeline(t, st, dir, happyScreening(), nil)

	job, err := p.Create(ctx, "Backend Engineer", "Go engineer.", 50)
	require.NoError(t, err)
	err = p.Resume(ctx, job.ID)
	require.Error(t, err)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, model.StatusSearching, got.CurrentStage)
	assert.Contains(t, got.ErrorMessage, "403")
	require.NotNil(t, got.FailedAt)
	require.NotNil(t, got.RetryAfter, "failure sets a retry cooldown")
}

func TestFailedJobRetryConsumesAttemptAndResumesStage(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	broken := true
	dir := happyDirectory(5)
	base := dir.searchFn
	dir.searchFn = func(f *model.JobFilters, max int) ([]model.Identity, error) {
		if broken {
			return nil, eris.New("directory: status 400: bad request")
		}
		return base(f, max)
	}
	p := newTestPipeline(t, st, dir, happyScreening(), nil)

	job, err := p.Create(ctx, "Backend Engineer", "Go engineer.", 50)
	require.NoError(t, err)
	require.Error(t, p.Resume(ctx, job.ID))

	rc := NewRetryController(st, 10*time.Minute)
	rc.now = func() time.Time { return time.Now().Add(time.Hour) } // past the cooldown

	broken = false
	decision, err := rc.Retry(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	assert.True(t, decision.ConsumeAttempt)

	require.NoError(t, p.Resume(ctx, job.ID))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	// Formatting was already checkpointed, so the retry resumed at the
	// search stage instead of re-running the LLM extraction.
	require.NotNil(t, got.Requirements)
}

func TestConcurrentRetryRegistersOnce(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	p := newTestPipeline(t, st, happyDirectory(5), happyScreening(), nil)

	job, err := p.Create(ctx, "Backend Engineer", "Go engineer.", 50)
	require.NoError(t, err)
	require.NoError(t, st.TransitionStatus(ctx, job.ID, []model.JobStatus{model.StatusCreated}, model.StatusFormattingJD))
	require.NoError(t, st.MarkFailed(ctx, job.ID, "upstream 500", time.Now().Add(-time.Second)))

	// A rival request resumes the job between this controller's read and
	// its register. The stale register must lose, not double-count.
	rival := NewRetryController(st, 10*time.Minute)
	raced := &racingStore{Store: st, beforeRegister: func() {
		d, err := rival.Retry(ctx, job.ID)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}}
	rc := NewRetryController(raced, 10*time.Minute)

	decision, err := rc.Retry(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "already resumed")

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFormattingJD, got.Status)
	assert.Equal(t, 1, got.RetryCount, "only the winning request consumes an attempt")
}

func TestDuplicateProfilesExcludedFromScoring(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// 8 identities, but positions 5-7 repeat the URLs of 0-2: the second
	// batch re-surfaces three profiles from the first.
	dir := happyDirectory(8)
	dir.searchFn = func(*model.JobFilters, int) ([]model.Identity, error) {
		identities := make([]model.Identity, 8)
		for i := range identities {
			identities[i] = model.Identity{ProfileURL: testProfileURL(i % 5), FullName: "Person"}
		}
		return identities, nil
	}
	scr := happyScreening()
	p := newTestPipeline(t, st, dir, scr, nil)

	job, err := p.Create(ctx, "Backend Engineer", "Go engineer.", 50)
	require.NoError(t, err)
	require.NoError(t, p.Resume(ctx, job.ID))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 8, got.TotalProfilesFound)
	assert.Equal(t, 8, got.ProfilesSaved, "duplicates are stored, flagged")
	assert.Equal(t, 5, got.ProfilesScored, "only unique profiles are scored")
	assert.Equal(t, 5, scr.scoreCalls)

	ranked, err := st.RankedCandidates(ctx, job.ID, 50)
	require.NoError(t, err)
	assert.Len(t, ranked, 5)
}

func TestRetryGating(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name           string
		job            model.SourcingJob
		wantAllowed    bool
		wantConsume    bool
		wantWait       bool
		reasonContains string
	}{
		{
			name:           "completed job",
			job:            model.SourcingJob{Status: model.StatusCompleted},
			reasonContains: "completed",
		},
		{
			name:           "active and fresh",
			job:            model.SourcingJob{Status: model.StatusScraping, LastActivityAt: now},
			reasonContains: "in progress",
		},
		{
			name:        "active but stale",
			job:         model.SourcingJob{Status: model.StatusScraping, LastActivityAt: now.Add(-time.Hour)},
			wantAllowed: true,
		},
		{
			name:        "rate limited past reset",
			job:         model.SourcingJob{Status: model.StatusRateLimited, RateLimitResetAt: &past},
			wantAllowed: true,
		},
		{
			name:           "rate limited before reset",
			job:            model.SourcingJob{Status: model.StatusRateLimited, RateLimitType: "screening", RateLimitResetAt: &future},
			wantWait:       true,
			reasonContains: "rate limited",
		},
		{
			name:        "failed past cooldown",
			job:         model.SourcingJob{Status: model.StatusFailed, MaxRetries: 3, RetryAfter: &past},
			wantAllowed: true,
			wantConsume: true,
		},
		{
			name:           "failed within cooldown",
			job:            model.SourcingJob{Status: model.StatusFailed, MaxRetries: 3, RetryAfter: &future},
			wantWait:       true,
			reasonContains: "cooldown",
		},
		{
			name:           "failed with budget exhausted",
			job:            model.SourcingJob{Status: model.StatusFailed, RetryCount: 3, MaxRetries: 3, RetryAfter: &past},
			reasonContains: "budget exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := NewRetryController(nil, 10*time.Minute)
			rc.now = func() time.Time { return now }

			decision := rc.evaluate(&tt.job)
			assert.Equal(t, tt.wantAllowed, decision.Allowed)
			assert.Equal(t, tt.wantConsume, decision.ConsumeAttempt)
			if tt.wantWait {
				assert.Greater(t, decision.Wait, time.Duration(0))
			}
			if tt.reasonContains != "" {
				assert.Contains(t, decision.Reason, tt.reasonContains)
			}
		})
	}
}

func TestProgressBands(t *testing.T) {
	job := &model.SourcingJob{Status: model.StatusCreated}
	assert.Equal(t, 5, Progress(job))

	job.Status = model.StatusProfilesFound
	assert.Equal(t, 25, Progress(job))

	job.Status = model.StatusScoring
	job.TotalBatches = 4
	prev := 0
	for batch := 0; batch <= 4; batch++ {
		job.LastScoredBatch = batch
		p := Progress(job)
		assert.Greater(t, p, prev, "scoring progress must strictly increase per batch")
		prev = p
	}
	assert.Equal(t, 85, prev)

	// Side states project from the interrupted stage.
	job.Status = model.StatusRateLimited
	job.CurrentStage = model.StatusScoring
	assert.Equal(t, 85, Progress(job))

	job.Status = model.StatusCompleted
	assert.Equal(t, 100, Progress(job))
}

func TestMalformedProfileSkippedNotFatal(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	dir := happyDirectory(3)
	dir.fetchFn = func(identities []model.Identity) ([]model.RawProfile, error) {
		profiles, _ := echoFetch(identities)
		profiles[0].Payload = []byte("this is not json")
		return profiles, nil
	}
	p := newTestPipeline(t, st, dir, happyScreening(), nil)

	job, err := p.Create(ctx, "Backend Engineer", "Go engineer.", 50)
	require.NoError(t, err)
	require.NoError(t, p.Resume(ctx, job.ID))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 3, got.ProfilesScraped)
	assert.Equal(t, 2, got.ProfilesParsed)
	assert.Equal(t, 2, got.ProfilesScored)
}
