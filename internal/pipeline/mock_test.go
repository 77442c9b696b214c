package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talentsignal/sourcing-cli/internal/limiter"
	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/store"
	"github.com/talentsignal/sourcing-cli/pkg/directory"
	"github.com/talentsignal/sourcing-cli/pkg/screening"
)

// Compile-time interface checks.
var (
	_ directory.Client = (*fakeDirectory)(nil)
	_ screening.Client = (*fakeScreening)(nil)
)

// fakeDirectory implements directory.Client with function fields and
// call counting, so tests can script failures at exact points.
type fakeDirectory struct {
	mu         sync.Mutex
	searchFn   func(filters *model.JobFilters, max int) ([]model.Identity, error)
	fetchFn    func(identities []model.Identity) ([]model.RawProfile, error)
	searchCall int
	fetchCalls [][]string
}

func (f *fakeDirectory) Search(_ context.Context, filters *model.JobFilters, max int) ([]model.Identity, error) {
	f.mu.Lock()
	f.searchCall++
	f.mu.Unlock()
	return f.searchFn(filters, max)
}

func (f *fakeDirectory) Fetch(_ context.Context, identities []model.Identity) ([]model.RawProfile, error) {
	urls := make([]string, len(identities))
	for i, id := range identities {
		urls[i] = id.ProfileURL
	}
	f.mu.Lock()
	f.fetchCalls = append(f.fetchCalls, urls)
	f.mu.Unlock()
	return f.fetchFn(identities)
}

func (f *fakeDirectory) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, call := range f.fetchCalls {
		out = append(out, call...)
	}
	return out
}

// fakeScreening implements screening.Client.
type fakeScreening struct {
	mu         sync.Mutex
	formatFn   func(rawText string) (*model.JobFilters, error)
	scoreFn    func(profile *model.CandidateProfile) (*model.ScoreBreakdown, error)
	scoreCalls int
}

func (f *fakeScreening) FormatRequirements(_ context.Context, rawText string) (*model.JobFilters, error) {
	return f.formatFn(rawText)
}

func (f *fakeScreening) ScoreProfile(_ context.Context, profile *model.CandidateProfile, _ *model.JobFilters) (*model.ScoreBreakdown, error) {
	f.mu.Lock()
	f.scoreCalls++
	f.mu.Unlock()
	return f.scoreFn(profile)
}

// --- defaults ---

func defaultFilters() *model.JobFilters {
	return &model.JobFilters{
		Skills:    []string{"go", "postgres"},
		Titles:    []string{"backend engineer"},
		Seniority: "senior",
	}
}

// happyDirectory serves n identities and echoes profiles back for any
// fetch.
func happyDirectory(n int) *fakeDirectory {
	return &fakeDirectory{
		searchFn: func(_ *model.JobFilters, max int) ([]model.Identity, error) {
			if n > max {
				n = max
			}
			identities := make([]model.Identity, n)
			for i := range identities {
				identities[i] = model.Identity{
					ProfileURL: testProfileURL(i),
					FullName:   fmt.Sprintf("Person %d", i),
				}
			}
			return identities, nil
		},
		fetchFn: echoFetch,
	}
}

func echoFetch(identities []model.Identity) ([]model.RawProfile, error) {
	profiles := make([]model.RawProfile, len(identities))
	for i, id := range identities {
		profiles[i] = model.RawProfile{
			ProfileURL: id.ProfileURL,
			Payload: []byte(fmt.Sprintf(
				`{"full_name":%q,"headline":"Engineer","skills":["Go","PostgreSQL"]}`, id.FullName)),
		}
	}
	return profiles, nil
}

// happyScreening extracts default filters and scores everything 80.
func happyScreening() *fakeScreening {
	return &fakeScreening{
		formatFn: func(string) (*model.JobFilters, error) {
			return defaultFilters(), nil
		},
		scoreFn: func(*model.CandidateProfile) (*model.ScoreBreakdown, error) {
			return &model.ScoreBreakdown{
				SkillsScore:     80,
				ExperienceScore: 80,
				IndustryScore:   80,
				TitleScore:      80,
				BonusScore:      80,
				MatchScore:      80,
				MatchedSkills:   []string{"go"},
			}, nil
		},
	}
}

func testProfileURL(i int) string {
	return fmt.Sprintf("https://directory.example/profiles/p%03d", i)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// racingStore lets a test interleave a rival mutation between a retry
// controller's read and its register.
type racingStore struct {
	store.Store
	beforeRegister func()
}

func (r *racingStore) RegisterRetry(ctx context.Context, jobID string, expected model.JobStatus, consumeAttempt bool) error {
	if r.beforeRegister != nil {
		r.beforeRegister()
	}
	return r.Store.RegisterRetry(ctx, jobID, expected, consumeAttempt)
}

func newTestPipeline(t *testing.T, st store.Store, dir *fakeDirectory, scr *fakeScreening, notifier Notifier) *Pipeline {
	t.Helper()
	return New(st, dir, scr, limiter.New(limiter.Config{}), notifier, Options{
		BatchSize:    5,
		EnrichFanout: 2,
	})
}

// recordingNotifier captures the progress value at every notification.
type recordingNotifier struct {
	mu       sync.Mutex
	store    store.Store
	progress []int
}

func (r *recordingNotifier) Notify(jobID string) {
	job, err := r.store.GetJob(context.Background(), jobID)
	if err != nil {
		return
	}
	r.mu.Lock()
	r.progress = append(r.progress, Progress(job))
	r.mu.Unlock()
}
