package store

import (
	"context"
	"errors"
	"time"

	"github.com/talentsignal/sourcing-cli/internal/model"
)

// ErrNotFound is returned when a job or candidate row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a compare-and-set update matched no row:
// the job's status or cursor no longer held the expected value. Callers
// treat this as "another writer owns the job" and back off.
var ErrConflict = errors.New("store: conflicting update")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status  model.JobStatus `json:"status,omitempty"`
	OwnerID string          `json:"owner_id,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the sourcing pipeline.
//
// Every checkpoint mutation is a single guarded UPDATE (compare-and-set on
// the current status or cursor), which makes read-modify-write atomic per
// job and rejects lost updates between the orchestrator's batch loop and a
// concurrent retry request.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job *model.SourcingJob) error
	GetJob(ctx context.Context, jobID string) (*model.SourcingJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.SourcingJob, error)
	ListStaleJobs(ctx context.Context, olderThan time.Time) ([]model.SourcingJob, error)

	// Checkpoint transitions. All return ErrConflict when the guard fails.
	TransitionStatus(ctx context.Context, jobID string, from []model.JobStatus, to model.JobStatus) error
	CompleteBatch(ctx context.Context, jobID string, stage model.JobStatus, batch, items int) error
	SetRequirements(ctx context.Context, jobID string, filters *model.JobFilters) error
	SetDiscovered(ctx context.Context, jobID string, totalFound, totalBatches int) error
	MarkRateLimited(ctx context.Context, jobID, limitType string, resetAt time.Time) error
	MarkFailed(ctx context.Context, jobID, message string, retryAfter time.Time) error
	MarkCompleted(ctx context.Context, jobID string) error
	RegisterRetry(ctx context.Context, jobID string, expected model.JobStatus, consumeAttempt bool) error

	// Discovery and enrichment artifacts, keyed by (job, position) so each
	// stage resumes at an exact batch boundary.
	InsertIdentities(ctx context.Context, jobID string, identities []model.Identity) error
	ListIdentities(ctx context.Context, jobID string, offset, limit int) ([]model.Identity, error)
	SaveRawProfiles(ctx context.Context, jobID string, batch, startPosition int, profiles []model.RawProfile) error
	ListRawProfiles(ctx context.Context, jobID string, batch int) ([]model.RawProfile, error)
	SaveParsedProfiles(ctx context.Context, jobID string, batch int, parsed []model.CandidateProfile) error
	ListParsedProfiles(ctx context.Context, jobID string, batch int) ([]model.CandidateProfile, error)

	// Candidates
	InsertCandidates(ctx context.Context, jobID string, batch int, candidates []model.CandidateProfile) (saved, duplicates int, err error)
	ListUnscoredCandidates(ctx context.Context, jobID string, batch int) ([]model.CandidateProfile, error)
	CountScoredCandidates(ctx context.Context, jobID string, batch int) (int, error)
	UpdateCandidateScores(ctx context.Context, jobID string, scores map[string]model.ScoreBreakdown) error
	RankedCandidates(ctx context.Context, jobID string, limit int) ([]model.CandidateProfile, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// cursorColumns maps a batch stage to its cursor and counter columns.
// Shared by both store implementations.
func cursorColumns(stage model.JobStatus) (cursor, counter string, ok bool) {
	switch stage {
	case model.StatusScraping:
		return "last_scraped_batch", "profiles_scraped", true
	case model.StatusParsing:
		return "last_parsed_batch", "profiles_parsed", true
	case model.StatusSaving:
		return "last_saved_batch", "profiles_saved", true
	case model.StatusScoring:
		return "last_scored_batch", "profiles_scored", true
	}
	return "", "", false
}
