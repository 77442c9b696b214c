package stream

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/pipeline"
	"github.com/talentsignal/sourcing-cli/internal/store"
)

// Event is one snapshot of a watched job.
type Event struct {
	JobID    string          `json:"job_id"`
	Status   model.JobStatus `json:"status"`
	Stage    model.JobStatus `json:"stage"`
	Progress int             `json:"progress"`

	ProfilesFound  int `json:"profiles_found"`
	ProfilesSaved  int `json:"profiles_saved"`
	ProfilesScored int `json:"profiles_scored"`

	// Candidates is the current ranked slice of scored, non-duplicate
	// profiles, re-read alongside the job on every snapshot.
	Candidates []model.CandidateProfile `json:"candidates"`

	Error    string     `json:"error,omitempty"`
	ResumeAt *time.Time `json:"resume_at,omitempty"`

	// Done marks the final event of the stream.
	Done bool `json:"done"`
}

// equal compares snapshots by value; ResumeAt pointers and the candidate
// slice come from separate store reads, so both compare by content.
func (e Event) equal(o Event) bool {
	if e.JobID != o.JobID || e.Status != o.Status || e.Stage != o.Stage ||
		e.Progress != o.Progress || e.Done != o.Done || e.Error != o.Error {
		return false
	}
	if e.ProfilesFound != o.ProfilesFound || e.ProfilesSaved != o.ProfilesSaved ||
		e.ProfilesScored != o.ProfilesScored {
		return false
	}
	if !sameInstant(e.ResumeAt, o.ResumeAt) {
		return false
	}
	if len(e.Candidates) != len(o.Candidates) {
		return false
	}
	for i := range e.Candidates {
		if e.Candidates[i].ID != o.Candidates[i].ID ||
			e.Candidates[i].MatchScore() != o.Candidates[i].MatchScore() {
			return false
		}
	}
	return true
}

func sameInstant(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	}
	return a.Equal(*b)
}

// snapshot reads the ranked candidate slice to accompany the job state.
// A failed candidate read degrades the event rather than ending the
// stream; the next poll retries it.
func (r *Reporter) snapshot(ctx context.Context, job *model.SourcingJob) Event {
	e := jobEvent(job)
	candidates, err := r.store.RankedCandidates(ctx, job.ID, 0)
	if err != nil {
		zap.L().Warn("stream: ranked candidates read failed", zap.String("job_id", job.ID), zap.Error(err))
		candidates = []model.CandidateProfile{}
	}
	if candidates == nil {
		candidates = []model.CandidateProfile{}
	}
	e.Candidates = candidates
	return e
}

func jobEvent(job *model.SourcingJob) Event {
	e := Event{
		JobID:          job.ID,
		Status:         job.Status,
		Stage:          job.CurrentStage,
		Progress:       pipeline.Progress(job),
		ProfilesFound:  job.TotalProfilesFound,
		ProfilesSaved:  job.ProfilesSaved,
		ProfilesScored: job.ProfilesScored,
		Error:          job.ErrorMessage,
		Done:           job.Status.IsTerminal(),
	}
	if job.Status == model.StatusRateLimited {
		e.ResumeAt = job.RateLimitResetAt
	} else if job.Status == model.StatusFailed {
		e.ResumeAt = job.RetryAfter
	}
	return e
}

// Reporter produces event streams for watched jobs.
type Reporter struct {
	store        store.Store
	hub          *Hub
	pollInterval time.Duration
}

// NewReporter creates a Reporter. The poll interval bounds how stale a
// stream can get if a checkpoint write raced a missed notification.
func NewReporter(st store.Store, hub *Hub, pollInterval time.Duration) *Reporter {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Reporter{store: st, hub: hub, pollInterval: pollInterval}
}

// Watch streams snapshots of the job until it completes or fails, or the
// context ends. The first event is emitted immediately; afterwards an
// event is emitted only when the snapshot changed. The channel is closed
// when the stream ends.
func (r *Reporter) Watch(ctx context.Context, jobID string) (<-chan Event, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 8)
	wake, cancel := r.hub.Subscribe(jobID)

	go func() {
		defer close(events)
		defer cancel()

		last := r.snapshot(ctx, job)
		if !emit(ctx, events, last) {
			return
		}

		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		for !last.Done {
			select {
			case <-ctx.Done():
				return
			case <-wake:
			case <-ticker.C:
			}

			job, err := r.store.GetJob(ctx, jobID)
			if err != nil {
				zap.L().Warn("stream: snapshot read failed", zap.String("job_id", jobID), zap.Error(err))
				emit(ctx, events, Event{JobID: jobID, Status: last.Status, Stage: last.Stage,
					Progress: last.Progress, Candidates: []model.CandidateProfile{},
					Error: "job state unavailable", Done: true})
				return
			}
			next := r.snapshot(ctx, job)
			if next.equal(last) {
				continue
			}
			last = next
			if !emit(ctx, events, next) {
				return
			}
		}
	}()

	return events, nil
}

func emit(ctx context.Context, events chan<- Event, e Event) bool {
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
