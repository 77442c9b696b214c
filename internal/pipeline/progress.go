package pipeline

import "github.com/talentsignal/sourcing-cli/internal/model"

// Stage progress bands. Pre-batch stages each pin a fixed value; the
// four batch stages each span batchStageSpan points, advanced by the
// stage's cursor. FAILED and RATE_LIMITED report the progress of the
// interrupted stage, so progress never moves backwards on an outage.
const (
	progressCreated       = 5
	progressFormatting    = 10
	progressJDFormatted   = 15
	progressSearching     = 20
	progressProfilesFound = 25
	batchStageSpan        = 15
	progressCompleted     = 100
)

var batchStageBase = map[model.JobStatus]int{
	model.StatusScraping: progressProfilesFound,
	model.StatusParsing:  progressProfilesFound + batchStageSpan,
	model.StatusSaving:   progressProfilesFound + 2*batchStageSpan,
	model.StatusScoring:  progressProfilesFound + 3*batchStageSpan,
}

// Progress projects the job's checkpoint onto a 0-100 scale.
func Progress(job *model.SourcingJob) int {
	status := job.Status
	if status == model.StatusFailed || status == model.StatusRateLimited {
		status = job.CurrentStage
	}

	switch status {
	case model.StatusCreated:
		return progressCreated
	case model.StatusFormattingJD:
		return progressFormatting
	case model.StatusJDFormatted:
		return progressJDFormatted
	case model.StatusSearching:
		return progressSearching
	case model.StatusProfilesFound:
		return progressProfilesFound
	case model.StatusCompleted:
		return progressCompleted
	}

	base, ok := batchStageBase[status]
	if !ok {
		return 0
	}
	if job.TotalBatches <= 0 {
		return base
	}
	done := job.Cursor(status)
	if done > job.TotalBatches {
		done = job.TotalBatches
	}
	return base + batchStageSpan*done/job.TotalBatches
}
