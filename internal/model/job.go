package model

import (
	"time"
)

// JobStatus represents the current state of a sourcing job.
type JobStatus string

const (
	StatusCreated       JobStatus = "CREATED"
	StatusFormattingJD  JobStatus = "FORMATTING_JD"
	StatusJDFormatted   JobStatus = "JD_FORMATTED"
	StatusSearching     JobStatus = "SEARCHING_PROFILES"
	StatusProfilesFound JobStatus = "PROFILES_FOUND"
	StatusScraping      JobStatus = "SCRAPING_PROFILES"
	StatusParsing       JobStatus = "PARSING_PROFILES"
	StatusSaving        JobStatus = "SAVING_PROFILES"
	StatusScoring       JobStatus = "SCORING_PROFILES"
	StatusCompleted     JobStatus = "COMPLETED"
	StatusRateLimited   JobStatus = "RATE_LIMITED"
	StatusFailed        JobStatus = "FAILED"
)

// stageOrder lists the active processing states in pipeline order.
var stageOrder = []JobStatus{
	StatusCreated,
	StatusFormattingJD,
	StatusJDFormatted,
	StatusSearching,
	StatusProfilesFound,
	StatusScraping,
	StatusParsing,
	StatusSaving,
	StatusScoring,
}

// IsActive returns true if the status is one of the processing states
// (neither terminal nor paused).
func (s JobStatus) IsActive() bool {
	for _, st := range stageOrder {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal returns true once the job can make no further progress
// without external intervention.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsBatchStage returns true for the four cursor-driven stages.
func (s JobStatus) IsBatchStage() bool {
	switch s {
	case StatusScraping, StatusParsing, StatusSaving, StatusScoring:
		return true
	}
	return false
}

// Next returns the status that follows s in the pipeline order, or
// StatusCompleted after the final stage.
func (s JobStatus) Next() JobStatus {
	for i, st := range stageOrder {
		if s == st {
			if i+1 < len(stageOrder) {
				return stageOrder[i+1]
			}
			return StatusCompleted
		}
	}
	return s
}

// SourcingJob is the unit of pipeline work, one per user-initiated search.
type SourcingJob struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Title           string     `json:"title"`
	RawRequirements string     `json:"raw_requirements"`
	Requirements    *JobFilters `json:"requirements,omitempty"`
	MaxCandidates   int        `json:"max_candidates"`

	Status       JobStatus `json:"status"`
	CurrentStage JobStatus `json:"current_stage"`

	TotalBatches     int `json:"total_batches"`
	LastScrapedBatch int `json:"last_scraped_batch"`
	LastParsedBatch  int `json:"last_parsed_batch"`
	LastSavedBatch   int `json:"last_saved_batch"`
	LastScoredBatch  int `json:"last_scored_batch"`

	TotalProfilesFound int `json:"total_profiles_found"`
	ProfilesScraped    int `json:"profiles_scraped"`
	ProfilesParsed     int `json:"profiles_parsed"`
	ProfilesSaved      int `json:"profiles_saved"`
	ProfilesScored     int `json:"profiles_scored"`

	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
	RetryAfter *time.Time `json:"retry_after,omitempty"`

	RateLimitType    string     `json:"rate_limit_type,omitempty"`
	RateLimitResetAt *time.Time `json:"rate_limit_reset_at,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	LastActivityAt time.Time  `json:"last_activity_at"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
}

// Cursor returns the last-completed batch for the given batch stage.
func (j *SourcingJob) Cursor(stage JobStatus) int {
	switch stage {
	case StatusScraping:
		return j.LastScrapedBatch
	case StatusParsing:
		return j.LastParsedBatch
	case StatusSaving:
		return j.LastSavedBatch
	case StatusScoring:
		return j.LastScoredBatch
	}
	return 0
}

// StageDone reports whether the given batch stage has processed all batches.
func (j *SourcingJob) StageDone(stage JobStatus) bool {
	return j.Cursor(stage) >= j.TotalBatches
}

// Checkpoint is the durable tuple the orchestrator and retry controller
// share. It is read and written via single compare-and-set statements so
// concurrent writers cannot interleave a lost update.
type Checkpoint struct {
	Status           JobStatus  `json:"status"`
	CurrentStage     JobStatus  `json:"current_stage"`
	LastScrapedBatch int        `json:"last_scraped_batch"`
	LastParsedBatch  int        `json:"last_parsed_batch"`
	LastSavedBatch   int        `json:"last_saved_batch"`
	LastScoredBatch  int        `json:"last_scored_batch"`
	TotalBatches     int        `json:"total_batches"`
	RetryCount       int        `json:"retry_count"`
	RetryAfter       *time.Time `json:"retry_after,omitempty"`
	RateLimitResetAt *time.Time `json:"rate_limit_reset_at,omitempty"`
}

// Checkpoint extracts the checkpoint tuple from the job row.
func (j *SourcingJob) Checkpoint() Checkpoint {
	return Checkpoint{
		Status:           j.Status,
		CurrentStage:     j.CurrentStage,
		LastScrapedBatch: j.LastScrapedBatch,
		LastParsedBatch:  j.LastParsedBatch,
		LastSavedBatch:   j.LastSavedBatch,
		LastScoredBatch:  j.LastScoredBatch,
		TotalBatches:     j.TotalBatches,
		RetryCount:       j.RetryCount,
		RetryAfter:       j.RetryAfter,
		RateLimitResetAt: j.RateLimitResetAt,
	}
}

// BatchCount returns the number of batches needed to cover total items.
func BatchCount(total, batchSize int) int {
	if total <= 0 || batchSize <= 0 {
		return 0
	}
	return (total + batchSize - 1) / batchSize
}
