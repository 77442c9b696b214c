package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/talentsignal/sourcing-cli/internal/model"
)

func TestFormatJobsList(t *testing.T) {
	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	jobs := []model.SourcingJob{
		{
			ID:                 "a3e1b2c4-5678-90ab-cdef-000000000001",
			Title:              "Senior Backend Engineer with a very long job title",
			Status:             model.StatusCompleted,
			TotalProfilesFound: 40,
			ProfilesScored:     38,
			CreatedAt:          created,
		},
		{
			ID:        "b4f2c3d5-6789-01bc-def0-000000000002",
			Title:     "SRE",
			Status:    model.StatusRateLimited,
			CreatedAt: created,
		},
	}

	var buf bytes.Buffer
	formatJobsList(&buf, jobs)
	out := buf.String()

	assert.Contains(t, out, "a3e1b2c4")
	assert.NotContains(t, out, "cdef-000000000001")
	assert.Contains(t, out, "Senior Backend Engineer wit...")
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "RATE_LIMITED")
	assert.Contains(t, out, "2026-02-01 09:00")
}

func TestFormatCandidatesList(t *testing.T) {
	candidates := []model.CandidateProfile{
		{
			FullName:   "Dana Reyes",
			Headline:   "Staff Engineer",
			ProfileURL: "https://directory.example/p/dana",
			Scores:     &model.ScoreBreakdown{MatchScore: 91.5},
		},
		{FullName: "Kim Osei", ProfileURL: "https://directory.example/p/kim"},
	}

	var buf bytes.Buffer
	formatCandidatesList(&buf, candidates)
	out := buf.String()

	assert.Contains(t, out, "Dana Reyes")
	assert.Contains(t, out, "91.5")
	assert.Contains(t, out, "https://directory.example/p/kim")
	// Unscored candidate shows a zero score rather than being dropped.
	assert.Contains(t, out, "0.0")
}

func TestFormatStatusFailedJob(t *testing.T) {
	retryAfter := time.Now().Add(45 * time.Minute)
	job := &model.SourcingJob{
		ID:               "job-1",
		Title:            "Data Engineer",
		Status:           model.StatusFailed,
		CurrentStage:     model.StatusScraping,
		TotalBatches:     4,
		LastScrapedBatch: 2,
		RetryCount:       1,
		MaxRetries:       3,
		RetryAfter:       &retryAfter,
		ErrorMessage:     "directory: search request: 403",
		CreatedAt:        time.Now().Add(-time.Hour),
	}

	var buf bytes.Buffer
	formatStatus(&buf, job)
	out := buf.String()

	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "Interrupted stage:")
	assert.Contains(t, out, "SCRAPING_PROFILES")
	assert.Contains(t, out, "scraped 2/4")
	assert.Contains(t, out, "directory: search request: 403")
	assert.Contains(t, out, "1/3 used")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "a3e1b2c4", truncateID("a3e1b2c4-5678-90ab"))
	assert.Equal(t, "short", truncateID("short"))
}
