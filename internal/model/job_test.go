package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusNext(t *testing.T) {
	assert.Equal(t, StatusFormattingJD, StatusCreated.Next())
	assert.Equal(t, StatusScraping, StatusProfilesFound.Next())
	assert.Equal(t, StatusCompleted, StatusScoring.Next())
	// Non-active states have no successor.
	assert.Equal(t, StatusFailed, StatusFailed.Next())
}

func TestStatusClassification(t *testing.T) {
	assert.True(t, StatusCreated.IsActive())
	assert.True(t, StatusScoring.IsActive())
	assert.False(t, StatusRateLimited.IsActive())
	assert.False(t, StatusCompleted.IsActive())

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusRateLimited.IsTerminal())

	assert.True(t, StatusScraping.IsBatchStage())
	assert.True(t, StatusScoring.IsBatchStage())
	assert.False(t, StatusSearching.IsBatchStage())
}

func TestBatchCount(t *testing.T) {
	assert.Equal(t, 0, BatchCount(0, 10))
	assert.Equal(t, 1, BatchCount(1, 10))
	assert.Equal(t, 1, BatchCount(10, 10))
	assert.Equal(t, 2, BatchCount(11, 10))
	assert.Equal(t, 5, BatchCount(47, 10))
}

func TestCursorPerStage(t *testing.T) {
	j := &SourcingJob{
		LastScrapedBatch: 4,
		LastParsedBatch:  3,
		LastSavedBatch:   2,
		LastScoredBatch:  1,
		TotalBatches:     4,
	}

	assert.Equal(t, 4, j.Cursor(StatusScraping))
	assert.Equal(t, 1, j.Cursor(StatusScoring))
	assert.Equal(t, 0, j.Cursor(StatusSearching))

	assert.True(t, j.StageDone(StatusScraping))
	assert.False(t, j.StageDone(StatusScoring))
}
