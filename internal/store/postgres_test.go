package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentsignal/sourcing-cli/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgresGetJobNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM sourcing_jobs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresTransitionStatusConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sourcing_jobs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.TransitionStatus(context.Background(), "job-1",
		[]model.JobStatus{model.StatusCreated}, model.StatusFormattingJD)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTransitionStatusApplied(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sourcing_jobs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.TransitionStatus(context.Background(), "job-1",
		[]model.JobStatus{model.StatusScraping}, model.StatusParsing)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteBatchUsesStageCursor(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SET last_scored_batch = \$1, profiles_scored = profiles_scored \+ \$2`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteBatch(context.Background(), "job-1", model.StatusScoring, 3, 9)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompleteBatchConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SET last_scraped_batch`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteBatch(context.Background(), "job-1", model.StatusScraping, 5, 10)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgresMarkFailedGuardsTerminalStates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sourcing_jobs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkFailed(context.Background(), "job-1", "boom", time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPostgresRegisterRetryConsumesAttempt(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SET status = current_stage, retry_count = retry_count \+ \$1`).
		WithArgs(1, pgxmock.AnyArg(), "job-1", string(model.StatusFailed)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.RegisterRetry(context.Background(), "job-1", model.StatusFailed, true)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
