package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/talentsignal/sourcing-cli/internal/db"
	"github.com/talentsignal/sourcing-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const jobColumns = `id, owner_id, title, raw_requirements, requirements, max_candidates,
	status, current_stage, total_batches,
	last_scraped_batch, last_parsed_batch, last_saved_batch, last_scored_batch,
	total_profiles_found, profiles_scraped, profiles_parsed, profiles_saved, profiles_scored,
	retry_count, max_retries, retry_after, rate_limit_type, rate_limit_reset_at,
	error_message, last_activity_at, created_at, completed_at, failed_at`

const candidateColumns = `id, job_id, profile_url, full_name, headline, location, email,
	experience, education, skills,
	skills_score, experience_score, industry_score, title_score, bonus_score, match_score,
	matched_skills, missing_skills, bonus_skills,
	is_duplicate, is_scored, batch_number, scraped_at`

// preparedStatements lists queries prepared on each new connection for the
// hottest store operations (every batch loop iteration reads the job row).
var preparedStatements = map[string]string{
	"get_job": `SELECT ` + jobColumns + ` FROM sourcing_jobs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sourcing_jobs (
	id                   TEXT PRIMARY KEY,
	owner_id             TEXT NOT NULL DEFAULT '',
	title                TEXT NOT NULL,
	raw_requirements     TEXT NOT NULL,
	requirements         JSONB,
	max_candidates       INTEGER NOT NULL DEFAULT 50,
	status               TEXT NOT NULL DEFAULT 'CREATED',
	current_stage        TEXT NOT NULL DEFAULT 'CREATED',
	total_batches        INTEGER NOT NULL DEFAULT 0,
	last_scraped_batch   INTEGER NOT NULL DEFAULT 0,
	last_parsed_batch    INTEGER NOT NULL DEFAULT 0,
	last_saved_batch     INTEGER NOT NULL DEFAULT 0,
	last_scored_batch    INTEGER NOT NULL DEFAULT 0,
	total_profiles_found INTEGER NOT NULL DEFAULT 0,
	profiles_scraped     INTEGER NOT NULL DEFAULT 0,
	profiles_parsed      INTEGER NOT NULL DEFAULT 0,
	profiles_saved       INTEGER NOT NULL DEFAULT 0,
	profiles_scored      INTEGER NOT NULL DEFAULT 0,
	retry_count          INTEGER NOT NULL DEFAULT 0,
	max_retries          INTEGER NOT NULL DEFAULT 3,
	retry_after          TIMESTAMPTZ,
	rate_limit_type      TEXT NOT NULL DEFAULT '',
	rate_limit_reset_at  TIMESTAMPTZ,
	error_message        TEXT NOT NULL DEFAULT '',
	last_activity_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at         TIMESTAMPTZ,
	failed_at            TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sourcing_jobs_status ON sourcing_jobs(status);
CREATE INDEX IF NOT EXISTS idx_sourcing_jobs_owner ON sourcing_jobs(owner_id);
CREATE INDEX IF NOT EXISTS idx_sourcing_jobs_activity ON sourcing_jobs(last_activity_at);

CREATE TABLE IF NOT EXISTS discovered_identities (
	job_id      TEXT NOT NULL REFERENCES sourcing_jobs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	profile_url TEXT NOT NULL,
	full_name   TEXT NOT NULL DEFAULT '',
	headline    TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (job_id, position)
);

CREATE TABLE IF NOT EXISTS raw_profiles (
	job_id       TEXT NOT NULL REFERENCES sourcing_jobs(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	batch_number INTEGER NOT NULL,
	profile_url  TEXT NOT NULL,
	payload      JSONB NOT NULL,
	parsed       JSONB,
	fetched_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (job_id, position)
);

CREATE INDEX IF NOT EXISTS idx_raw_profiles_batch ON raw_profiles(job_id, batch_number);

CREATE TABLE IF NOT EXISTS candidates (
	id               TEXT PRIMARY KEY,
	job_id           TEXT NOT NULL REFERENCES sourcing_jobs(id) ON DELETE CASCADE,
	profile_url      TEXT NOT NULL,
	full_name        TEXT NOT NULL DEFAULT '',
	headline         TEXT NOT NULL DEFAULT '',
	location         TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	experience       JSONB,
	education        JSONB,
	skills           JSONB,
	skills_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
	experience_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	industry_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	title_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
	bonus_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
	match_score      DOUBLE PRECISION NOT NULL DEFAULT 0,
	matched_skills   JSONB,
	missing_skills   JSONB,
	bonus_skills     JSONB,
	is_duplicate     BOOLEAN NOT NULL DEFAULT false,
	is_scored        BOOLEAN NOT NULL DEFAULT false,
	batch_number     INTEGER NOT NULL DEFAULT 0,
	batch_position   INTEGER NOT NULL DEFAULT 0,
	scraped_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_candidates_job_batch_pos ON candidates(job_id, batch_number, batch_position);
CREATE INDEX IF NOT EXISTS idx_candidates_ranked ON candidates(job_id, match_score DESC) WHERE is_scored AND NOT is_duplicate;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.SourcingJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.LastActivityAt = now
	if job.Status == "" {
		job.Status = model.StatusCreated
	}
	if job.CurrentStage == "" {
		job.CurrentStage = job.Status
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = 3
	}

	var reqJSON []byte
	if job.Requirements != nil {
		var err error
		reqJSON, err = json.Marshal(job.Requirements)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal requirements")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sourcing_jobs (id, owner_id, title, raw_requirements, requirements, max_candidates,
			status, current_stage, max_retries, last_activity_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.OwnerID, job.Title, job.RawRequirements, reqJSON, job.MaxCandidates,
		string(job.Status), string(job.CurrentStage), job.MaxRetries, now, now,
	)
	return eris.Wrap(err, "postgres: insert job")
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.SourcingJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM sourcing_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.SourcingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sourcing_jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.OwnerID != "" {
		query += fmt.Sprintf(` AND owner_id = $%d`, argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *PostgresStore) ListStaleJobs(ctx context.Context, olderThan time.Time) ([]model.SourcingJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM sourcing_jobs
		WHERE status <> $1 AND last_activity_at < $2
		ORDER BY last_activity_at ASC`,
		string(model.StatusCompleted), olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stale jobs")
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *PostgresStore) TransitionStatus(ctx context.Context, jobID string, from []model.JobStatus, to model.JobStatus) error {
	fromStrs := make([]string, len(from))
	for i, st := range from {
		fromStrs[i] = string(st)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE sourcing_jobs
		SET status = $1,
		    current_stage = CASE WHEN $2 THEN $1 ELSE current_stage END,
		    last_activity_at = $3
		WHERE id = $4 AND status = ANY($5)`,
		string(to), to.IsActive(), time.Now().UTC(), jobID, fromStrs,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: transition job %s to %s", jobID, to)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) CompleteBatch(ctx context.Context, jobID string, stage model.JobStatus, batch, items int) error {
	cursor, counter, ok := cursorColumns(stage)
	if !ok {
		return eris.Errorf("postgres: %s is not a batch stage", stage)
	}

	// Guarded on both status and the previous cursor value: the cursor is
	// monotonic and a batch can complete exactly once.
	query := fmt.Sprintf(
		`UPDATE sourcing_jobs
		SET %[1]s = $1, %[2]s = %[2]s + $2, last_activity_at = $3
		WHERE id = $4 AND status = $5 AND %[1]s = $1 - 1`,
		cursor, counter,
	)
	tag, err := s.pool.Exec(ctx, query, batch, items, time.Now().UTC(), jobID, string(stage))
	if err != nil {
		return eris.Wrapf(err, "postgres: complete batch %d of %s", batch, stage)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) SetRequirements(ctx context.Context, jobID string, filters *model.JobFilters) error {
	reqJSON, err := json.Marshal(filters)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal requirements")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE sourcing_jobs SET requirements = $1, last_activity_at = $2
		WHERE id = $3 AND status = $4`,
		reqJSON, time.Now().UTC(), jobID, string(model.StatusFormattingJD),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set requirements %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) SetDiscovered(ctx context.Context, jobID string, totalFound, totalBatches int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sourcing_jobs SET total_profiles_found = $1, total_batches = $2, last_activity_at = $3
		WHERE id = $4 AND status = $5`,
		totalFound, totalBatches, time.Now().UTC(), jobID, string(model.StatusSearching),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set discovered %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) MarkRateLimited(ctx context.Context, jobID, limitType string, resetAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sourcing_jobs
		SET status = $1, rate_limit_type = $2, rate_limit_reset_at = $3, last_activity_at = $4
		WHERE id = $5 AND status NOT IN ($6, $7)`,
		string(model.StatusRateLimited), limitType, resetAt.UTC(), time.Now().UTC(), jobID,
		string(model.StatusCompleted), string(model.StatusFailed),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark rate limited %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, jobID, message string, retryAfter time.Time) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE sourcing_jobs
		SET status = $1, error_message = $2, failed_at = $3, retry_after = $4, last_activity_at = $3
		WHERE id = $5 AND status NOT IN ($6, $7)`,
		string(model.StatusFailed), message, now, retryAfter.UTC(), jobID,
		string(model.StatusCompleted), string(model.StatusFailed),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark failed %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE sourcing_jobs
		SET status = $1, completed_at = $2, last_activity_at = $2
		WHERE id = $3 AND status NOT IN ($1, $4)`,
		string(model.StatusCompleted), now, jobID, string(model.StatusFailed),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark completed %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) RegisterRetry(ctx context.Context, jobID string, expected model.JobStatus, consumeAttempt bool) error {
	delta := 0
	if consumeAttempt {
		delta = 1
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sourcing_jobs
		SET status = current_stage, retry_count = retry_count + $1,
		    error_message = '', failed_at = NULL, retry_after = NULL,
		    rate_limit_type = '', rate_limit_reset_at = NULL,
		    last_activity_at = $2
		WHERE id = $3 AND status = $4`,
		delta, time.Now().UTC(), jobID, string(expected),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: register retry %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) InsertIdentities(ctx context.Context, jobID string, identities []model.Identity) error {
	if len(identities) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin insert identities")
	}
	defer tx.Rollback(ctx)

	for i, ident := range identities {
		_, err := tx.Exec(ctx,
			`INSERT INTO discovered_identities (job_id, position, profile_url, full_name, headline, location)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (job_id, position) DO NOTHING`,
			jobID, i, ident.ProfileURL, ident.FullName, ident.Headline, ident.Location,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert identity %d", i)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit identities")
}

func (s *PostgresStore) ListIdentities(ctx context.Context, jobID string, offset, limit int) ([]model.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT profile_url, full_name, headline, location FROM discovered_identities
		WHERE job_id = $1 ORDER BY position OFFSET $2 LIMIT $3`,
		jobID, offset, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list identities")
	}
	defer rows.Close()

	var out []model.Identity
	for rows.Next() {
		var ident model.Identity
		if err := rows.Scan(&ident.ProfileURL, &ident.FullName, &ident.Headline, &ident.Location); err != nil {
			return nil, eris.Wrap(err, "postgres: scan identity")
		}
		out = append(out, ident)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate identities")
}

func (s *PostgresStore) SaveRawProfiles(ctx context.Context, jobID string, batch, startPosition int, profiles []model.RawProfile) error {
	if len(profiles) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save raw profiles")
	}
	defer tx.Rollback(ctx)

	for i, p := range profiles {
		fetchedAt := p.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now().UTC()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO raw_profiles (job_id, position, batch_number, profile_url, payload, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (job_id, position) DO UPDATE SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at`,
			jobID, startPosition+i, batch, p.ProfileURL, p.Payload, fetchedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: save raw profile %d", startPosition+i)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit raw profiles")
}

func (s *PostgresStore) ListRawProfiles(ctx context.Context, jobID string, batch int) ([]model.RawProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT profile_url, payload, fetched_at FROM raw_profiles
		WHERE job_id = $1 AND batch_number = $2 ORDER BY position`,
		jobID, batch,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list raw profiles")
	}
	defer rows.Close()

	var out []model.RawProfile
	for rows.Next() {
		var p model.RawProfile
		if err := rows.Scan(&p.ProfileURL, &p.Payload, &p.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw profile")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate raw profiles")
}

func (s *PostgresStore) SaveParsedProfiles(ctx context.Context, jobID string, batch int, parsed []model.CandidateProfile) error {
	if len(parsed) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save parsed")
	}
	defer tx.Rollback(ctx)

	for _, c := range parsed {
		parsedJSON, err := json.Marshal(c)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal parsed profile")
		}
		_, err = tx.Exec(ctx,
			`UPDATE raw_profiles SET parsed = $1
			WHERE job_id = $2 AND batch_number = $3 AND profile_url = $4`,
			parsedJSON, jobID, batch, c.ProfileURL,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: save parsed profile %s", c.ProfileURL)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit parsed profiles")
}

func (s *PostgresStore) ListParsedProfiles(ctx context.Context, jobID string, batch int) ([]model.CandidateProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT parsed FROM raw_profiles
		WHERE job_id = $1 AND batch_number = $2 AND parsed IS NOT NULL ORDER BY position`,
		jobID, batch,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parsed profiles")
	}
	defer rows.Close()

	var out []model.CandidateProfile
	for rows.Next() {
		var parsedJSON []byte
		if err := rows.Scan(&parsedJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan parsed profile")
		}
		var c model.CandidateProfile
		if err := json.Unmarshal(parsedJSON, &c); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal parsed profile")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate parsed profiles")
}

func (s *PostgresStore) InsertCandidates(ctx context.Context, jobID string, batch int, candidates []model.CandidateProfile) (int, int, error) {
	if len(candidates) == 0 {
		return 0, 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, eris.Wrap(err, "postgres: begin insert candidates")
	}
	defer tx.Rollback(ctx)

	// Existing URLs for the job determine duplicate flagging; a repeated
	// URL is still inserted as its own flagged row. The unique index on
	// (job_id, batch_number, batch_position) makes re-running a batch a
	// no-op rather than an extra row.
	rows, err := tx.Query(ctx, `SELECT profile_url FROM candidates WHERE job_id = $1`, jobID)
	if err != nil {
		return 0, 0, eris.Wrap(err, "postgres: query existing urls")
	}
	seen := make(map[string]bool)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			rows.Close()
			return 0, 0, eris.Wrap(err, "postgres: scan existing url")
		}
		seen[url] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, eris.Wrap(err, "postgres: iterate existing urls")
	}

	var saved, duplicates int
	for i, c := range candidates {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.JobID = jobID
		c.BatchNumber = batch
		c.IsDuplicate = seen[c.ProfileURL]
		seen[c.ProfileURL] = true

		expJSON, eduJSON, skillsJSON, err := marshalCandidateDocs(&c)
		if err != nil {
			return 0, 0, err
		}
		scrapedAt := c.ScrapedAt
		if scrapedAt.IsZero() {
			scrapedAt = time.Now().UTC()
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO candidates (id, job_id, profile_url, full_name, headline, location, email,
				experience, education, skills, is_duplicate, batch_number, batch_position, scraped_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (job_id, batch_number, batch_position) DO NOTHING`,
			c.ID, c.JobID, c.ProfileURL, c.FullName, c.Headline, c.Location, c.Email,
			expJSON, eduJSON, skillsJSON, c.IsDuplicate, c.BatchNumber, i, scrapedAt,
		)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "postgres: insert candidate %s", c.ProfileURL)
		}
		if tag.RowsAffected() == 0 {
			continue // batch re-run, row already present
		}
		if c.IsDuplicate {
			duplicates++
		} else {
			saved++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, eris.Wrap(err, "postgres: commit candidates")
	}
	return saved, duplicates, nil
}

func (s *PostgresStore) ListUnscoredCandidates(ctx context.Context, jobID string, batch int) ([]model.CandidateProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM candidates
		WHERE job_id = $1 AND batch_number = $2 AND NOT is_duplicate AND NOT is_scored
		ORDER BY batch_position`,
		jobID, batch,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unscored candidates")
	}
	defer rows.Close()

	return collectCandidates(rows)
}

func (s *PostgresStore) CountScoredCandidates(ctx context.Context, jobID string, batch int) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM candidates
		WHERE job_id = $1 AND batch_number = $2 AND is_scored AND NOT is_duplicate`,
		jobID, batch,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: count scored candidates")
	}
	return n, nil
}

func (s *PostgresStore) UpdateCandidateScores(ctx context.Context, jobID string, scores map[string]model.ScoreBreakdown) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update scores")
	}
	defer tx.Rollback(ctx)

	for candidateID, sb := range scores {
		matchedJSON, err := json.Marshal(sb.MatchedSkills)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal matched skills")
		}
		missingJSON, err := json.Marshal(sb.MissingSkills)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal missing skills")
		}
		bonusJSON, err := json.Marshal(sb.BonusSkills)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal bonus skills")
		}

		_, err = tx.Exec(ctx,
			`UPDATE candidates
			SET skills_score = $1, experience_score = $2, industry_score = $3,
			    title_score = $4, bonus_score = $5, match_score = $6,
			    matched_skills = $7, missing_skills = $8, bonus_skills = $9,
			    is_scored = true
			WHERE id = $10 AND job_id = $11`,
			sb.SkillsScore, sb.ExperienceScore, sb.IndustryScore,
			sb.TitleScore, sb.BonusScore, sb.MatchScore,
			matchedJSON, missingJSON, bonusJSON,
			candidateID, jobID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update score %s", candidateID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit scores")
}

func (s *PostgresStore) RankedCandidates(ctx context.Context, jobID string, limit int) ([]model.CandidateProfile, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM candidates
		WHERE job_id = $1 AND is_scored AND NOT is_duplicate
		ORDER BY match_score DESC, profile_url ASC LIMIT $2`,
		jobID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: ranked candidates")
	}
	defer rows.Close()

	return collectCandidates(rows)
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.SourcingJob, error) {
	var j model.SourcingJob
	var reqJSON []byte
	var status, stage string

	err := row.Scan(
		&j.ID, &j.OwnerID, &j.Title, &j.RawRequirements, &reqJSON, &j.MaxCandidates,
		&status, &stage, &j.TotalBatches,
		&j.LastScrapedBatch, &j.LastParsedBatch, &j.LastSavedBatch, &j.LastScoredBatch,
		&j.TotalProfilesFound, &j.ProfilesScraped, &j.ProfilesParsed, &j.ProfilesSaved, &j.ProfilesScored,
		&j.RetryCount, &j.MaxRetries, &j.RetryAfter, &j.RateLimitType, &j.RateLimitResetAt,
		&j.ErrorMessage, &j.LastActivityAt, &j.CreatedAt, &j.CompletedAt, &j.FailedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Status = model.JobStatus(status)
	j.CurrentStage = model.JobStatus(stage)
	if len(reqJSON) > 0 {
		j.Requirements = &model.JobFilters{}
		if err := json.Unmarshal(reqJSON, j.Requirements); err != nil {
			return nil, eris.Wrap(err, "unmarshal requirements")
		}
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]model.SourcingJob, error) {
	var jobs []model.SourcingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}

func scanCandidate(row rowScanner) (*model.CandidateProfile, error) {
	var c model.CandidateProfile
	var expJSON, eduJSON, skillsJSON, matchedJSON, missingJSON, bonusJSON []byte
	var sb model.ScoreBreakdown

	err := row.Scan(
		&c.ID, &c.JobID, &c.ProfileURL, &c.FullName, &c.Headline, &c.Location, &c.Email,
		&expJSON, &eduJSON, &skillsJSON,
		&sb.SkillsScore, &sb.ExperienceScore, &sb.IndustryScore, &sb.TitleScore, &sb.BonusScore, &sb.MatchScore,
		&matchedJSON, &missingJSON, &bonusJSON,
		&c.IsDuplicate, &c.IsScored, &c.BatchNumber, &c.ScrapedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, pair := range []struct {
		data []byte
		dst  any
	}{
		{expJSON, &c.Experience},
		{eduJSON, &c.Education},
		{skillsJSON, &c.Skills},
		{matchedJSON, &sb.MatchedSkills},
		{missingJSON, &sb.MissingSkills},
		{bonusJSON, &sb.BonusSkills},
	} {
		if len(pair.data) > 0 {
			if err := json.Unmarshal(pair.data, pair.dst); err != nil {
				return nil, eris.Wrap(err, "unmarshal candidate field")
			}
		}
	}

	if c.IsScored {
		c.Scores = &sb
	}
	return &c, nil
}

func collectCandidates(rows pgx.Rows) ([]model.CandidateProfile, error) {
	var out []model.CandidateProfile
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate candidates")
}

func marshalCandidateDocs(c *model.CandidateProfile) (exp, edu, skills []byte, err error) {
	if exp, err = json.Marshal(c.Experience); err != nil {
		return nil, nil, nil, eris.Wrap(err, "marshal experience")
	}
	if edu, err = json.Marshal(c.Education); err != nil {
		return nil, nil, nil, eris.Wrap(err, "marshal education")
	}
	if skills, err = json.Marshal(c.Skills); err != nil {
		return nil, nil, nil, eris.Wrap(err, "marshal skills")
	}
	return exp, edu, skills, nil
}
