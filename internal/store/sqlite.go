package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/talentsignal/sourcing-cli/internal/model"
)

// SQLiteStore implements Store on an embedded database. It exists so the
// CLI works with zero infrastructure; the pipeline is single-writer per
// job so SQLite's one-writer model is not a constraint.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (creating if needed) the database at path.
// Use ":memory:" for an ephemeral store.
func NewSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// modernc's driver is not safe for concurrent writes over multiple
	// connections against the same file.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sourcing_jobs (
	id                   TEXT PRIMARY KEY,
	owner_id             TEXT NOT NULL DEFAULT '',
	title                TEXT NOT NULL,
	raw_requirements     TEXT NOT NULL,
	requirements         TEXT,
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
	retry_after          TIMESTAMP,
	rate_limit_type      TEXT NOT NULL DEFAULT '',
	rate_limit_reset_at  TIMESTAMP,
	error_message        TEXT NOT NULL DEFAULT '',
	last_activity_at     TIMESTAMP NOT NULL,
	created_at           TIMESTAMP NOT NULL,
	completed_at         TIMESTAMP,
	failed_at            TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sourcing_jobs_status ON sourcing_jobs(status);
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
	payload      BLOB NOT NULL,
	parsed       TEXT,
	fetched_at   TIMESTAMP NOT NULL,
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
	experience       TEXT,
	education        TEXT,
	skills           TEXT,
	skills_score     REAL NOT NULL DEFAULT 0,
	experience_score REAL NOT NULL DEFAULT 0,
	industry_score   REAL NOT NULL DEFAULT 0,
	title_score      REAL NOT NULL DEFAULT 0,
	bonus_score      REAL NOT NULL DEFAULT 0,
	match_score      REAL NOT NULL DEFAULT 0,
	matched_skills   TEXT,
	missing_skills   TEXT,
	bonus_skills     TEXT,
	is_duplicate     INTEGER NOT NULL DEFAULT 0,
	is_scored        INTEGER NOT NULL DEFAULT 0,
	batch_number     INTEGER NOT NULL DEFAULT 0,
	batch_position   INTEGER NOT NULL DEFAULT 0,
	scraped_at       TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_candidates_job_batch_pos ON candidates(job_id, batch_number, batch_position);
CREATE INDEX IF NOT EXISTS idx_candidates_ranked ON candidates(job_id, match_score);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.SourcingJob) error {
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

	var reqJSON any
	if job.Requirements != nil {
		data, err := json.Marshal(job.Requirements)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal requirements")
		}
		reqJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sourcing_jobs (id, owner_id, title, raw_requirements, requirements, max_candidates,
			status, current_stage, max_retries, last_activity_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.OwnerID, job.Title, job.RawRequirements, reqJSON, job.MaxCandidates,
		string(job.Status), string(job.CurrentStage), job.MaxRetries, now, now,
	)
	return eris.Wrap(err, "sqlite: insert job")
}

const sqliteJobColumns = jobColumns

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.SourcingJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteJobColumns+` FROM sourcing_jobs WHERE id = ?`, jobID)
	job, err := scanSQLiteJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.SourcingJob, error) {
	query := `SELECT ` + sqliteJobColumns + ` FROM sourcing_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	return collectSQLiteJobs(rows)
}

func (s *SQLiteStore) ListStaleJobs(ctx context.Context, olderThan time.Time) ([]model.SourcingJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteJobColumns+` FROM sourcing_jobs
		WHERE status <> ? AND last_activity_at < ?
		ORDER BY last_activity_at ASC`,
		string(model.StatusCompleted), olderThan.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stale jobs")
	}
	defer rows.Close()

	return collectSQLiteJobs(rows)
}

func (s *SQLiteStore) TransitionStatus(ctx context.Context, jobID string, from []model.JobStatus, to model.JobStatus) error {
	placeholders := make([]string, len(from))
	args := []any{string(to), to.IsActive(), string(to), time.Now().UTC(), jobID}
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	query := fmt.Sprintf(
		`UPDATE sourcing_jobs
		SET status = ?,
		    current_stage = CASE WHEN ? THEN ? ELSE current_stage END,
		    last_activity_at = ?
		WHERE id = ? AND status IN (%s)`,
		strings.Join(placeholders, ", "),
	)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: transition job %s to %s", jobID, to)
	}
	return requireRow(res)
}

func (s *SQLiteStore) CompleteBatch(ctx context.Context, jobID string, stage model.JobStatus, batch, items int) error {
	cursor, counter, ok := cursorColumns(stage)
	if !ok {
		return eris.Errorf("sqlite: %s is not a batch stage", stage)
	}

	query := fmt.Sprintf(
		`UPDATE sourcing_jobs
		SET %[1]s = ?, %[2]s = %[2]s + ?, last_activity_at = ?
		WHERE id = ? AND status = ? AND %[1]s = ? - 1`,
		cursor, counter,
	)
	res, err := s.db.ExecContext(ctx, query, batch, items, time.Now().UTC(), jobID, string(stage), batch)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete batch %d of %s", batch, stage)
	}
	return requireRow(res)
}

func (s *SQLiteStore) SetRequirements(ctx context.Context, jobID string, filters *model.JobFilters) error {
	reqJSON, err := json.Marshal(filters)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal requirements")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sourcing_jobs SET requirements = ?, last_activity_at = ?
		WHERE id = ? AND status = ?`,
		string(reqJSON), time.Now().UTC(), jobID, string(model.StatusFormattingJD),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set requirements %s", jobID)
	}
	return requireRow(res)
}

func (s *SQLiteStore) SetDiscovered(ctx context.Context, jobID string, totalFound, totalBatches int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sourcing_jobs SET total_profiles_found = ?, total_batches = ?, last_activity_at = ?
		WHERE id = ? AND status = ?`,
		totalFound, totalBatches, time.Now().UTC(), jobID, string(model.StatusSearching),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set discovered %s", jobID)
	}
	return requireRow(res)
}

func (s *SQLiteStore) MarkRateLimited(ctx context.Context, jobID, limitType string, resetAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sourcing_jobs
		SET status = ?, rate_limit_type = ?, rate_limit_reset_at = ?, last_activity_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		string(model.StatusRateLimited), limitType, resetAt.UTC(), time.Now().UTC(), jobID,
		string(model.StatusCompleted), string(model.StatusFailed),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark rate limited %s", jobID)
	}
	return requireRow(res)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, jobID, message string, retryAfter time.Time) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sourcing_jobs
		SET status = ?, error_message = ?, failed_at = ?, retry_after = ?, last_activity_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		string(model.StatusFailed), message, now, retryAfter.UTC(), now, jobID,
		string(model.StatusCompleted), string(model.StatusFailed),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark failed %s", jobID)
	}
	return requireRow(res)
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sourcing_jobs
		SET status = ?, completed_at = ?, last_activity_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		string(model.StatusCompleted), now, now, jobID,
		string(model.StatusCompleted), string(model.StatusFailed),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark completed %s", jobID)
	}
	return requireRow(res)
}

func (s *SQLiteStore) RegisterRetry(ctx context.Context, jobID string, expected model.JobStatus, consumeAttempt bool) error {
	delta := 0
	if consumeAttempt {
		delta = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sourcing_jobs
		SET status = current_stage, retry_count = retry_count + ?,
		    error_message = '', failed_at = NULL, retry_after = NULL,
		    rate_limit_type = '', rate_limit_reset_at = NULL,
		    last_activity_at = ?
		WHERE id = ? AND status = ?`,
		delta, time.Now().UTC(), jobID, string(expected),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: register retry %s", jobID)
	}
	return requireRow(res)
}

func (s *SQLiteStore) InsertIdentities(ctx context.Context, jobID string, identities []model.Identity) error {
	if len(identities) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert identities")
	}
	defer tx.Rollback()

	for i, ident := range identities {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO discovered_identities (job_id, position, profile_url, full_name, headline, location)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (job_id, position) DO NOTHING`,
			jobID, i, ident.ProfileURL, ident.FullName, ident.Headline, ident.Location,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert identity %d", i)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit identities")
}

func (s *SQLiteStore) ListIdentities(ctx context.Context, jobID string, offset, limit int) ([]model.Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT profile_url, full_name, headline, location FROM discovered_identities
		WHERE job_id = ? ORDER BY position LIMIT ? OFFSET ?`,
		jobID, limit, offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list identities")
	}
	defer rows.Close()

	var out []model.Identity
	for rows.Next() {
		var ident model.Identity
		if err := rows.Scan(&ident.ProfileURL, &ident.FullName, &ident.Headline, &ident.Location); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan identity")
		}
		out = append(out, ident)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate identities")
}

func (s *SQLiteStore) SaveRawProfiles(ctx context.Context, jobID string, batch, startPosition int, profiles []model.RawProfile) error {
	if len(profiles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save raw profiles")
	}
	defer tx.Rollback()

	for i, p := range profiles {
		fetchedAt := p.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO raw_profiles (job_id, position, batch_number, profile_url, payload, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (job_id, position) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
			jobID, startPosition+i, batch, p.ProfileURL, p.Payload, fetchedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save raw profile %d", startPosition+i)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit raw profiles")
}

func (s *SQLiteStore) ListRawProfiles(ctx context.Context, jobID string, batch int) ([]model.RawProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT profile_url, payload, fetched_at FROM raw_profiles
		WHERE job_id = ? AND batch_number = ? ORDER BY position`,
		jobID, batch,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list raw profiles")
	}
	defer rows.Close()

	var out []model.RawProfile
	for rows.Next() {
		var p model.RawProfile
		if err := rows.Scan(&p.ProfileURL, &p.Payload, &p.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw profile")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate raw profiles")
}

func (s *SQLiteStore) SaveParsedProfiles(ctx context.Context, jobID string, batch int, parsed []model.CandidateProfile) error {
	if len(parsed) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save parsed")
	}
	defer tx.Rollback()

	for _, c := range parsed {
		parsedJSON, err := json.Marshal(c)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal parsed profile")
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE raw_profiles SET parsed = ?
			WHERE job_id = ? AND batch_number = ? AND profile_url = ?`,
			string(parsedJSON), jobID, batch, c.ProfileURL,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save parsed profile %s", c.ProfileURL)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit parsed profiles")
}

func (s *SQLiteStore) ListParsedProfiles(ctx context.Context, jobID string, batch int) ([]model.CandidateProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT parsed FROM raw_profiles
		WHERE job_id = ? AND batch_number = ? AND parsed IS NOT NULL ORDER BY position`,
		jobID, batch,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parsed profiles")
	}
	defer rows.Close()

	var out []model.CandidateProfile
	for rows.Next() {
		var parsedJSON string
		if err := rows.Scan(&parsedJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parsed profile")
		}
		var c model.CandidateProfile
		if err := json.Unmarshal([]byte(parsedJSON), &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal parsed profile")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate parsed profiles")
}

func (s *SQLiteStore) InsertCandidates(ctx context.Context, jobID string, batch int, candidates []model.CandidateProfile) (int, int, error) {
	if len(candidates) == 0 {
		return 0, 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: begin insert candidates")
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT profile_url FROM candidates WHERE job_id = ?`, jobID)
	if err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: query existing urls")
	}
	seen := make(map[string]bool)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			rows.Close()
			return 0, 0, eris.Wrap(err, "sqlite: scan existing url")
		}
		seen[url] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: iterate existing urls")
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

		res, err := tx.ExecContext(ctx,
			`INSERT INTO candidates (id, job_id, profile_url, full_name, headline, location, email,
				experience, education, skills, is_duplicate, batch_number, batch_position, scraped_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (job_id, batch_number, batch_position) DO NOTHING`,
			c.ID, c.JobID, c.ProfileURL, c.FullName, c.Headline, c.Location, c.Email,
			string(expJSON), string(eduJSON), string(skillsJSON), c.IsDuplicate, c.BatchNumber, i, scrapedAt,
		)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "sqlite: insert candidate %s", c.ProfileURL)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 0 {
			continue
		}
		if c.IsDuplicate {
			duplicates++
		} else {
			saved++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: commit candidates")
	}
	return saved, duplicates, nil
}

func (s *SQLiteStore) ListUnscoredCandidates(ctx context.Context, jobID string, batch int) ([]model.CandidateProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates
		WHERE job_id = ? AND batch_number = ? AND is_duplicate = 0 AND is_scored = 0
		ORDER BY batch_position`,
		jobID, batch,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unscored candidates")
	}
	defer rows.Close()

	return collectSQLiteCandidates(rows)
}

func (s *SQLiteStore) CountScoredCandidates(ctx context.Context, jobID string, batch int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM candidates
		WHERE job_id = ? AND batch_number = ? AND is_scored = 1 AND is_duplicate = 0`,
		jobID, batch,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: count scored candidates")
	}
	return n, nil
}

func (s *SQLiteStore) UpdateCandidateScores(ctx context.Context, jobID string, scores map[string]model.ScoreBreakdown) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update scores")
	}
	defer tx.Rollback()

	for candidateID, sb := range scores {
		matchedJSON, _ := json.Marshal(sb.MatchedSkills)
		missingJSON, _ := json.Marshal(sb.MissingSkills)
		bonusJSON, _ := json.Marshal(sb.BonusSkills)

		_, err = tx.ExecContext(ctx,
			`UPDATE candidates
			SET skills_score = ?, experience_score = ?, industry_score = ?,
			    title_score = ?, bonus_score = ?, match_score = ?,
			    matched_skills = ?, missing_skills = ?, bonus_skills = ?,
			    is_scored = 1
			WHERE id = ? AND job_id = ?`,
			sb.SkillsScore, sb.ExperienceScore, sb.IndustryScore,
			sb.TitleScore, sb.BonusScore, sb.MatchScore,
			string(matchedJSON), string(missingJSON), string(bonusJSON),
			candidateID, jobID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update score %s", candidateID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit scores")
}

func (s *SQLiteStore) RankedCandidates(ctx context.Context, jobID string, limit int) ([]model.CandidateProfile, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates
		WHERE job_id = ? AND is_scored = 1 AND is_duplicate = 0
		ORDER BY match_score DESC, profile_url ASC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: ranked candidates")
	}
	defer rows.Close()

	return collectSQLiteCandidates(rows)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func scanSQLiteJob(row rowScanner) (*model.SourcingJob, error) {
	var j model.SourcingJob
	var reqJSON sql.NullString
	var status, stage string
	var retryAfter, rateLimitResetAt, completedAt, failedAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.OwnerID, &j.Title, &j.RawRequirements, &reqJSON, &j.MaxCandidates,
		&status, &stage, &j.TotalBatches,
		&j.LastScrapedBatch, &j.LastParsedBatch, &j.LastSavedBatch, &j.LastScoredBatch,
		&j.TotalProfilesFound, &j.ProfilesScraped, &j.ProfilesParsed, &j.ProfilesSaved, &j.ProfilesScored,
		&j.RetryCount, &j.MaxRetries, &retryAfter, &j.RateLimitType, &rateLimitResetAt,
		&j.ErrorMessage, &j.LastActivityAt, &j.CreatedAt, &completedAt, &failedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Status = model.JobStatus(status)
	j.CurrentStage = model.JobStatus(stage)
	if reqJSON.Valid && reqJSON.String != "" {
		j.Requirements = &model.JobFilters{}
		if err := json.Unmarshal([]byte(reqJSON.String), j.Requirements); err != nil {
			return nil, eris.Wrap(err, "unmarshal requirements")
		}
	}
	if retryAfter.Valid {
		t := retryAfter.Time
		j.RetryAfter = &t
	}
	if rateLimitResetAt.Valid {
		t := rateLimitResetAt.Time
		j.RateLimitResetAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		j.FailedAt = &t
	}
	return &j, nil
}

func collectSQLiteJobs(rows *sql.Rows) ([]model.SourcingJob, error) {
	var jobs []model.SourcingJob
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func collectSQLiteCandidates(rows *sql.Rows) ([]model.CandidateProfile, error) {
	var out []model.CandidateProfile
	for rows.Next() {
		var c model.CandidateProfile
		var sb model.ScoreBreakdown
		var expJSON, eduJSON, skillsJSON, matchedJSON, missingJSON, bonusJSON sql.NullString

		err := rows.Scan(
			&c.ID, &c.JobID, &c.ProfileURL, &c.FullName, &c.Headline, &c.Location, &c.Email,
			&expJSON, &eduJSON, &skillsJSON,
			&sb.SkillsScore, &sb.ExperienceScore, &sb.IndustryScore, &sb.TitleScore, &sb.BonusScore, &sb.MatchScore,
			&matchedJSON, &missingJSON, &bonusJSON,
			&c.IsDuplicate, &c.IsScored, &c.BatchNumber, &c.ScrapedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}

		for _, pair := range []struct {
			data sql.NullString
			dst  any
		}{
			{expJSON, &c.Experience},
			{eduJSON, &c.Education},
			{skillsJSON, &c.Skills},
			{matchedJSON, &sb.MatchedSkills},
			{missingJSON, &sb.MissingSkills},
			{bonusJSON, &sb.BonusSkills},
		} {
			if pair.data.Valid && pair.data.String != "" && pair.data.String != "null" {
				if err := json.Unmarshal([]byte(pair.data.String), pair.dst); err != nil {
					return nil, eris.Wrap(err, "sqlite: unmarshal candidate field")
				}
			}
		}

		if c.IsScored {
			c.Scores = &sb
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate candidates")
}
