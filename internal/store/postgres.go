package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/resilience"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock pools satisfy
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL DEFAULT 'running',
	total            INTEGER NOT NULL,
	completed        INTEGER NOT NULL DEFAULT 0,
	cosine_threshold DOUBLE PRECISION NOT NULL,
	fuzzy_threshold  DOUBLE PRECISION NOT NULL,
	match_count      INTEGER NOT NULL DEFAULT 0,
	error_count      INTEGER NOT NULL DEFAULT 0,
	started_at       TIMESTAMPTZ NOT NULL,
	finished_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS match_results (
	batch_id           TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	position           INTEGER NOT NULL,
	first_name         TEXT NOT NULL,
	last_name          TEXT NOT NULL,
	affiliation        TEXT NOT NULL,
	graduation_year    TEXT NOT NULL DEFAULT '',
	matched_title      TEXT NOT NULL,
	profile_url        TEXT NOT NULL DEFAULT '',
	confidence_percent INTEGER NOT NULL DEFAULT 0,
	estimated_location TEXT NOT NULL,
	estimated_income   INTEGER,
	status             TEXT NOT NULL,
	provider           TEXT NOT NULL DEFAULT '',
	error              TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (batch_id, position)
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id          TEXT PRIMARY KEY,
	batch_id    TEXT NOT NULL,
	first_name  TEXT NOT NULL,
	last_name   TEXT NOT NULL,
	affiliation TEXT NOT NULL,
	grad_year   TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL,
	error_type  TEXT NOT NULL,
	attempts    INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
CREATE INDEX IF NOT EXISTS idx_batches_started_at ON batches(started_at);
CREATE INDEX IF NOT EXISTS idx_dead_letters_batch ON dead_letters(batch_id);
CREATE INDEX IF NOT EXISTS idx_dead_letters_error_type ON dead_letters(error_type);
`

// resultColumns is the COPY column list for match_results.
var resultColumns = []string{
	"batch_id", "position", "first_name", "last_name", "affiliation", "graduation_year",
	"matched_title", "profile_url", "confidence_percent", "estimated_location",
	"estimated_income", "status", "provider", "error",
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateBatch(ctx context.Context, rec model.BatchRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batches (id, status, total, completed, cosine_threshold, fuzzy_threshold,
		 match_count, error_count, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, string(rec.Status), rec.Total, rec.Completed,
		rec.Thresholds.Cosine, rec.Thresholds.Fuzzy,
		rec.MatchCount, rec.ErrorCount, rec.StartedAt.UTC(), rec.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: insert batch %s", rec.ID)
}

func (s *PostgresStore) UpdateBatch(ctx context.Context, rec model.BatchRecord) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batches SET status = $1, completed = $2, match_count = $3, error_count = $4, finished_at = $5
		 WHERE id = $6`,
		string(rec.Status), rec.Completed, rec.MatchCount, rec.ErrorCount, rec.FinishedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "batch %s", rec.ID)
	}
	return nil
}

const pgBatchColumns = `id, status, total, completed, cosine_threshold, fuzzy_threshold,
	match_count, error_count, started_at, finished_at`

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*model.BatchRecord, error) {
	rec, err := scanPGBatch(s.pool.QueryRow(ctx,
		`SELECT `+pgBatchColumns+` FROM batches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "batch %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get batch %s", id)
	}
	return rec, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.BatchRecord, error) {
	query := `SELECT ` + pgBatchColumns + ` FROM batches WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	var out []model.BatchRecord
	for rows.Next() {
		rec, err := scanPGBatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

// SaveResults replaces the batch's results in one transaction, loading the
// new rows with COPY.
func (s *PostgresStore) SaveResults(ctx context.Context, batchID string, results []model.MatchResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save results")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM match_results WHERE batch_id = $1`, batchID); err != nil {
		return eris.Wrapf(err, "postgres: clear results %s", batchID)
	}

	if len(results) > 0 {
		rows := make([][]any, len(results))
		for i, r := range results {
			rows[i] = resultArgs(batchID, i, r)
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"match_results"}, resultColumns, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrapf(err, "postgres: COPY INTO match_results for %s", batchID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit results")
}

func (s *PostgresStore) ListResults(ctx context.Context, batchID string) ([]model.MatchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT first_name, last_name, affiliation, graduation_year, matched_title, profile_url,
		 confidence_percent, estimated_location, estimated_income, status, provider, error
		 FROM match_results WHERE batch_id = $1 ORDER BY position`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []model.MatchResult
	for rows.Next() {
		var (
			r      model.MatchResult
			status string
		)
		if err := rows.Scan(&r.FirstName, &r.LastName, &r.Affiliation, &r.GraduationYear,
			&r.MatchedTitle, &r.ProfileURL, &r.ConfidencePercent, &r.EstimatedLocation,
			&r.EstimatedIncome, &status, &r.Provider, &r.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		r.Status = model.Status(status)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

func (s *PostgresStore) SaveDeadLetter(ctx context.Context, dl resilience.DeadLetter) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letters (id, batch_id, first_name, last_name, affiliation, grad_year,
		 error, error_type, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET error = $7, error_type = $8, attempts = $9`,
		dl.ID, dl.BatchID, dl.Query.FirstName, dl.Query.LastName, dl.Query.Affiliation,
		dl.Query.GraduationYear, dl.Error, dl.ErrorType, dl.Attempts, dl.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save dead letter")
}

func (s *PostgresStore) ListDeadLetters(ctx context.Context, filter resilience.DeadLetterFilter) ([]resilience.DeadLetter, error) {
	query := `SELECT id, batch_id, first_name, last_name, affiliation, grad_year, error, error_type, attempts, created_at
	          FROM dead_letters WHERE true`
	args := []any{}
	argIdx := 1

	if filter.BatchID != "" {
		query += fmt.Sprintf(` AND batch_id = $%d`, argIdx)
		args = append(args, filter.BatchID)
		argIdx++
	}
	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dead letters")
	}
	defer rows.Close()

	var out []resilience.DeadLetter
	for rows.Next() {
		var dl resilience.DeadLetter
		if err := rows.Scan(&dl.ID, &dl.BatchID, &dl.Query.FirstName, &dl.Query.LastName,
			&dl.Query.Affiliation, &dl.Query.GraduationYear, &dl.Error, &dl.ErrorType,
			&dl.Attempts, &dl.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dead letter")
		}
		out = append(out, dl)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list dead letters iterate")
}

func (s *PostgresStore) RemoveDeadLetter(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: remove dead letter")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "dead letter %s", id)
	}
	return nil
}

func (s *PostgresStore) CountDeadLetters(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dead letters")
}

func scanPGBatch(row pgx.Row) (*model.BatchRecord, error) {
	var (
		rec    model.BatchRecord
		status string
	)
	err := row.Scan(&rec.ID, &status, &rec.Total, &rec.Completed,
		&rec.Thresholds.Cosine, &rec.Thresholds.Fuzzy,
		&rec.MatchCount, &rec.ErrorCount, &rec.StartedAt, &rec.FinishedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = model.BatchStatus(status)
	return &rec, nil
}
