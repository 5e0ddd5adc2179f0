package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL DEFAULT 'running',
	total            INTEGER NOT NULL,
	completed        INTEGER NOT NULL DEFAULT 0,
	cosine_threshold REAL NOT NULL,
	fuzzy_threshold  REAL NOT NULL,
	match_count      INTEGER NOT NULL DEFAULT 0,
	error_count      INTEGER NOT NULL DEFAULT 0,
	started_at       DATETIME NOT NULL,
	finished_at      DATETIME
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
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
CREATE INDEX IF NOT EXISTS idx_batches_started_at ON batches(started_at);
CREATE INDEX IF NOT EXISTS idx_dead_letters_batch ON dead_letters(batch_id);
CREATE INDEX IF NOT EXISTS idx_dead_letters_error_type ON dead_letters(error_type);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateBatch(ctx context.Context, rec model.BatchRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, status, total, completed, cosine_threshold, fuzzy_threshold,
		 match_count, error_count, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Status), rec.Total, rec.Completed,
		rec.Thresholds.Cosine, rec.Thresholds.Fuzzy,
		rec.MatchCount, rec.ErrorCount, rec.StartedAt.UTC(), nullTime(rec.FinishedAt),
	)
	return eris.Wrapf(err, "sqlite: insert batch %s", rec.ID)
}

func (s *SQLiteStore) UpdateBatch(ctx context.Context, rec model.BatchRecord) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, completed = ?, match_count = ?, error_count = ?, finished_at = ?
		 WHERE id = ?`,
		string(rec.Status), rec.Completed, rec.MatchCount, rec.ErrorCount, nullTime(rec.FinishedAt), rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch %s", rec.ID)
	}
	return checkRowsAffected(res, "batch", rec.ID)
}

const sqliteBatchColumns = `id, status, total, completed, cosine_threshold, fuzzy_threshold,
	match_count, error_count, started_at, finished_at`

func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*model.BatchRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteBatchColumns+` FROM batches WHERE id = ?`, id)
	rec, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "batch %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get batch %s", id)
	}
	return rec, nil
}

func (s *SQLiteStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.BatchRecord, error) {
	query := `SELECT ` + sqliteBatchColumns + ` FROM batches WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.BatchRecord
	for rows.Next() {
		rec, err := scanBatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

func (s *SQLiteStore) SaveResults(ctx context.Context, batchID string, results []model.MatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save results")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM match_results WHERE batch_id = ?`, batchID); err != nil {
		return eris.Wrapf(err, "sqlite: clear results %s", batchID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO match_results (batch_id, position, first_name, last_name, affiliation, graduation_year,
		 matched_title, profile_url, confidence_percent, estimated_location, estimated_income, status, provider, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert result")
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range results {
		if _, err := stmt.ExecContext(ctx, resultArgs(batchID, i, r)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert result %d", i)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit results")
}

func (s *SQLiteStore) ListResults(ctx context.Context, batchID string) ([]model.MatchResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT first_name, last_name, affiliation, graduation_year, matched_title, profile_url,
		 confidence_percent, estimated_location, estimated_income, status, provider, error
		 FROM match_results WHERE batch_id = ? ORDER BY position`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.MatchResult
	for rows.Next() {
		var (
			r      model.MatchResult
			income sql.NullInt64
		)
		if err := rows.Scan(&r.FirstName, &r.LastName, &r.Affiliation, &r.GraduationYear,
			&r.MatchedTitle, &r.ProfileURL, &r.ConfidencePercent, &r.EstimatedLocation,
			&income, &r.Status, &r.Provider, &r.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		if income.Valid {
			v := int(income.Int64)
			r.EstimatedIncome = &v
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

func (s *SQLiteStore) SaveDeadLetter(ctx context.Context, dl resilience.DeadLetter) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (id, batch_id, first_name, last_name, affiliation, grad_year,
		 error, error_type, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET error = excluded.error, error_type = excluded.error_type,
		   attempts = excluded.attempts`,
		dl.ID, dl.BatchID, dl.Query.FirstName, dl.Query.LastName, dl.Query.Affiliation,
		dl.Query.GraduationYear, dl.Error, dl.ErrorType, dl.Attempts, dl.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save dead letter")
}

func (s *SQLiteStore) ListDeadLetters(ctx context.Context, filter resilience.DeadLetterFilter) ([]resilience.DeadLetter, error) {
	query := `SELECT id, batch_id, first_name, last_name, affiliation, grad_year, error, error_type, attempts, created_at
	          FROM dead_letters WHERE 1=1`
	var args []any

	if filter.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, filter.BatchID)
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dead letters")
	}
	defer rows.Close() //nolint:errcheck

	var out []resilience.DeadLetter
	for rows.Next() {
		var dl resilience.DeadLetter
		if err := rows.Scan(&dl.ID, &dl.BatchID, &dl.Query.FirstName, &dl.Query.LastName,
			&dl.Query.Affiliation, &dl.Query.GraduationYear, &dl.Error, &dl.ErrorType,
			&dl.Attempts, &dl.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dead letter")
		}
		out = append(out, dl)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list dead letters iterate")
}

func (s *SQLiteStore) RemoveDeadLetter(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, id)
	if err != nil {
		return eris.Wrap(err, "sqlite: remove dead letter")
	}
	return checkRowsAffected(res, "dead letter", id)
}

func (s *SQLiteStore) CountDeadLetters(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count dead letters")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBatch(row scannable) (*model.BatchRecord, error) {
	var (
		rec      model.BatchRecord
		finished sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.Status, &rec.Total, &rec.Completed,
		&rec.Thresholds.Cosine, &rec.Thresholds.Fuzzy,
		&rec.MatchCount, &rec.ErrorCount, &rec.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	return &rec, nil
}

func resultArgs(batchID string, position int, r model.MatchResult) []any {
	var income any
	if r.EstimatedIncome != nil {
		income = *r.EstimatedIncome
	}
	return []any{
		batchID, position, r.FirstName, r.LastName, r.Affiliation, r.GraduationYear,
		r.MatchedTitle, r.ProfileURL, r.ConfidencePercent, r.EstimatedLocation,
		income, string(r.Status), r.Provider, r.Error,
	}
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
