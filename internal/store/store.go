// Package store persists batches, their finalized results and dead letters.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/resilience"
)

// ErrNotFound is returned when a batch does not exist.
var ErrNotFound = eris.New("store: not found")

// BatchFilter specifies criteria for listing batches.
type BatchFilter struct {
	Status model.BatchStatus `json:"status,omitempty"`
	Limit  int               `json:"limit,omitempty"`
	Offset int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for resolution batches.
type Store interface {
	// Batches
	CreateBatch(ctx context.Context, rec model.BatchRecord) error
	UpdateBatch(ctx context.Context, rec model.BatchRecord) error
	GetBatch(ctx context.Context, id string) (*model.BatchRecord, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]model.BatchRecord, error)

	// Results replace any previously saved results for the batch.
	SaveResults(ctx context.Context, batchID string, results []model.MatchResult) error
	ListResults(ctx context.Context, batchID string) ([]model.MatchResult, error)

	// Dead letters
	SaveDeadLetter(ctx context.Context, dl resilience.DeadLetter) error
	ListDeadLetters(ctx context.Context, filter resilience.DeadLetterFilter) ([]resilience.DeadLetter, error)
	RemoveDeadLetter(ctx context.Context, id string) error
	CountDeadLetters(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open picks a backend from the driver name: "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = "profile-finder.db"
		}
		return NewSQLite(dsn)
	case "postgres", "postgresql":
		if dsn == "" {
			return nil, eris.New("store: postgres requires a database url")
		}
		return NewPostgres(ctx, dsn, poolCfg)
	}
	return nil, eris.Errorf("store: unknown driver %q", driver)
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// Summarize fills the counters of rec from results.
func Summarize(rec *model.BatchRecord, results []model.MatchResult) {
	rec.Completed = len(results)
	rec.MatchCount = 0
	rec.ErrorCount = 0
	for _, r := range results {
		switch {
		case r.Status == model.StatusError:
			rec.ErrorCount++
		case r.HasProfile():
			rec.MatchCount++
		}
	}
}
