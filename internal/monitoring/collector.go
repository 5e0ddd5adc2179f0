// Package monitoring watches batch health and raises webhook alerts when
// error rates, dead letters or stalls cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-finder/internal/engine"
	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/store"
)

// MetricsSnapshot holds a point-in-time view of batch health.
type MetricsSnapshot struct {
	// Batch metrics (within lookback window).
	BatchTotal    int     `json:"batch_total"`
	BatchComplete int     `json:"batch_complete"`
	BatchStopped  int     `json:"batch_stopped"`
	BatchRunning  int     `json:"batch_running"`
	People        int     `json:"people"`
	Resolved      int     `json:"resolved"`
	Matches       int     `json:"matches"`
	Errors        int     `json:"errors"`
	ErrorRate     float64 `json:"error_rate"`
	MatchRate     float64 `json:"match_rate"`

	// Live batch, when a progress source is attached.
	ActiveBatchID string `json:"active_batch_id,omitempty"`
	Stalled       bool   `json:"stalled"`

	// DLQ depth.
	DLQDepth int `json:"dlq_depth"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// StoreReader is the subset of store.Store the collector reads.
type StoreReader interface {
	ListBatches(ctx context.Context, filter store.BatchFilter) ([]model.BatchRecord, error)
	CountDeadLetters(ctx context.Context) (int, error)
}

// ProgressSource reports the live batch.
type ProgressSource interface {
	Progress() engine.Progress
}

// Collector gathers metrics from the store and the running orchestrator.
type Collector struct {
	store    StoreReader
	progress ProgressSource
	now      func() time.Time
}

// NewCollector creates a new metrics collector. progress may be nil.
func NewCollector(st StoreReader, progress ProgressSource) *Collector {
	return &Collector{store: st, progress: progress, now: time.Now}
}

// Collect gathers a snapshot of batch metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	batches, err := c.store.ListBatches(ctx, store.BatchFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list batches")
	}

	for _, b := range batches {
		if b.StartedAt.Before(cutoff) {
			continue
		}
		snap.BatchTotal++
		switch b.Status {
		case model.BatchStatusComplete:
			snap.BatchComplete++
		case model.BatchStatusStopped:
			snap.BatchStopped++
		case model.BatchStatusRunning:
			snap.BatchRunning++
		}
		snap.People += b.Total
		snap.Resolved += b.Completed
		snap.Matches += b.MatchCount
		snap.Errors += b.ErrorCount
	}
	if snap.Resolved > 0 {
		snap.ErrorRate = float64(snap.Errors) / float64(snap.Resolved)
		snap.MatchRate = float64(snap.Matches) / float64(snap.Resolved)
	}

	if c.progress != nil {
		p := c.progress.Progress()
		if p.Active {
			snap.ActiveBatchID = p.BatchID
			snap.Stalled = p.Stalled
		}
	}

	dlqCount, err := c.store.CountDeadLetters(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dead letters")
	}
	snap.DLQDepth = dlqCount

	return snap, nil
}
