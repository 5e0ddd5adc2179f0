package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/profile-finder/internal/engine"
	"github.com/sells-group/profile-finder/internal/store"
)

const persistTimeout = 30 * time.Second

// batchRecorder mirrors orchestrator lifecycle events into the store.
// Failures are logged and never affect the batch.
type batchRecorder struct {
	st store.Store
}

func (b *batchRecorder) options() []engine.Option {
	return []engine.Option{
		engine.WithOnStart(b.started),
		engine.WithOnSettled(b.settled),
	}
}

func (b *batchRecorder) started(s engine.BatchState) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := b.st.CreateBatch(ctx, s.Record()); err != nil {
		zap.L().Error("persist batch start", zap.String("batch_id", s.ID), zap.Error(err))
	}
}

func (b *batchRecorder) settled(s engine.BatchState) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := b.st.SaveResults(ctx, s.ID, s.CompletedResults); err != nil {
		zap.L().Error("persist batch results", zap.String("batch_id", s.ID), zap.Error(err))
		return
	}
	rec := s.Record()
	if err := b.st.UpdateBatch(ctx, rec); err != nil {
		zap.L().Error("persist batch status", zap.String("batch_id", s.ID), zap.Error(err))
		return
	}
	zap.L().Debug("batch persisted",
		zap.String("batch_id", rec.ID),
		zap.String("status", string(rec.Status)),
		zap.Int("results", len(s.CompletedResults)),
	)
}
