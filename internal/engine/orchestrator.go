package engine

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/profile-finder/internal/model"
)

var (
	// ErrBatchActive is returned by Start while another batch is running,
	// including a stopped batch whose running tasks have not finished.
	ErrBatchActive = eris.New("engine: a batch is already active")
	// ErrEmptyBatch is returned by Start when there is nobody to resolve.
	ErrEmptyBatch = eris.New("engine: batch has no people")
)

// DefaultStallAfter is how long an active batch may go without a result
// before it is reported as stalled.
const DefaultStallAfter = 30 * time.Second

// DefaultWorkers returns floor(0.75 * NumCPU) clamped to [4, 8].
func DefaultWorkers() int {
	return clampWorkers(runtime.NumCPU() * 3 / 4)
}

func clampWorkers(n int) int {
	return min(max(n, 4), 8)
}

// TaskState is the lifecycle state of one person's task.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskDone
	TaskCancelled
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskDone:
		return "done"
	case TaskCancelled:
		return "cancelled"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type taskHandle struct {
	query      model.PersonQuery
	state      TaskState
	generation uint64
}

// Batch is the input to Start.
type Batch struct {
	People     []model.PersonQuery
	Thresholds model.Thresholds
	// Credential is passed to providers as the per-call API key.
	Credential string
	// Limit truncates People when positive.
	Limit int
	// MaxResults caps candidates per search. Zero uses the provider default.
	MaxResults int
}

// BatchState is a snapshot of the current batch.
type BatchState struct {
	ID               string              `json:"id"`
	TotalCount       int                 `json:"total_count"`
	CompletedResults []model.MatchResult `json:"completed_results"`
	StartTime        time.Time           `json:"start_time"`
	LastResultTime   time.Time           `json:"last_result_time"`
	Active           bool                `json:"active"`
	Stopped          bool                `json:"stopped"`
	Finalized        bool                `json:"finalized"`
	Thresholds       model.Thresholds    `json:"thresholds"`
}

// Record summarizes the state for persistence.
func (s BatchState) Record() model.BatchRecord {
	rec := model.BatchRecord{
		ID:         s.ID,
		Status:     model.BatchStatusRunning,
		Total:      s.TotalCount,
		Completed:  len(s.CompletedResults),
		Thresholds: s.Thresholds,
		StartedAt:  s.StartTime,
	}
	for _, r := range s.CompletedResults {
		switch {
		case r.Status == model.StatusError:
			rec.ErrorCount++
		case r.HasProfile():
			rec.MatchCount++
		}
	}
	if !s.Active {
		rec.Status = model.BatchStatusComplete
		if s.Stopped {
			rec.Status = model.BatchStatusStopped
		}
		if !s.LastResultTime.IsZero() {
			t := s.LastResultTime
			rec.FinishedAt = &t
		}
	}
	return rec
}

// Progress is the progress signal of the current batch.
type Progress struct {
	BatchID   string  `json:"batch_id,omitempty"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
	// Throughput is results per second.
	Throughput     float64 `json:"throughput"`
	ETASeconds     float64 `json:"eta_seconds"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Stalled        bool    `json:"stalled"`
	Active         bool    `json:"active"`
	Stopped        bool    `json:"stopped"`
	Finalized      bool    `json:"finalized"`
}

// ETA returns the estimated time to completion.
func (p Progress) ETA() time.Duration {
	return time.Duration(p.ETASeconds * float64(time.Second))
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the worker count, capped at 64. Unlike DefaultWorkers it
// has no lower bound of 4; configuration enforces [4, 8] for deployments.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = min(n, 64)
		}
	}
}

// WithStallAfter overrides DefaultStallAfter.
func WithStallAfter(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stallAfter = d
		}
	}
}

// WithFinalizer overrides the default Finalizer.
func WithFinalizer(f *Finalizer) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.finalizer = f
		}
	}
}

// WithOnSettled registers a hook called once per batch, after
// finalization, with a snapshot of the settled state.
func WithOnSettled(fn func(BatchState)) Option {
	return func(o *Orchestrator) { o.onSettled = fn }
}

// WithOnStart registers a hook called after a batch has been accepted.
func WithOnStart(fn func(BatchState)) Option {
	return func(o *Orchestrator) { o.onStart = fn }
}

// WithOnResult registers a hook called after each recorded result.
func WithOnResult(fn func(model.MatchResult, Progress)) Option {
	return func(o *Orchestrator) { o.onResult = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs one batch at a time on a bounded worker pool.
type Orchestrator struct {
	resolver   Resolver
	finalizer  *Finalizer
	workers    int
	stallAfter time.Duration
	now        func() time.Time
	onSettled  func(BatchState)
	onStart    func(BatchState)
	onResult   func(model.MatchResult, Progress)

	mu      sync.Mutex
	gen     uint64
	state   BatchState
	handles []*taskHandle
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewOrchestrator creates an Orchestrator around resolver.
func NewOrchestrator(resolver Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver:   resolver,
		finalizer:  NewFinalizer(nil, nil),
		workers:    DefaultWorkers(),
		stallAfter: DefaultStallAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// draining reports whether the current batch's run loop is still going.
// Caller must hold o.mu.
func (o *Orchestrator) draining() bool {
	if o.done == nil {
		return false
	}
	select {
	case <-o.done:
		return false
	default:
		return true
	}
}

// Workers returns the worker pool size.
func (o *Orchestrator) Workers() int { return o.workers }

// Start validates and enqueues a batch and returns its ID. The batch runs
// in the background and is not cancelled with ctx; use Stop or Restart.
func (o *Orchestrator) Start(ctx context.Context, b Batch) (string, error) {
	th := b.Thresholds.OrDefault()
	if err := th.Validate(); err != nil {
		return "", err
	}
	people := b.People
	if b.Limit > 0 && len(people) > b.Limit {
		people = people[:b.Limit]
	}
	if len(people) == 0 {
		return "", ErrEmptyBatch
	}

	o.mu.Lock()
	if o.state.Active || o.draining() {
		o.mu.Unlock()
		return "", ErrBatchActive
	}
	o.resetLocked()
	gen := o.gen

	id := uuid.NewString()
	o.state = BatchState{
		ID:               id,
		TotalCount:       len(people),
		CompletedResults: make([]model.MatchResult, 0, len(people)),
		StartTime:        o.now(),
		Active:           true,
		Thresholds:       th,
	}
	handles := make([]*taskHandle, len(people))
	for i, q := range people {
		handles[i] = &taskHandle{query: q, state: TaskPending, generation: gen}
	}
	o.handles = handles

	bctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel
	done := make(chan struct{})
	o.done = done
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	tmpl := Job{
		BatchID:    id,
		Thresholds: th,
		Credential: b.Credential,
		MaxResults: b.MaxResults,
	}

	zap.L().Info("batch started",
		zap.String("batch_id", id),
		zap.Int("people", len(people)),
		zap.Int("workers", o.workers),
		zap.Float64("cosine_threshold", th.Cosine),
		zap.Float64("fuzzy_threshold", th.Fuzzy),
	)
	if o.onStart != nil {
		o.onStart(snapshot)
	}

	go o.run(bctx, gen, handles, tmpl, done)
	go o.watch(bctx, gen, done)
	return id, nil
}

// run feeds tasks to the pool and settles the batch when all have finished.
func (o *Orchestrator) run(ctx context.Context, gen uint64, handles []*taskHandle, tmpl Job, done chan struct{}) {
	defer close(done)

	// Plain group: one task's failure must not cancel the others.
	var g errgroup.Group
	g.SetLimit(o.workers)
	for _, h := range handles {
		if !o.isPending(gen, h) {
			continue
		}
		g.Go(func() error {
			o.runTask(ctx, gen, h, tmpl)
			return nil
		})
	}
	_ = g.Wait()

	o.settle(gen)
}

func (o *Orchestrator) runTask(ctx context.Context, gen uint64, h *taskHandle, tmpl Job) {
	if !o.begin(gen, h) {
		return
	}

	var res model.MatchResult
	func() {
		defer func() {
			if p := recover(); p != nil {
				zap.L().Error("task panicked",
					zap.String("batch_id", tmpl.BatchID),
					zap.String("person", h.query.FullName()),
					zap.Any("panic", p),
					zap.Stack("stack"),
				)
				res = model.NewErrorResult(h.query, eris.Errorf("task panic: %v", p))
			}
		}()
		job := tmpl
		job.Query = h.query
		res = o.resolver.Resolve(ctx, job)
	}()

	o.record(gen, h, res)
}

func (o *Orchestrator) isPending(gen uint64, h *taskHandle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen == o.gen && h.state == TaskPending
}

// begin moves h from pending to running unless the batch was stopped or
// replaced in the meantime.
func (o *Orchestrator) begin(gen uint64, h *taskHandle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || h.state != TaskPending {
		return false
	}
	h.state = TaskRunning
	return true
}

func (o *Orchestrator) record(gen uint64, h *taskHandle, res model.MatchResult) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		zap.L().Debug("discarding result of replaced batch", zap.String("person", h.query.FullName()))
		return
	}
	h.state = TaskDone
	if res.Status == model.StatusError {
		h.state = TaskFailed
	}
	if len(o.state.CompletedResults) >= o.state.TotalCount {
		o.mu.Unlock()
		return
	}
	o.state.CompletedResults = append(o.state.CompletedResults, res)
	o.state.LastResultTime = o.now()
	if len(o.state.CompletedResults) == o.state.TotalCount {
		o.state.Active = false
	}
	p := o.progressLocked()
	hook := o.onResult
	o.mu.Unlock()

	zap.L().Info("person resolved",
		zap.String("batch_id", p.BatchID),
		zap.String("person", h.query.FullName()),
		zap.String("status", string(res.Status)),
		zap.Int("completed", p.Completed),
		zap.Int("total", p.Total),
	)
	if hook != nil {
		hook(res.Clone(), p)
	}
}

// settle finalizes the batch once every running task has reported.
func (o *Orchestrator) settle(gen uint64) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.state.Active = false
	if len(o.state.CompletedResults) > 0 && !o.state.Finalized {
		o.finalizer.Finalize(o.state.CompletedResults)
		o.state.Finalized = true
	}
	snapshot := o.snapshotLocked()
	hook := o.onSettled
	o.mu.Unlock()

	rec := snapshot.Record()
	zap.L().Info("batch settled",
		zap.String("batch_id", rec.ID),
		zap.String("status", string(rec.Status)),
		zap.Int("completed", rec.Completed),
		zap.Int("total", rec.Total),
		zap.Int("matches", rec.MatchCount),
		zap.Int("errors", rec.ErrorCount),
	)
	if hook != nil {
		hook(snapshot)
	}
}

// watch logs a warning each time the batch goes quiet for stallAfter.
// It never cancels anything.
func (o *Orchestrator) watch(ctx context.Context, gen uint64, done <-chan struct{}) {
	tick := max(o.stallAfter/3, 10*time.Millisecond)
	t := time.NewTicker(tick)
	defer t.Stop()

	var warnedAt time.Time
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-t.C:
		}

		o.mu.Lock()
		if gen != o.gen {
			o.mu.Unlock()
			return
		}
		p := o.progressLocked()
		last := o.state.LastResultTime
		o.mu.Unlock()

		if p.Stalled && !last.Equal(warnedAt) {
			warnedAt = last
			zap.L().Warn("batch stalled",
				zap.String("batch_id", p.BatchID),
				zap.Int("completed", p.Completed),
				zap.Int("total", p.Total),
				zap.Duration("stall_after", o.stallAfter),
			)
		}
	}
}

// Stop ends the batch: pending tasks are cancelled and never produce a
// result, running tasks finish and are recorded. It returns the number of
// cancelled tasks.
func (o *Orchestrator) Stop() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Active {
		return 0
	}
	o.state.Active = false
	o.state.Stopped = true
	n := o.cancelPendingLocked()
	zap.L().Info("batch stopped",
		zap.String("batch_id", o.state.ID),
		zap.Int("cancelled", n),
		zap.Int("completed", len(o.state.CompletedResults)),
	)
	return n
}

// Restart discards the current batch entirely, including in-flight
// results, and resets retry accounting.
func (o *Orchestrator) Restart() {
	o.mu.Lock()
	id := o.state.ID
	o.resetLocked()
	o.state = BatchState{}
	o.handles = nil
	o.done = nil
	o.mu.Unlock()

	if r, ok := o.resolver.(attemptResetter); ok {
		r.ResetAttempts()
	}
	zap.L().Info("batch restarted", zap.String("previous_batch_id", id))
}

// resetLocked cancels the previous batch's pending and running work and
// bumps the generation so late results are dropped.
func (o *Orchestrator) resetLocked() {
	o.cancelPendingLocked()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.gen++
}

func (o *Orchestrator) cancelPendingLocked() int {
	n := 0
	for _, h := range o.handles {
		if h.state == TaskPending {
			h.state = TaskCancelled
			n++
		}
	}
	return n
}

// Progress returns the progress of the current batch.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progressLocked()
}

func (o *Orchestrator) progressLocked() Progress {
	s := &o.state
	p := Progress{
		BatchID:   s.ID,
		Completed: len(s.CompletedResults),
		Total:     s.TotalCount,
		Active:    s.Active,
		Stopped:   s.Stopped,
		Finalized: s.Finalized,
	}
	if s.TotalCount == 0 || s.StartTime.IsZero() {
		return p
	}
	p.Percent = float64(p.Completed) / float64(p.Total) * 100

	now := o.now()
	end := now
	if !s.Active && !s.LastResultTime.IsZero() {
		end = s.LastResultTime
	}
	elapsed := end.Sub(s.StartTime).Seconds()
	p.ElapsedSeconds = elapsed
	if elapsed > 0 {
		p.Throughput = float64(p.Completed) / elapsed
	}
	if s.Active && p.Throughput > 0 {
		p.ETASeconds = float64(p.Total-p.Completed) / p.Throughput
	}

	lastActivity := s.StartTime
	if s.LastResultTime.After(lastActivity) {
		lastActivity = s.LastResultTime
	}
	p.Stalled = s.Active && now.Sub(lastActivity) >= o.stallAfter
	return p
}

// Results returns a copy of the results collected so far, in completion
// order.
func (o *Orchestrator) Results() []model.MatchResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneResults(o.state.CompletedResults)
}

// State returns a snapshot of the current batch.
func (o *Orchestrator) State() BatchState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() BatchState {
	s := o.state
	s.CompletedResults = cloneResults(o.state.CompletedResults)
	return s
}

// Wait blocks until the current batch has settled and been finalized, or
// ctx is done. It returns immediately when no batch has been started.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "engine: wait for batch")
	}
}

func cloneResults(in []model.MatchResult) []model.MatchResult {
	out := make([]model.MatchResult, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
