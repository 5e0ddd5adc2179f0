package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-finder/internal/cost"
	"github.com/sells-group/profile-finder/internal/engine"
	"github.com/sells-group/profile-finder/internal/model"
)

// interruptedRunner blocks in the first Wait until ctx is done, as a
// running batch would.
type interruptedRunner struct {
	stopped int
	waits   int
	state   engine.BatchState
}

func (r *interruptedRunner) Start(context.Context, engine.Batch) (string, error) {
	return "batch-1", nil
}

func (r *interruptedRunner) Stop() int {
	r.stopped++
	return 4
}

func (r *interruptedRunner) Wait(ctx context.Context) error {
	r.waits++
	if r.waits == 1 {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (r *interruptedRunner) State() engine.BatchState { return r.state }

func TestRunResolve_InterruptStopsAndWrites(t *testing.T) {
	runner := &interruptedRunner{state: engine.BatchState{
		ID:         "batch-1",
		TotalCount: 5,
		Stopped:    true,
		CompletedResults: []model.MatchResult{
			model.NewNoMatch(model.PersonQuery{FirstName: "Bob", LastName: "Jones", Affiliation: "MIT"}),
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := t.TempDir() + "/partial.json"
	require.NoError(t, runResolve(ctx, runner, engine.Batch{}, out))
	assert.Equal(t, 1, runner.stopped)
	assert.Equal(t, 2, runner.waits)
	assert.FileExists(t, out)
}

type failingRunner struct{ interruptedRunner }

func (r *failingRunner) Start(context.Context, engine.Batch) (string, error) {
	return "", errors.New("boom")
}

func TestRunResolve_StartFails(t *testing.T) {
	err := runResolve(context.Background(), &failingRunner{}, engine.Batch{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start batch")
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	printFn := progressPrinter(&buf)

	r := model.NewNoMatch(model.PersonQuery{FirstName: "Alice", LastName: "Smith", Affiliation: "MIT"})
	printFn(r, engine.Progress{Completed: 1, Total: 4, Percent: 25, ETASeconds: 90})
	printFn(r, engine.Progress{Completed: 4, Total: 4, Percent: 100})

	out := buf.String()
	assert.Contains(t, out, "[1/4  25%] Alice Smith")
	assert.Contains(t, out, "No Match")
	assert.Contains(t, out, "eta 1m30s")
	assert.Contains(t, out, "[4/4 100%]")
	assert.Contains(t, out, "eta -")
}

func TestPrintSummary(t *testing.T) {
	income := 90000
	m := model.NewMatch(model.PersonQuery{FirstName: "Alice", LastName: "Smith", Affiliation: "MIT"},
		"Engineer", "https://www.linkedin.com/in/alice", 90, "Boston")
	m.EstimatedIncome = &income
	errRes := model.NewErrorResult(model.PersonQuery{FirstName: "Bob", LastName: "Jones"}, errors.New("x"))

	s := engine.BatchState{
		ID:               "abc12345-6789-0000-0000-000000000000",
		TotalCount:       1500,
		CompletedResults: []model.MatchResult{m, errRes},
		StartTime:        time.Now().Add(-time.Minute),
		LastResultTime:   time.Now(),
		Stopped:          true,
	}

	var buf bytes.Buffer
	printSummary(&buf, s, "")

	out := buf.String()
	assert.Contains(t, out, "abc12345 stopped")
	assert.Contains(t, out, "2 of 1,500 resolved")
	assert.Contains(t, out, "1 matched")
	assert.Contains(t, out, "1 errors")
	assert.Contains(t, out, "-> stdout")
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf, cost.Report{
		Searches: []cost.SearchUsage{{Provider: "serpapi", Requests: 1200, CostUSD: 18}},
		TotalUSD: 18,
	})

	out := buf.String()
	assert.Contains(t, out, "serpapi")
	assert.Contains(t, out, "1,200 requests")
	assert.Contains(t, out, "Estimated cost: $18.00")

	buf.Reset()
	printUsage(&buf, cost.Report{})
	assert.Empty(t, buf.String())
}
