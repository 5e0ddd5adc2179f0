package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-finder/internal/model"
)

var (
	alice = model.PersonQuery{FirstName: "Alice", LastName: "Smith", Affiliation: "Example University"}
	bob   = model.PersonQuery{FirstName: "Bob", LastName: "Jones", Affiliation: "KU"}
	carol = model.PersonQuery{FirstName: "Carol", LastName: "White", Affiliation: "MSU"}
)

func TestFinalizer_Finalize(t *testing.T) {
	t.Parallel()

	fixed := 123456
	results := []model.MatchResult{
		model.NewMatch(alice, "Software Engineer", "https://linkedin.com/in/alice", 97, "Greater Boston Area"),
		model.NewNoMatch(bob),
		model.NewErrorResult(carol, errors.New("timeout")),
		{FirstName: "Dan", LastName: "Brown", EstimatedIncome: &fixed, ProfileURL: "https://linkedin.com/in/dan"},
	}

	NewFinalizer(nil, nil).Finalize(results)

	assert.Equal(t, model.StatusMatchFound, results[0].Status)
	require.NotNil(t, results[0].EstimatedIncome)
	assert.GreaterOrEqual(t, *results[0].EstimatedIncome, 85000)
	assert.LessOrEqual(t, *results[0].EstimatedIncome, 150000)

	assert.Equal(t, model.StatusNoMatch, results[1].Status)
	assert.Equal(t, model.TitleNotFound, results[1].MatchedTitle)
	assert.Equal(t, model.LocationUnknown, results[1].EstimatedLocation)
	require.NotNil(t, results[1].EstimatedIncome)
	assert.GreaterOrEqual(t, *results[1].EstimatedIncome, 60000)
	assert.LessOrEqual(t, *results[1].EstimatedIncome, 100000)

	assert.Equal(t, model.StatusError, results[2].Status)
	assert.NotNil(t, results[2].EstimatedIncome)

	assert.Equal(t, model.StatusMatchFound, results[3].Status)
	assert.Equal(t, 123456, *results[3].EstimatedIncome)
	assert.Equal(t, model.TitleNotFound, results[3].MatchedTitle)
	assert.Equal(t, model.LocationUnknown, results[3].EstimatedLocation)
}

func TestFinalizer_Idempotent(t *testing.T) {
	t.Parallel()

	results := []model.MatchResult{
		model.NewMatch(alice, "Product Manager", "https://linkedin.com/in/alice", 88, ""),
		model.NewNoMatch(bob),
		model.NewErrorResult(carol, errors.New("boom")),
	}
	f := NewFinalizer(nil, nil)
	f.Finalize(results)

	first := cloneResults(results)
	for range 5 {
		f.Finalize(results)
	}
	assert.Equal(t, first, results)
}
