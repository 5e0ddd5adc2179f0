package engine

import (
	"strings"

	"github.com/sells-group/profile-finder/internal/estimate"
	"github.com/sells-group/profile-finder/internal/model"
)

// Finalizer fills in placeholders and statuses once a batch has settled.
type Finalizer struct {
	incomes *estimate.IncomeTable
	rng     estimate.Rand
}

// NewFinalizer creates a Finalizer. A nil table uses the default bands and
// a nil rng the global random source.
func NewFinalizer(incomes *estimate.IncomeTable, rng estimate.Rand) *Finalizer {
	if incomes == nil {
		incomes = estimate.DefaultIncomeTable()
	}
	return &Finalizer{incomes: incomes, rng: rng}
}

// Finalize updates results in place. It is idempotent: an income already
// drawn is never redrawn and statuses only depend on the profile URL.
func (f *Finalizer) Finalize(results []model.MatchResult) {
	for i := range results {
		r := &results[i]
		if strings.TrimSpace(r.EstimatedLocation) == "" {
			r.EstimatedLocation = model.LocationUnknown
		}
		if strings.TrimSpace(r.MatchedTitle) == "" {
			r.MatchedTitle = model.TitleNotFound
		}
		if r.EstimatedIncome == nil {
			income := f.incomes.Draw(r.MatchedTitle, f.rng)
			r.EstimatedIncome = &income
		}
		if r.Status == model.StatusError {
			continue
		}
		if r.HasProfile() {
			r.Status = model.StatusMatchFound
		} else {
			r.Status = model.StatusNoMatch
		}
	}
}
