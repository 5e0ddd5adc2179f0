package model

import "github.com/rotisserie/eris"

// Threshold bounds accepted from callers.
const (
	MinCosineThreshold = 0.30
	MaxCosineThreshold = 0.90
	MinFuzzyThreshold  = 0.60
	MaxFuzzyThreshold  = 0.95

	DefaultCosineThreshold = 0.40
	DefaultFuzzyThreshold  = 0.75
)

// Thresholds are the acceptance cut-offs for a candidate. A candidate passes
// when either score reaches its threshold.
type Thresholds struct {
	Cosine float64 `json:"cosine_threshold"`
	Fuzzy  float64 `json:"fuzzy_threshold"`
}

// DefaultThresholds returns the thresholds used when the caller sets none.
func DefaultThresholds() Thresholds {
	return Thresholds{Cosine: DefaultCosineThreshold, Fuzzy: DefaultFuzzyThreshold}
}

// OrDefault fills zero fields with the defaults.
func (t Thresholds) OrDefault() Thresholds {
	if t.Cosine == 0 {
		t.Cosine = DefaultCosineThreshold
	}
	if t.Fuzzy == 0 {
		t.Fuzzy = DefaultFuzzyThreshold
	}
	return t
}

// Validate rejects thresholds outside the accepted ranges.
func (t Thresholds) Validate() error {
	if t.Cosine < MinCosineThreshold || t.Cosine > MaxCosineThreshold {
		return eris.Errorf("model: cosine threshold %.2f outside [%.2f, %.2f]", t.Cosine, MinCosineThreshold, MaxCosineThreshold)
	}
	if t.Fuzzy < MinFuzzyThreshold || t.Fuzzy > MaxFuzzyThreshold {
		return eris.Errorf("model: fuzzy threshold %.2f outside [%.2f, %.2f]", t.Fuzzy, MinFuzzyThreshold, MaxFuzzyThreshold)
	}
	return nil
}
