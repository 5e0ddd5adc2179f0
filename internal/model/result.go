package model

import "strings"

// Status is the human-readable outcome of a resolution.
type Status string

const (
	StatusPending    Status = ""
	StatusMatchFound Status = "Match Found"
	StatusNoMatch    Status = "No Match"
	StatusError      Status = "Error"
)

// Placeholder values for fields that could not be determined.
const (
	TitleNotFound   = "Not Found"
	LocationUnknown = "Unknown"
)

// MatchResult is the outcome for one PersonQuery. Sentinel results for
// "no match" and "error" keep the query identity fields.
type MatchResult struct {
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Affiliation       string `json:"affiliation"`
	GraduationYear    string `json:"graduation_year,omitempty"`
	MatchedTitle      string `json:"matched_title"`
	ProfileURL        string `json:"profile_url,omitempty"`
	ConfidencePercent int    `json:"confidence_percent"`
	EstimatedLocation string `json:"estimated_location"`
	EstimatedIncome   *int   `json:"estimated_income,omitempty"`
	Status            Status `json:"status"`
	Provider          string `json:"provider,omitempty"`
	Error             string `json:"error,omitempty"`
}

// NewNoMatch builds the "no match" sentinel for q.
func NewNoMatch(q PersonQuery) MatchResult {
	r := fromQuery(q)
	r.Status = StatusNoMatch
	return r
}

// NewErrorResult builds the "error" sentinel for q.
func NewErrorResult(q PersonQuery, err error) MatchResult {
	r := fromQuery(q)
	r.Status = StatusError
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// NewMatch builds a match result for q. Status is assigned by finalization.
func NewMatch(q PersonQuery, title, url string, confidence int, location string) MatchResult {
	r := fromQuery(q)
	r.MatchedTitle = title
	r.ProfileURL = url
	r.ConfidencePercent = confidence
	if strings.TrimSpace(location) != "" {
		r.EstimatedLocation = location
	}
	return r
}

func fromQuery(q PersonQuery) MatchResult {
	return MatchResult{
		FirstName:         q.FirstName,
		LastName:          q.LastName,
		Affiliation:       q.Affiliation,
		GraduationYear:    q.GraduationYear,
		MatchedTitle:      TitleNotFound,
		EstimatedLocation: LocationUnknown,
	}
}

// Identity returns the identity tuple the result belongs to.
func (r MatchResult) Identity() Identity {
	return Identity{
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Affiliation: r.Affiliation,
	}
}

// HasProfile reports whether a profile URL was found.
func (r MatchResult) HasProfile() bool {
	return strings.TrimSpace(r.ProfileURL) != ""
}

// Clone returns a deep copy of r.
func (r MatchResult) Clone() MatchResult {
	if r.EstimatedIncome != nil {
		v := *r.EstimatedIncome
		r.EstimatedIncome = &v
	}
	return r
}
