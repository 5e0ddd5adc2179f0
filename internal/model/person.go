// Package model defines the records that flow through profile resolution.
package model

import "strings"

// PersonQuery is one person to resolve. It is immutable once enqueued.
type PersonQuery struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Affiliation    string `json:"affiliation"`
	GraduationYear string `json:"graduation_year,omitempty"`
}

// FullName returns "first last" with surrounding whitespace removed.
func (p PersonQuery) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// Key is the logical person key used for retry accounting.
func (p PersonQuery) Key() string {
	return strings.ToLower(p.FullName())
}

// Identity is the (first, last, affiliation) tuple that identifies a query.
type Identity struct {
	FirstName   string
	LastName    string
	Affiliation string
}

// Identity returns the identity tuple of the query.
func (p PersonQuery) Identity() Identity {
	return Identity{
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Affiliation: p.Affiliation,
	}
}

// Valid reports whether the query has enough data to search for.
func (p PersonQuery) Valid() bool {
	return p.FullName() != "" && strings.TrimSpace(p.Affiliation) != ""
}
