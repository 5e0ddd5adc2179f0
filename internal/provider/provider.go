// Package provider defines the candidate search providers and the ordered
// chain that falls back between them.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/profile-finder/internal/model"
)

// Kind classifies a provider outcome.
type Kind int

const (
	// KindNoMatch means the provider searched and found nothing acceptable.
	KindNoMatch Kind = iota
	// KindMatch means a candidate passed the thresholds.
	KindMatch
	// KindUnavailable means the provider could not be used at all (no
	// credential, open circuit).
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindMatch:
		return "match"
	case KindNoMatch:
		return "no_match"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Outcome is the typed result of one provider call.
type Outcome struct {
	Kind     Kind               `json:"kind"`
	Result   *model.MatchResult `json:"result,omitempty"`
	Provider string             `json:"provider"`
	// Reason explains NoMatch and Unavailable outcomes for logs.
	Reason string `json:"reason,omitempty"`
}

// Matched returns a Match outcome carrying r.
func Matched(provider string, r model.MatchResult) Outcome {
	r.Provider = provider
	return Outcome{Kind: KindMatch, Result: &r, Provider: provider}
}

// NoMatch returns a NoMatch outcome.
func NoMatch(provider, reason string) Outcome {
	return Outcome{Kind: KindNoMatch, Provider: provider, Reason: reason}
}

// Unavailable returns an Unavailable outcome.
func Unavailable(provider, reason string) Outcome {
	return Outcome{Kind: KindUnavailable, Provider: provider, Reason: reason}
}

// Request is one search for a person.
type Request struct {
	Query      model.PersonQuery
	Thresholds model.Thresholds
	// Credential is a per-call API key. It wins over configured defaults.
	Credential string
	// MaxResults caps the candidates considered. Zero means DefaultMaxResults.
	MaxResults int
}

// DefaultMaxResults is the number of search results requested per query.
const DefaultMaxResults = 10

func (r Request) maxResults() int {
	if r.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return r.MaxResults
}

// Provider searches for a person's profile. A non-nil error is a fault:
// transient faults are retried by the caller, permanent ones are not.
type Provider interface {
	// Name returns the provider identifier used in config and results.
	Name() string
	// Search looks up the person in req.
	Search(ctx context.Context, req Request) (Outcome, error)
}

// Registry holds the providers that can be named in configuration.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry, replacing any with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
