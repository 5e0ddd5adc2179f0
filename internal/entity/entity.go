// Package entity pulls locations, organisations and person names out of
// short search-result text.
package entity

import (
	"context"
	"strings"

	"github.com/sells-group/profile-finder/internal/model"
)

// Entities are the named entities found in a text, each list ordered by
// first appearance and de-duplicated.
type Entities struct {
	Locations     []string `json:"locations"`
	Organizations []string `json:"organizations"`
	Persons       []string `json:"persons"`
}

// FirstLocation returns the first location or model.LocationUnknown.
func (e Entities) FirstLocation() string {
	for _, l := range e.Locations {
		if strings.TrimSpace(l) != "" {
			return l
		}
	}
	return model.LocationUnknown
}

// Extractor finds entities in free text.
type Extractor interface {
	Extract(ctx context.Context, text string) (Entities, error)
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		k := strings.ToLower(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}
