package cost

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/profile-finder/internal/provider"
	"github.com/sells-group/profile-finder/pkg/anthropic"
)

// Meter counts billable calls. It is safe for concurrent use.
type Meter struct {
	mu       sync.Mutex
	searches map[string]int
	tokens   map[string]anthropic.TokenUsage
}

// NewMeter creates an empty meter.
func NewMeter() *Meter {
	return &Meter{
		searches: make(map[string]int),
		tokens:   make(map[string]anthropic.TokenUsage),
	}
}

// RecordSearch counts one request to the named provider.
func (m *Meter) RecordSearch(provider string) {
	m.mu.Lock()
	m.searches[provider]++
	m.mu.Unlock()
}

// RecordTokens adds token usage for model.
func (m *Meter) RecordTokens(model string, u anthropic.TokenUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tokens[model]
	t.InputTokens += u.InputTokens
	t.OutputTokens += u.OutputTokens
	t.CacheCreationInputTokens += u.CacheCreationInputTokens
	t.CacheReadInputTokens += u.CacheReadInputTokens
	m.tokens[model] = t
}

// SearchUsage is the request count for one provider.
type SearchUsage struct {
	Provider string  `json:"provider"`
	Requests int     `json:"requests"`
	CostUSD  float64 `json:"cost_usd"`
}

// ModelUsage is the token count for one model.
type ModelUsage struct {
	Model        string  `json:"model"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Report is a priced snapshot of a meter.
type Report struct {
	Searches []SearchUsage `json:"searches"`
	Models   []ModelUsage  `json:"models"`
	TotalUSD float64       `json:"total_usd"`
}

// TotalRequests returns the number of search requests across providers.
func (r Report) TotalRequests() int {
	n := 0
	for _, s := range r.Searches {
		n += s.Requests
	}
	return n
}

// Report prices the current counts with calc. Entries are sorted by name.
func (m *Meter) Report(calc *Calculator) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{Searches: []SearchUsage{}, Models: []ModelUsage{}}
	for name, n := range m.searches {
		c := calc.Search(name, n)
		r.Searches = append(r.Searches, SearchUsage{Provider: name, Requests: n, CostUSD: c})
		r.TotalUSD += c
	}
	for name, u := range m.tokens {
		c := calc.Claude(name, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens)
		r.Models = append(r.Models, ModelUsage{
			Model:        name,
			InputTokens:  u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens,
			OutputTokens: u.OutputTokens,
			CostUSD:      c,
		})
		r.TotalUSD += c
	}
	sort.Slice(r.Searches, func(i, j int) bool { return r.Searches[i].Provider < r.Searches[j].Provider })
	sort.Slice(r.Models, func(i, j int) bool { return r.Models[i].Model < r.Models[j].Model })
	return r
}

// Reset clears all counts.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = make(map[string]int)
	m.tokens = make(map[string]anthropic.TokenUsage)
}

// metered counts the calls that reached a provider's backend.
type metered struct {
	provider.Provider
	meter *Meter
}

// Metered wraps p so that every call reaching its backend is recorded in m.
// Unavailable outcomes never left the process and are not counted.
func Metered(p provider.Provider, m *Meter) provider.Provider {
	return &metered{Provider: p, meter: m}
}

func (p *metered) Search(ctx context.Context, req provider.Request) (provider.Outcome, error) {
	out, err := p.Provider.Search(ctx, req)
	if err != nil || out.Kind != provider.KindUnavailable {
		p.meter.RecordSearch(p.Name())
	}
	return out, err
}
