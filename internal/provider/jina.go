package provider

import (
	"context"
	"strings"

	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/resilience"
	"github.com/sells-group/profile-finder/pkg/jina"
)

// NameJina is the registry name of the Jina search provider.
const NameJina = "jina"

const jinaSearchHost = "s.jina.ai"

// JinaSearch searches through the Jina search API. It needs a configured
// API key; the per-call credential belongs to SerpAPI and is ignored.
type JinaSearch struct {
	client   jina.Client
	hasKey   bool
	selector *Selector
	breaker  *resilience.CircuitBreaker
	limiter  *HostLimiter
	cfg      QueryConfig
}

// NewJinaSearch creates the Jina search provider.
func NewJinaSearch(client jina.Client, hasKey bool, sel *Selector, breaker *resilience.CircuitBreaker, limiter *HostLimiter, cfg QueryConfig) *JinaSearch {
	if breaker == nil {
		breaker = newProviderBreaker()
	}
	return &JinaSearch{
		client:   client,
		hasKey:   hasKey,
		selector: sel,
		breaker:  breaker,
		limiter:  limiter,
		cfg:      cfg.withDefaults(),
	}
}

// Name implements Provider.
func (p *JinaSearch) Name() string { return NameJina }

// Search implements Provider.
func (p *JinaSearch) Search(ctx context.Context, req Request) (Outcome, error) {
	if !p.hasKey {
		return Unavailable(NameJina, "no api key"), nil
	}
	if !p.breaker.Allow() {
		return Unavailable(NameJina, "circuit open"), nil
	}
	if err := p.limiter.Wait(ctx, jinaSearchHost); err != nil {
		return Outcome{}, err
	}

	query := baseQuery(req.Query, p.cfg.Aliases)
	resp, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (*jina.SearchResponse, error) {
		return p.client.Search(ctx, query,
			jina.WithSiteFilter(p.cfg.Domain),
			jina.WithNum(req.maxResults()),
		)
	})
	if err != nil {
		return mapFault(ctx, NameJina, query, err)
	}

	candidates := make([]model.SearchCandidate, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.URL == "" {
			continue
		}
		snippet := r.Description
		if snippet == "" {
			snippet = firstLine(r.Content)
		}
		candidates = append(candidates, model.SearchCandidate{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: snippet,
		})
	}
	return selectOutcome(ctx, p.selector, NameJina, req, candidates, true)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
