package provider

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/resilience"
	"github.com/sells-group/profile-finder/pkg/serpapi"
)

// NameSerpAPI is the registry name of the SerpAPI provider.
const NameSerpAPI = "serpapi"

const serpAPIHost = "serpapi.com"

// QueryConfig controls how search queries are rendered.
type QueryConfig struct {
	// Domain restricts results to one site. Default: linkedin.com.
	Domain string
	// Aliases expands affiliation abbreviations.
	Aliases map[string]string
}

func (c QueryConfig) withDefaults() QueryConfig {
	if c.Domain == "" {
		c.Domain = DefaultTargetDomain
	}
	if c.Aliases == nil {
		c.Aliases = map[string]string{}
	}
	return c
}

// SerpAPI searches Google through SerpAPI.
type SerpAPI struct {
	client   serpapi.Client
	selector *Selector
	breaker  *resilience.CircuitBreaker
	limiter  *HostLimiter
	cfg      QueryConfig
}

// NewSerpAPI creates the SerpAPI provider. breaker and limiter may be nil.
func NewSerpAPI(client serpapi.Client, sel *Selector, breaker *resilience.CircuitBreaker, limiter *HostLimiter, cfg QueryConfig) *SerpAPI {
	if breaker == nil {
		breaker = newProviderBreaker()
	}
	return &SerpAPI{
		client:   client,
		selector: sel,
		breaker:  breaker,
		limiter:  limiter,
		cfg:      cfg.withDefaults(),
	}
}

// Name implements Provider.
func (p *SerpAPI) Name() string { return NameSerpAPI }

// Search implements Provider.
func (p *SerpAPI) Search(ctx context.Context, req Request) (Outcome, error) {
	if req.Credential == "" && !p.client.HasKey() {
		return Unavailable(NameSerpAPI, "no api key"), nil
	}
	if !p.breaker.Allow() {
		return Unavailable(NameSerpAPI, "circuit open"), nil
	}
	if err := p.limiter.Wait(ctx, serpAPIHost); err != nil {
		return Outcome{}, err
	}

	query := BuildQuery(req.Query, p.cfg.Aliases, p.cfg.Domain)
	resp, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (*serpapi.SearchResponse, error) {
		return p.client.Search(ctx, serpapi.SearchRequest{
			Query:  query,
			APIKey: req.Credential,
			Num:    req.maxResults(),
		})
	})
	if errors.Is(err, serpapi.ErrNoAPIKey) {
		return Unavailable(NameSerpAPI, "no api key"), nil
	}
	if err != nil {
		return mapFault(ctx, NameSerpAPI, query, err)
	}
	if resp.Error != "" {
		zap.L().Info("serpapi: search reported error",
			zap.String("query", query),
			zap.String("error", resp.Error),
		)
		return NoMatch(NameSerpAPI, resp.Error), nil
	}

	candidates := make([]model.SearchCandidate, 0, len(resp.OrganicResults))
	for _, r := range resp.OrganicResults {
		if r.Link == "" {
			continue
		}
		candidates = append(candidates, model.SearchCandidate{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
		})
	}
	return selectOutcome(ctx, p.selector, NameSerpAPI, req, candidates, true)
}

// selectOutcome runs the shared selection over candidates and wraps the
// winner, if any, in an Outcome.
func selectOutcome(ctx context.Context, sel *Selector, name string, req Request, candidates []model.SearchCandidate, prefilter bool) (Outcome, error) {
	if len(candidates) > req.maxResults() {
		candidates = candidates[:req.maxResults()]
	}
	if len(candidates) == 0 {
		return NoMatch(name, "no results"), nil
	}
	best, err := sel.Best(ctx, req.Query, candidates, req.Thresholds.OrDefault(), prefilter)
	if err != nil {
		return Outcome{}, eris.Wrapf(err, "%s: select", name)
	}
	if best == nil {
		return NoMatch(name, "no acceptable candidate"), nil
	}
	return Matched(name, *best), nil
}

// mapFault turns a call error into an outcome or a fault. Transient errors
// and cancellation are returned to the caller; other errors become NoMatch.
func mapFault(ctx context.Context, name, query string, err error) (Outcome, error) {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return Unavailable(name, "circuit open"), nil
	case ctx.Err() != nil:
		return Outcome{}, eris.Wrapf(err, "%s: search cancelled", name)
	case resilience.IsTransient(err):
		return Outcome{}, eris.Wrapf(err, "%s: search", name)
	}
	zap.L().Warn("provider: search failed",
		zap.String("provider", name),
		zap.String("query", query),
		zap.Error(err),
	)
	return NoMatch(name, err.Error()), nil
}

// newProviderBreaker returns a breaker that counts transient faults only.
func newProviderBreaker() *resilience.CircuitBreaker {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.ShouldTrip = resilience.IsTransient
	return resilience.NewCircuitBreaker(cfg)
}
