package provider

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-finder/internal/browser"
	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/resilience"
)

// NameBing is the registry name of the Bing browser provider.
const NameBing = "bing"

// DefaultBingURL is the search endpoint rendered in the browser.
const DefaultBingURL = "https://www.bing.com/search"

// Bing renders Bing result pages in a headless browser and parses them.
type Bing struct {
	launcher browser.Launcher
	selector *Selector
	breaker  *resilience.CircuitBreaker
	limiter  *HostLimiter
	cfg      QueryConfig
	baseURL  string
}

// NewBing creates the Bing provider. An empty baseURL uses DefaultBingURL.
func NewBing(l browser.Launcher, sel *Selector, breaker *resilience.CircuitBreaker, limiter *HostLimiter, cfg QueryConfig, baseURL string) *Bing {
	if breaker == nil {
		breaker = newProviderBreaker()
	}
	if baseURL == "" {
		baseURL = DefaultBingURL
	}
	return &Bing{
		launcher: l,
		selector: sel,
		breaker:  breaker,
		limiter:  limiter,
		cfg:      cfg.withDefaults(),
		baseURL:  baseURL,
	}
}

// Name implements Provider.
func (p *Bing) Name() string { return NameBing }

// Search implements Provider. Launch and navigation failures are transient.
func (p *Bing) Search(ctx context.Context, req Request) (Outcome, error) {
	if p.launcher == nil {
		return Unavailable(NameBing, "no browser configured"), nil
	}
	if !p.breaker.Allow() {
		return Unavailable(NameBing, "circuit open"), nil
	}

	query := BuildQuery(req.Query, p.cfg.Aliases, p.cfg.Domain)
	pageURL := p.baseURL + "?" + url.Values{"q": {query}}.Encode()
	if err := p.limiter.WaitURL(ctx, pageURL); err != nil {
		return Outcome{}, err
	}

	html, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (string, error) {
		var html string
		err := browser.WithSession(ctx, p.launcher, func(s browser.Session) error {
			var ferr error
			html, ferr = s.Fetch(ctx, pageURL)
			return ferr
		})
		if err != nil && ctx.Err() == nil {
			return "", resilience.WrapTransient(err, "bing: render results")
		}
		return html, err
	})
	if err != nil {
		return mapFault(ctx, NameBing, query, err)
	}

	candidates, err := ParseBingResults(html, req.maxResults())
	if err != nil {
		return mapFault(ctx, NameBing, query, err)
	}
	return selectOutcome(ctx, p.selector, NameBing, req, candidates, false)
}

// ParseBingResults extracts organic results from the first limit entries
// of a Bing result page. Entries without a title or link are skipped.
func ParseBingResults(html string, limit int) ([]model.SearchCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "bing: parse html")
	}

	var out []model.SearchCandidate
	doc.Find("li.b_algo").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if limit > 0 && i >= limit {
			return false
		}
		h2 := s.Find("h2").First()
		title := normSpace(h2.Text())
		href, ok := h2.Find("a[href]").First().Attr("href")
		if !ok {
			href, ok = s.Find("a[href]").First().Attr("href")
		}
		if title == "" || !ok || strings.TrimSpace(href) == "" {
			return true
		}
		out = append(out, model.SearchCandidate{
			Title:   title,
			URL:     strings.TrimSpace(href),
			Snippet: normSpace(s.Find(".b_caption").First().Text()),
		})
		return true
	})
	return out, nil
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
