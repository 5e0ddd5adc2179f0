package main

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-finder/internal/browser"
	"github.com/sells-group/profile-finder/internal/config"
	"github.com/sells-group/profile-finder/internal/cost"
	"github.com/sells-group/profile-finder/internal/embed"
	"github.com/sells-group/profile-finder/internal/engine"
	"github.com/sells-group/profile-finder/internal/entity"
	"github.com/sells-group/profile-finder/internal/estimate"
	"github.com/sells-group/profile-finder/internal/provider"
	"github.com/sells-group/profile-finder/internal/resilience"
	"github.com/sells-group/profile-finder/internal/scorer"
	"github.com/sells-group/profile-finder/internal/store"
	anthropicpkg "github.com/sells-group/profile-finder/pkg/anthropic"
	"github.com/sells-group/profile-finder/pkg/jina"
	"github.com/sells-group/profile-finder/pkg/serpapi"
)

// resolveEnv holds the initialized clients, the provider chain and the
// orchestrator used by the resolve and serve commands.
type resolveEnv struct {
	Store        store.Store // may be nil
	Chain        *provider.Chain
	Resolver     *engine.ChainResolver
	Orchestrator *engine.Orchestrator
	Meter        *cost.Meter
	Pricing      *cost.Calculator
	encoder      embed.Encoder
}

// Usage prices the billable calls made since the environment was built.
func (e *resolveEnv) Usage() cost.Report {
	return e.Meter.Report(e.Pricing)
}

// Close releases resources held by the environment.
func (e *resolveEnv) Close() {
	if e.encoder != nil {
		_ = e.encoder.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv builds the resolve stack from c. st is optional; when set it
// receives dead letters. The environment takes ownership of st.
func initEnv(c *config.Config, st store.Store, opts ...engine.Option) (*resolveEnv, error) {
	enc, err := buildEncoder(c.Scoring)
	if err != nil {
		return nil, err
	}

	meter := cost.NewMeter()
	extractor := buildExtractor(c, meter)
	sel := provider.NewSelector(scorer.New(enc), extractor)

	chain, err := buildChain(c, sel, meter)
	if err != nil {
		_ = enc.Close()
		return nil, err
	}

	incomes := estimate.DefaultIncomeTable()
	if c.Estimate.IncomeTablePath != "" {
		incomes, err = estimate.LoadIncomeTable(c.Estimate.IncomeTablePath)
		if err != nil {
			_ = enc.Close()
			return nil, eris.Wrap(err, "load income table")
		}
	}

	rc := resilience.DefaultRetryConfig()
	rc.MaxRetries = c.Engine.MaxRetries
	if c.Engine.InitialBackoffMs > 0 {
		rc.InitialBackoff = time.Duration(c.Engine.InitialBackoffMs) * time.Millisecond
	}
	if c.Engine.MaxBackoffMs > 0 {
		rc.MaxBackoff = time.Duration(c.Engine.MaxBackoffMs) * time.Millisecond
	}
	resolverOpts := []engine.ResolverOption{engine.WithRetryConfig(rc)}
	if st != nil {
		resolverOpts = append(resolverOpts, engine.WithDeadLetters(st))
	}
	resolver := engine.NewChainResolver(chain, resolverOpts...)

	orchOpts := []engine.Option{
		engine.WithWorkers(c.Engine.Workers),
		engine.WithStallAfter(time.Duration(c.Engine.StallAfterSecs) * time.Second),
		engine.WithFinalizer(engine.NewFinalizer(incomes, nil)),
	}
	orch := engine.NewOrchestrator(resolver, append(orchOpts, opts...)...)

	zap.L().Info("resolve stack ready",
		zap.Strings("providers", chain.Providers()),
		zap.String("fallback", string(chain.Policy())),
		zap.String("encoder", enc.ModelID()),
		zap.Int("workers", orch.Workers()),
		zap.Int("max_retries", c.Engine.MaxRetries),
	)

	return &resolveEnv{
		Store:        st,
		Chain:        chain,
		Resolver:     resolver,
		Orchestrator: orch,
		Meter:        meter,
		Pricing:      cost.NewCalculator(buildRates(c.Pricing)),
		encoder:      enc,
	}, nil
}

// buildEncoder returns the configured embedding encoder behind a cache.
func buildEncoder(sc config.ScoringConfig) (embed.Encoder, error) {
	var inner embed.Encoder
	switch sc.Encoder {
	case "onnx":
		ort, err := embed.NewOrtEncoder(embed.OrtConfig{
			LibraryPath:   sc.OnnxLibraryPath,
			ModelPath:     sc.ModelPath,
			TokenizerPath: sc.TokenizerPath,
			MaxSeqLen:     sc.MaxSeqLen,
			ModelID:       strings.TrimSuffix(filepath.Base(sc.ModelPath), filepath.Ext(sc.ModelPath)),
		})
		if err != nil {
			return nil, eris.Wrap(err, "init onnx encoder")
		}
		inner = ort
	default:
		inner = embed.NewNgramEncoder(sc.NgramDim)
	}

	cached, err := embed.NewCachedEncoder(inner, sc.CacheDir)
	if err != nil {
		_ = inner.Close()
		return nil, err
	}
	return cached, nil
}

// buildRates overlays configured pricing on the built-in rates.
func buildRates(pc config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	for name, v := range pc.Search {
		rates.Search[name] = v
	}
	for id, m := range pc.Anthropic {
		rates.Anthropic[id] = cost.ModelRate{
			Input:         m.Input,
			Output:        m.Output,
			CacheWriteMul: m.CacheWriteMul,
			CacheReadMul:  m.CacheReadMul,
		}
	}
	return rates
}

func buildExtractor(c *config.Config, meter *cost.Meter) entity.Extractor {
	gaz := entity.NewGazetteer(c.Entity.Cities)
	if c.Entity.Extractor != "llm" {
		return gaz
	}
	client := anthropicpkg.NewClient(c.Anthropic.Key)
	zap.L().Info("llm entity extraction enabled", zap.String("model", c.Anthropic.Model))
	return entity.NewLLM(client, c.Anthropic.Model, gaz).OnUsage(meter.RecordTokens)
}

// buildLauncher returns the browser backend for scrape providers, or nil
// when browsing is disabled.
func buildLauncher(c *config.Config, jinaClient jina.Client) browser.Launcher {
	var l browser.Launcher
	switch c.Browser.Backend {
	case "chrome":
		l = browser.NewChromeLauncher(browser.ChromeConfig{
			ExecPath:     c.Browser.ExecPath,
			Headless:     c.Browser.Headless,
			UserAgent:    c.Browser.UserAgent,
			PageTimeout:  c.Browser.PageTimeout(),
			WaitSelector: c.Browser.WaitSelector,
		})
	case "jina":
		l = browser.NewJinaLauncher(jinaClient, c.Browser.PageTimeout(), c.Browser.WaitSelector)
	default:
		return nil
	}
	if c.Browser.MaxSessions > 0 {
		l = browser.Bounded(l, c.Browser.MaxSessions)
	}
	return l
}

// buildChain registers every provider and assembles the configured order.
func buildChain(c *config.Config, sel *provider.Selector, meter *cost.Meter) (*provider.Chain, error) {
	policy, err := provider.ParseFallbackPolicy(c.Search.Fallback)
	if err != nil {
		return nil, err
	}

	hc := &http.Client{Timeout: time.Duration(c.Search.TimeoutSecs) * time.Second}
	limiter := provider.NewHostLimiter(c.Search.RateLimit, c.Search.RateBurst)
	qc := provider.QueryConfig{
		Domain:  c.Search.TargetDomain,
		Aliases: c.Search.AffiliationAliases,
	}

	serpClient := serpapi.NewClient(c.SerpAPI.Key,
		serpapi.WithBaseURL(c.SerpAPI.BaseURL),
		serpapi.WithHTTPClient(hc),
	)
	jinaOpts := []jina.Option{jina.WithBaseURL(c.Jina.BaseURL), jina.WithHTTPClient(hc)}
	if c.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(c.Jina.Key, jinaOpts...)

	reg := provider.NewRegistry()
	for _, p := range []provider.Provider{
		provider.NewSerpAPI(serpClient, sel, nil, limiter, qc),
		provider.NewJinaSearch(jinaClient, c.Jina.Key != "", sel, nil, limiter, qc),
		provider.NewBing(buildLauncher(c, jinaClient), sel, nil, limiter, qc, c.Browser.SearchURL),
	} {
		reg.Register(cost.Metered(p, meter))
	}

	return provider.BuildChain(reg, policy, c.Search.Providers()...)
}
