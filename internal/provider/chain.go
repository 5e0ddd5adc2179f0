package provider

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FallbackPolicy decides when the chain moves on to the next provider.
type FallbackPolicy string

const (
	// FallbackUnavailable moves on only when a provider is Unavailable.
	// NoMatch is terminal.
	FallbackUnavailable FallbackPolicy = "unavailable"
	// FallbackNoMatch also moves on after NoMatch.
	FallbackNoMatch FallbackPolicy = "no_match"
)

// ParseFallbackPolicy parses a configured policy. Empty means
// FallbackUnavailable.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FallbackUnavailable:
		return FallbackUnavailable, nil
	case FallbackNoMatch:
		return FallbackNoMatch, nil
	}
	return "", eris.Errorf("provider: unknown fallback policy %q", s)
}

// NameChain is the provider name reported for outcomes produced by the
// chain itself.
const NameChain = "chain"

// Chain calls providers in order. It is itself a Provider.
type Chain struct {
	providers []Provider
	policy    FallbackPolicy
}

// NewChain creates a chain over providers, tried in the given order.
func NewChain(policy FallbackPolicy, providers ...Provider) *Chain {
	if policy == "" {
		policy = FallbackUnavailable
	}
	return &Chain{providers: providers, policy: policy}
}

// BuildChain looks up names in reg and chains them.
func BuildChain(reg *Registry, policy FallbackPolicy, names ...string) (*Chain, error) {
	providers := make([]Provider, 0, len(names))
	for _, n := range names {
		p := reg.Get(n)
		if p == nil {
			return nil, eris.Errorf("provider: %q is not registered (have %v)", n, reg.List())
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, eris.New("provider: chain needs at least one provider")
	}
	return NewChain(policy, providers...), nil
}

// Name implements Provider.
func (c *Chain) Name() string { return NameChain }

// Providers returns the provider names in order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Policy returns the chain's fallback policy.
func (c *Chain) Policy() FallbackPolicy { return c.policy }

// Search implements Provider. A fault from any provider stops the chain and
// is returned as is. When every provider is Unavailable the outcome is
// NoMatch.
func (c *Chain) Search(ctx context.Context, req Request) (Outcome, error) {
	var lastNoMatch *Outcome
	log := zap.L().With(zap.String("person", req.Query.FullName()))

	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return Outcome{}, eris.Wrap(err, "chain: search")
		}
		out, err := p.Search(ctx, req)
		if err != nil {
			return Outcome{Provider: p.Name()}, err
		}
		if out.Provider == "" {
			out.Provider = p.Name()
		}

		log.Debug("chain: provider outcome",
			zap.String("provider", out.Provider),
			zap.Stringer("kind", out.Kind),
			zap.String("reason", out.Reason),
		)

		switch out.Kind {
		case KindMatch:
			return out, nil
		case KindNoMatch:
			if c.policy == FallbackUnavailable {
				return out, nil
			}
			lastNoMatch = &out
		case KindUnavailable:
			// next provider
		}
	}

	if lastNoMatch != nil {
		return *lastNoMatch, nil
	}
	return NoMatch(NameChain, "all providers unavailable"), nil
}
