// Package engine runs batches of person lookups: the retrying resolver,
// the task orchestrator and the result finalizer.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/provider"
	"github.com/sells-group/profile-finder/internal/resilience"
)

// Job is one person to resolve within a batch.
type Job struct {
	BatchID    string
	Query      model.PersonQuery
	Thresholds model.Thresholds
	Credential string
	MaxResults int
}

// Resolver turns a Job into exactly one MatchResult. Implementations never
// return a fault; failures become the "Error" sentinel.
type Resolver interface {
	Resolve(ctx context.Context, job Job) model.MatchResult
}

// attemptResetter is implemented by resolvers that keep retry accounting
// across batches.
type attemptResetter interface {
	ResetAttempts()
}

// DeadLetterSink receives people whose resolution failed for good.
type DeadLetterSink interface {
	SaveDeadLetter(ctx context.Context, dl resilience.DeadLetter) error
}

// ChainResolver runs a provider chain under the retry policy.
type ChainResolver struct {
	chain  provider.Provider
	ledger *resilience.AttemptLedger
	retry  resilience.RetryConfig
	dlq    DeadLetterSink
}

// ResolverOption configures a ChainResolver.
type ResolverOption func(*ChainResolver)

// WithRetryConfig overrides the retry policy. MaxRetries also sizes the
// attempt ledger.
func WithRetryConfig(cfg resilience.RetryConfig) ResolverOption {
	return func(r *ChainResolver) { r.retry = cfg }
}

// WithDeadLetters records exhausted faults in sink.
func WithDeadLetters(sink DeadLetterSink) ResolverOption {
	return func(r *ChainResolver) { r.dlq = sink }
}

// NewChainResolver creates a resolver over chain.
func NewChainResolver(chain provider.Provider, opts ...ResolverOption) *ChainResolver {
	r := &ChainResolver{
		chain: chain,
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.retry.MaxRetries < 0 {
		r.retry.MaxRetries = resilience.DefaultMaxRetries
	}
	r.ledger = resilience.NewAttemptLedger(r.retry.MaxRetries)
	return r
}

// Ledger exposes the per-person retry accounting.
func (r *ChainResolver) Ledger() *resilience.AttemptLedger { return r.ledger }

// ResetAttempts clears the retry ledger.
func (r *ChainResolver) ResetAttempts() { r.ledger.Reset() }

// Resolve implements Resolver. Transient faults are retried up to the
// policy's limit, and never beyond what the person's ledger entry allows.
func (r *ChainResolver) Resolve(ctx context.Context, job Job) model.MatchResult {
	q := job.Query
	if q.FullName() == "" {
		return model.NewNoMatch(q)
	}

	log := zap.L().With(
		zap.String("batch_id", job.BatchID),
		zap.String("person", q.FullName()),
	)

	attempts := 1
	cfg := r.retry
	cfg.Budget = r.ledger.Budget(q.Key())
	logRetry := resilience.RetryLogger("resolve", zap.String("person", q.FullName()))
	cfg.OnRetry = func(retry int, err error) {
		attempts++
		logRetry(retry, err)
	}

	req := provider.Request{
		Query:      q,
		Thresholds: job.Thresholds,
		Credential: job.Credential,
		MaxResults: job.MaxResults,
	}
	out, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (provider.Outcome, error) {
		return r.chain.Search(ctx, req)
	})
	if err != nil {
		err = eris.Wrap(err, "resolve")
		log.Error("resolution failed",
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		r.deadLetter(ctx, job, err, attempts)
		return model.NewErrorResult(q, err)
	}

	if out.Kind == provider.KindMatch && out.Result != nil {
		log.Debug("match found",
			zap.String("provider", out.Provider),
			zap.String("url", out.Result.ProfileURL),
			zap.Int("confidence", out.Result.ConfidencePercent),
		)
		return out.Result.Clone()
	}

	log.Debug("no match",
		zap.String("provider", out.Provider),
		zap.String("reason", out.Reason),
	)
	res := model.NewNoMatch(q)
	res.Provider = out.Provider
	return res
}

func (r *ChainResolver) deadLetter(ctx context.Context, job Job, err error, attempts int) {
	if r.dlq == nil {
		return
	}
	dl := resilience.NewDeadLetter(job.BatchID, job.Query, err, attempts)
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if serr := r.dlq.SaveDeadLetter(sctx, dl); serr != nil {
		zap.L().Warn("save dead letter", zap.String("person", job.Query.FullName()), zap.Error(serr))
	}
}
