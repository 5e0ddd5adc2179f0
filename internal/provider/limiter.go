package provider

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// HostLimiter rate limits outbound requests per host. Providers share one
// instance so concurrent workers do not flood a backend.
type HostLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

// NewHostLimiter allows reqPerSec requests per host with the given burst.
// A non-positive rate disables limiting.
func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	r := rate.Limit(reqPerSec)
	if reqPerSec <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{m: make(map[string]*rate.Limiter), r: r, b: burst}
}

func (hl *HostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	if l, ok := hl.m[host]; ok {
		return l
	}
	l := rate.NewLimiter(hl.r, hl.b)
	hl.m[host] = l
	return l
}

// Wait blocks until a request to host is allowed or ctx is done.
func (hl *HostLimiter) Wait(ctx context.Context, host string) error {
	if hl == nil {
		return nil
	}
	if err := hl.limiterFor(strings.ToLower(host)).Wait(ctx); err != nil {
		return eris.Wrapf(err, "limiter: wait for %s", host)
	}
	return nil
}

// WaitURL is Wait for the host of raw.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	if hl == nil {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return hl.Wait(ctx, raw)
	}
	return hl.Wait(ctx, u.Hostname())
}
