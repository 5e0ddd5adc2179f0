// Package browser provides short-lived headless browser sessions used to
// render search result pages.
package browser

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultPageTimeout bounds a single page load.
const DefaultPageTimeout = 15 * time.Second

// Session is one browser instance. Close must be called exactly once.
type Session interface {
	// Fetch navigates to url and returns the rendered HTML.
	Fetch(ctx context.Context, url string) (string, error)
	Close() error
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// WithSession launches a session, runs fn with it and always closes it,
// including when fn panics.
func WithSession(ctx context.Context, l Launcher, fn func(Session) error) error {
	s, err := l.Launch(ctx)
	if err != nil {
		return eris.Wrap(err, "browser: launch")
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			zap.L().Debug("browser: close session", zap.Error(cerr))
		}
	}()
	return fn(s)
}

// Bounded limits the number of concurrently open sessions of l to n.
// Launch blocks until a slot frees up or ctx is done.
func Bounded(l Launcher, n int) Launcher {
	if n <= 0 {
		n = 1
	}
	return &bounded{inner: l, slots: make(chan struct{}, n)}
}

type bounded struct {
	inner Launcher
	slots chan struct{}
}

func (b *bounded) Launch(ctx context.Context) (Session, error) {
	select {
	case b.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "browser: wait for slot")
	}
	s, err := b.inner.Launch(ctx)
	if err != nil {
		<-b.slots
		return nil, err
	}
	return &boundedSession{Session: s, release: func() { <-b.slots }}, nil
}

type boundedSession struct {
	Session
	release func()
	closed  bool
}

func (s *boundedSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.release()
	return s.Session.Close()
}
