package browser

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-finder/pkg/jina"
)

// JinaLauncher renders pages in Jina's remote browser instead of a local
// Chrome. Sessions hold no local resources.
type JinaLauncher struct {
	client       jina.Client
	timeout      time.Duration
	waitSelector string
}

// NewJinaLauncher creates a JinaLauncher. waitSelector may be empty.
func NewJinaLauncher(client jina.Client, timeout time.Duration, waitSelector string) *JinaLauncher {
	if timeout <= 0 {
		timeout = DefaultPageTimeout
	}
	return &JinaLauncher{client: client, timeout: timeout, waitSelector: waitSelector}
}

// Launch implements Launcher.
func (l *JinaLauncher) Launch(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "jina browser: launch")
	}
	return &jinaSession{l: l}, nil
}

type jinaSession struct {
	l *JinaLauncher
}

func (s *jinaSession) Fetch(ctx context.Context, url string) (string, error) {
	opts := []jina.ReadOption{
		jina.WithBrowserEngine(),
		jina.WithReturnFormat("html"),
		jina.WithReadTimeout(s.l.timeout),
	}
	if s.l.waitSelector != "" {
		opts = append(opts, jina.WithWaitForSelector(s.l.waitSelector))
	}

	ctx, cancel := context.WithTimeout(ctx, s.l.timeout+5*time.Second)
	defer cancel()

	resp, err := s.l.client.Read(ctx, url, opts...)
	if err != nil {
		return "", eris.Wrapf(err, "jina browser: fetch %s", url)
	}
	return resp.Data.Body(), nil
}

func (s *jinaSession) Close() error { return nil }
