package browser

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// ChromeConfig configures local Chrome sessions.
type ChromeConfig struct {
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	// Headless defaults to true through NewChromeLauncher callers.
	Headless bool
	// UserAgent overrides the browser user agent.
	UserAgent string
	// PageTimeout bounds each Fetch. Default: DefaultPageTimeout.
	PageTimeout time.Duration
	// WaitSelector is waited for after navigation. Default: "body".
	WaitSelector string
}

// ChromeLauncher starts a fresh local Chrome per session through chromedp.
type ChromeLauncher struct {
	cfg ChromeConfig
}

// NewChromeLauncher creates a ChromeLauncher.
func NewChromeLauncher(cfg ChromeConfig) *ChromeLauncher {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = DefaultPageTimeout
	}
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = "body"
	}
	return &ChromeLauncher{cfg: cfg}
}

// Launch implements Launcher. The browser process lives until Close and is
// not tied to ctx.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser.
	startCtx, cancel := context.WithTimeout(tabCtx, l.cfg.PageTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(startCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, eris.Wrap(err, "chrome: start browser")
	}

	return &chromeSession{
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		cfg:         l.cfg,
	}, nil
}

type chromeSession struct {
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	cfg         ChromeConfig
}

func (s *chromeSession) Fetch(ctx context.Context, url string) (string, error) {
	runCtx, cancel := context.WithTimeout(s.ctx, s.cfg.PageTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(s.cfg.WaitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "chrome: fetch cancelled")
		}
		return "", eris.Wrapf(err, "chrome: fetch %s", url)
	}
	return html, nil
}

func (s *chromeSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.tabCancel()
	s.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return eris.Wrap(err, "chrome: close")
	}
	return nil
}
