package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"dealtracker/config"
	"dealtracker/models"
	"dealtracker/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// BrowserFetcher loads pages in a headless Chrome, one browser per session
type BrowserFetcher struct {
	headless bool
	timeout  time.Duration
	pacer    *utils.Pacer
	logger   *utils.Logger

	run func(ctx context.Context, actions ...chromedp.Action) error
}

// NewBrowserFetcher creates a BrowserFetcher from the pipeline settings
func NewBrowserFetcher(cfg config.PipelineConfig, logger *utils.Logger) *BrowserFetcher {
	return &BrowserFetcher{
		headless: cfg.Headless,
		timeout:  cfg.NavigationTimeout,
		pacer:    utils.NewPacer(cfg.DelayMin, cfg.DelayMax),
		logger:   logger,
		run:      chromedp.Run,
	}
}

// newContext creates a fresh chromedp context configured with the identity (one browser, one tab)
func (f *BrowserFetcher) newContext(parent context.Context, id models.Identity) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("log-level", "3"), // suppress Chrome logs
		chromedp.WindowSize(1366, 768),
	)
	if id.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(id.UserAgent))
	}
	if id.Proxy != nil {
		opts = append(opts, chromedp.ProxyServer(id.Proxy.URL()))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	cancel := func() {
		cancelCtx()
		cancelAlloc()
	}
	return ctx, cancel
}

// WithSession implements Fetcher
func (f *BrowserFetcher) WithSession(ctx context.Context, id models.Identity, url string, fn func(doc *goquery.Document) error) error {
	bctx, cancel := f.newContext(ctx, id)
	defer cancel()

	// Start the browser outside the navigation budget. Cancelling the context of the
	// first Run closes the browser, so it carries no timeout of its own.
	if err := f.run(bctx); err != nil {
		return fmt.Errorf("%w: start browser for %s: %v", models.ErrSession, url, err)
	}

	navCtx, cancelNav := context.WithTimeout(bctx, f.timeout)
	defer cancelNav()

	var html string
	err := f.run(navCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "en-US,en;q=0.9",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		}),
		navigateUntilIdle(url),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %v", models.ErrNavigationTimeout, url, f.timeout)
		}
		return fmt.Errorf("%w: %s: %v", models.ErrSession, url, err)
	}

	// Mandatory pacing; cancellation is observed by the caller between items
	_ = f.pacer.Wait(ctx)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", models.ErrSession, url, err)
	}
	f.logger.Debug("Loaded %s (%d bytes)", url, len(html))
	return fn(doc)
}

// navigateUntilIdle navigates and blocks until the page reports networkIdle for the new document
func navigateUntilIdle(url string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		idle := make(chan struct{}, 1)
		var started atomic.Bool

		lctx, cancel := context.WithCancel(ctx)
		defer cancel()
		chromedp.ListenTarget(lctx, func(ev interface{}) {
			e, ok := ev.(*page.EventLifecycleEvent)
			if !ok {
				return
			}
			switch e.Name {
			case "init":
				started.Store(true)
			case "networkIdle":
				if started.Load() {
					select {
					case idle <- struct{}{}:
					default:
					}
				}
			}
		})

		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return err
		}
		if err := chromedp.Navigate(url).Do(ctx); err != nil {
			return err
		}
		select {
		case <-idle:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
