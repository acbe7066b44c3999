package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"dealtracker/config"
	"dealtracker/models"
	"dealtracker/utils"

	"github.com/PuerkitoBio/goquery"
)

// HTTPFetcher loads pages with a plain HTTP client; no JavaScript runs.
// Each session gets its own transport so the proxy and connections die with it.
type HTTPFetcher struct {
	timeout time.Duration
	pacer   *utils.Pacer
	logger  *utils.Logger
}

// NewHTTPFetcher creates an HTTPFetcher from the pipeline settings
func NewHTTPFetcher(cfg config.PipelineConfig, logger *utils.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		timeout: cfg.NavigationTimeout,
		pacer:   utils.NewPacer(cfg.DelayMin, cfg.DelayMax),
		logger:  logger,
	}
}

func (f *HTTPFetcher) newClient(id models.Identity) (*http.Client, *http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if id.Proxy != nil {
		proxyURL, err := url.Parse(id.Proxy.URL())
		if err != nil {
			return nil, nil, fmt.Errorf("%w: bad proxy %s: %v", models.ErrSession, id.Proxy.URL(), err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{Timeout: f.timeout, Transport: transport}, transport, nil
}

// WithSession implements Fetcher
func (f *HTTPFetcher) WithSession(ctx context.Context, id models.Identity, pageURL string, fn func(doc *goquery.Document) error) error {
	client, transport, err := f.newClient(id)
	if err != nil {
		return err
	}
	defer transport.CloseIdleConnections()

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrSession, pageURL, err)
	}
	if id.UserAgent != "" {
		req.Header.Set("User-Agent", id.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s after %v", models.ErrNavigationTimeout, pageURL, f.timeout)
		}
		return fmt.Errorf("%w: %s: %v", models.ErrSession, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: status code %d", models.ErrSession, pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s after %v", models.ErrNavigationTimeout, pageURL, f.timeout)
		}
		return fmt.Errorf("%w: parse %s: %v", models.ErrSession, pageURL, err)
	}

	// Mandatory pacing; cancellation is observed by the caller between items
	_ = f.pacer.Wait(ctx)

	f.logger.Debug("Loaded %s", pageURL)
	return fn(doc)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
