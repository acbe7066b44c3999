package services

import (
	"context"
	"time"

	"dealtracker/config"
	"dealtracker/models"
	"dealtracker/scraper"
	"dealtracker/scraper/amazon"
	"dealtracker/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// Pipeline holds what both refresh paths share: identity rotation, the fetch session and normalization
type Pipeline struct {
	cfg        config.PipelineConfig
	fetcher    scraper.Fetcher
	proxies    scraper.ProxySource
	counter    scraper.Counter
	local      *scraper.LocalCounter
	normalizer *Normalizer
	logger     *utils.Logger
	now        func() time.Time
}

// NewPipeline wires a pipeline. proxies and counter may be nil: no proxies, in-process rotation.
// Every run of the pipeline rotates through one counter, so concurrent runs share the round-robin.
func NewPipeline(cfg config.PipelineConfig, fetcher scraper.Fetcher, proxies scraper.ProxySource, counter scraper.Counter, logger *utils.Logger) *Pipeline {
	local := &scraper.LocalCounter{}
	if counter == nil {
		counter = local
	}
	return &Pipeline{
		cfg:        cfg,
		fetcher:    fetcher,
		proxies:    proxies,
		counter:    counter,
		local:      local,
		normalizer: NewNormalizer(cfg.BaseURL, cfg.AffiliateTag),
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source used for fetched_at, last_checked and history entries
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
	p.normalizer.now = now
}

// Normalizer returns the pipeline's normalizer
func (p *Pipeline) Normalizer() *Normalizer {
	return p.normalizer
}

// rotator loads the proxy pool for one run. A failing source degrades to direct connections.
func (p *Pipeline) rotator(ctx context.Context) *scraper.Rotator {
	var proxies []models.Proxy
	if p.proxies != nil {
		loaded, err := p.proxies.LoadProxies(ctx)
		if err != nil {
			p.logger.Warn("Proxy list unavailable, using direct connection: %v", err)
		} else {
			proxies = loaded
		}
	}
	rot := scraper.NewRotator(proxies, p.cfg.UserAgents, p.cfg.ProxyPoolSize, p.counter, p.logger)
	rot.SetFallback(p.local)
	p.logger.Debug("Identity pool ready with %d proxies", rot.PoolSize())
	return rot
}

// fetch runs one session. It is detached from ctx cancellation so an abort never lands mid-fetch;
// the navigation timeout still bounds it.
func (p *Pipeline) fetch(ctx context.Context, rot *scraper.Rotator, pageURL string, fn func(doc *goquery.Document) error) error {
	sessionCtx := context.WithoutCancel(ctx)
	id := rot.Next(sessionCtx)
	return p.fetcher.WithSession(sessionCtx, id, pageURL, fn)
}

func (p *Pipeline) fetchProduct(ctx context.Context, rot *scraper.Rotator, productURL string) (models.RawExtraction, error) {
	var raw models.RawExtraction
	err := p.fetch(ctx, rot, productURL, func(doc *goquery.Document) error {
		raw = amazon.ExtractProduct(doc)
		return nil
	})
	return raw, err
}

func (p *Pipeline) fetchListing(ctx context.Context, rot *scraper.Rotator, listURL string, max int) ([]models.RawExtraction, error) {
	var items []models.RawExtraction
	err := p.fetch(ctx, rot, listURL, func(doc *goquery.Document) error {
		items = amazon.ExtractListing(doc, p.cfg.BaseURL, max)
		return nil
	})
	return items, err
}

func (p *Pipeline) newSummary(kind string) *models.RunSummary {
	return &models.RunSummary{
		RunID:     uuid.NewString(),
		Kind:      kind,
		StartedAt: p.now(),
	}
}

func (p *Pipeline) finish(s *models.RunSummary) *models.RunSummary {
	s.CompletedAt = p.now()
	return s
}
