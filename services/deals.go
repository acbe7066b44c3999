package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealtracker/models"
	"dealtracker/scraper"
	"dealtracker/scraper/amazon"
	"dealtracker/storage"
	"dealtracker/utils"
)

// UpsertResult tells whether an upsert created the cache row or refreshed it
type UpsertResult int

const (
	Inserted UpsertResult = iota + 1
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	}
	return "unknown"
}

// RawRecorder keeps raw extractions of a run for later inspection
type RawRecorder interface {
	WriteRawExtractions(runID, sourceURL string, raws []models.RawExtraction, at time.Time) error
}

// DealSynchronizer refreshes the shared deal cache from the deals index
type DealSynchronizer struct {
	pipeline *Pipeline
	store    storage.DealStore
	raw      RawRecorder
	logger   *utils.Logger
}

// NewDealSynchronizer creates a DealSynchronizer; raw may be nil
func NewDealSynchronizer(p *Pipeline, store storage.DealStore, raw RawRecorder, logger *utils.Logger) *DealSynchronizer {
	return &DealSynchronizer{pipeline: p, store: store, raw: raw, logger: logger}
}

// Upsert writes deal keyed by its ASIN. A row inserted concurrently between lookup and insert
// is updated instead.
func (s *DealSynchronizer) Upsert(ctx context.Context, deal *models.Deal) (UpsertResult, error) {
	existing, err := s.store.FindDealByASIN(ctx, deal.ASIN)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		inserted, err := s.store.InsertDeal(ctx, deal)
		if err != nil {
			return 0, err
		}
		if inserted {
			return Inserted, nil
		}
	}
	if err := s.store.UpdateDeal(ctx, deal.ASIN, deal); err != nil {
		return 0, err
	}
	return Updated, nil
}

// Refresh scrapes up to max deals and upserts each one. Per-item failures are logged and
// counted, never returned. Cancelling ctx stops the run between items; the item in flight completes.
func (s *DealSynchronizer) Refresh(ctx context.Context, max int) (*models.RunSummary, error) {
	p := s.pipeline
	summary := p.newSummary(models.RunRefreshDeals)
	log := s.logger.With("run", summary.RunID)

	rot := p.rotator(ctx)
	listURL := amazon.DealsURL(p.cfg.BaseURL)
	log.Info("Fetching deals index: %s", listURL)

	cards, err := p.fetchListing(ctx, rot, listURL, max)
	if err != nil {
		log.Error("Deals index fetch failed: %v", err)
		return p.finish(summary), nil
	}
	summary.Scraped = len(cards)
	if len(cards) == 0 {
		log.Warn("No deals found on %s", listURL)
		return p.finish(summary), nil
	}
	if s.raw != nil {
		if err := s.raw.WriteRawExtractions(summary.RunID, listURL, cards, p.now()); err != nil {
			log.Warn("Raw dump failed: %v", err)
		}
	}

	seen := utils.NewSeenSet[string]()
	for i, card := range cards {
		if err := ctx.Err(); err != nil {
			log.Warn("Deals refresh cancelled after %d/%d items", i, len(cards))
			return p.finish(summary), err
		}

		productURL := *card.ProductURL
		asin, ok := ExtractASIN(productURL)
		if !ok {
			log.Warn("Skipping %s: %v", productURL, models.ErrIdentifierMissing)
			summary.Failed++
			continue
		}
		if !seen.Mark(asin) {
			log.Debug("Skipping duplicate %s", asin)
			continue
		}

		result, err := s.syncOne(context.WithoutCancel(ctx), rot, productURL, card.DealType)
		if err != nil {
			log.Warn("Skipping %s (%s): %v", asin, productURL, err)
			summary.Failed++
			continue
		}
		switch result {
		case Inserted:
			summary.Inserted++
		case Updated:
			summary.Updated++
		}
		log.Debug("Deal %s %s", asin, result)
	}

	p.finish(summary)
	log.Info("Deals refresh done: scraped=%d inserted=%d updated=%d failed=%d",
		summary.Scraped, summary.Inserted, summary.Updated, summary.Failed)
	return summary, nil
}

func (s *DealSynchronizer) syncOne(ctx context.Context, rot *scraper.Rotator, productURL, dealType string) (UpsertResult, error) {
	p := s.pipeline
	raw, err := p.fetchProduct(ctx, rot, productURL)
	if err != nil {
		return 0, err
	}
	raw.DealType = dealType

	deal, err := p.normalizer.Normalize(raw, productURL)
	if err != nil {
		return 0, err
	}
	result, err := s.Upsert(ctx, deal)
	if err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}

	if deal.Price != nil {
		if err := s.store.AppendPriceHistory(ctx, deal.ASIN, *deal.Price, models.SourceDeals, deal.FetchedAt); err != nil {
			s.logger.Warn("Price history for %s not recorded: %v", deal.ASIN, err)
		}
	}
	return result, nil
}

// isSessionFailure reports whether err came from loading a page rather than from its content
func isSessionFailure(err error) bool {
	return errors.Is(err, models.ErrSession) || errors.Is(err, models.ErrNavigationTimeout)
}
