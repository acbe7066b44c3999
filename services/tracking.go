package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dealtracker/models"
	"dealtracker/scraper"
	"dealtracker/scraper/amazon"
	"dealtracker/storage"
	"dealtracker/utils"
)

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 365
)

// TrackRequest asks to start tracking a product by URL or by the first search hit for Keyword
type TrackRequest struct {
	Owner       string
	ProductURL  string
	Keyword     string
	TargetPrice *float64
}

// TrackUpdate edits an owner's tracked product; nil fields are left as they are
type TrackUpdate struct {
	TargetPrice *float64
	ClearTarget bool
	Active      *bool
}

// TrackingEngine owns the tracked product lifecycle: create, refresh with alerting, edit, remove
type TrackingEngine struct {
	pipeline *Pipeline
	store    storage.TrackingStore
	notifier Notifier
	logger   *utils.Logger
}

// NewTrackingEngine creates a TrackingEngine; notifier may be nil
func NewTrackingEngine(p *Pipeline, store storage.TrackingStore, notifier Notifier, logger *utils.Logger) *TrackingEngine {
	return &TrackingEngine{pipeline: p, store: store, notifier: notifier, logger: logger}
}

// Track fetches the product once and starts tracking it for req.Owner.
// Session errors are returned as is; a page without an ASIN or price is models.ErrExtractionFailed.
// Once the row is stored the product is returned, even if its first price history entry could not be written.
func (e *TrackingEngine) Track(ctx context.Context, req TrackRequest) (*models.TrackedProduct, error) {
	req.ProductURL = strings.TrimSpace(req.ProductURL)
	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.Owner == "" {
		return nil, fmt.Errorf("owner is required: %w", models.ErrInvalidInput)
	}
	if req.ProductURL == "" && req.Keyword == "" {
		return nil, fmt.Errorf("product url or keyword is required: %w", models.ErrInvalidInput)
	}
	if req.TargetPrice != nil && *req.TargetPrice <= 0 {
		return nil, fmt.Errorf("target price must be positive: %w", models.ErrInvalidInput)
	}

	p := e.pipeline
	rot := p.rotator(ctx)

	productURL := req.ProductURL
	if productURL == "" {
		hits, err := p.fetchListing(ctx, rot, amazon.SearchURL(p.cfg.BaseURL, req.Keyword), 1)
		if err != nil {
			return nil, err
		}
		if len(hits) == 0 {
			return nil, fmt.Errorf("no products for keyword %q: %w", req.Keyword, models.ErrNotFound)
		}
		productURL = *hits[0].ProductURL
	}

	asin, ok := ExtractASIN(productURL)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", models.ErrExtractionFailed, models.ErrIdentifierMissing, productURL)
	}
	if existing, err := e.store.FindTrackedProduct(ctx, req.Owner, asin); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%s for %s: %w", asin, req.Owner, models.ErrDuplicateTracking)
	}

	raw, err := p.fetchProduct(ctx, rot, productURL)
	if err != nil {
		return nil, err
	}
	deal, err := p.normalizer.Normalize(raw, productURL)
	if err != nil {
		return nil, err
	}
	if deal.Price == nil {
		return nil, fmt.Errorf("%w: no price on %s", models.ErrExtractionFailed, productURL)
	}

	now := p.now()
	product := &models.TrackedProduct{
		Owner:        req.Owner,
		ASIN:         asin,
		Title:        deal.Title,
		CurrentPrice: deal.Price,
		TargetPrice:  req.TargetPrice,
		ImageURL:     deal.ImageURL,
		ProductURL:   productURL,
		AffiliateURL: deal.AffiliateURL,
		Active:       true,
		LastChecked:  &now,
	}
	if err := e.store.InsertTrackedProduct(ctx, product); err != nil {
		return nil, err
	}
	// The row exists from here on; a missing first history entry must not turn into a duplicate on retry
	if err := e.store.AppendPriceHistory(ctx, asin, *deal.Price, models.SourceTracking, now); err != nil {
		e.logger.Warn("Price history for %s not recorded: %v", asin, err)
	}

	e.logger.Info("Tracking %s for %s at %.2f", asin, req.Owner, *deal.Price)
	return product, nil
}

// Refresh re-fetches the owner's active tracked products, or only the one with id when given.
// Items fail independently; a single-item scope that matches nothing is reported as an error.
func (e *TrackingEngine) Refresh(ctx context.Context, owner string, id *int64) (*models.RunSummary, error) {
	p := e.pipeline
	products, err := e.store.ListActiveTrackedProducts(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if id != nil && len(products) == 0 {
		return nil, e.scopeError(ctx, owner, *id)
	}

	summary := p.newSummary(models.RunRefreshTracked)
	summary.Scraped = len(products)
	log := e.logger.With("run", summary.RunID, "owner", owner)
	if len(products) == 0 {
		log.Info("No active tracked products")
		return p.finish(summary), nil
	}

	rot := p.rotator(ctx)
	for i := range products {
		if err := ctx.Err(); err != nil {
			log.Warn("Tracking refresh cancelled after %d/%d items", i, len(products))
			return p.finish(summary), err
		}

		product := products[i]
		alerted, err := e.refreshOne(context.WithoutCancel(ctx), rot, &product)
		if err != nil {
			if isSessionFailure(err) {
				log.Warn("Refresh of %s (%s) failed: %v", product.ASIN, product.ProductURL, err)
			} else {
				log.Error("Refresh of %s (%s) failed: %v", product.ASIN, product.ProductURL, err)
			}
			summary.Failed++
			continue
		}
		summary.UpdatedProducts++
		if alerted {
			summary.AlertsTriggered++
		}
	}

	p.finish(summary)
	log.Info("Tracking refresh done: updated=%d alerts=%d failed=%d",
		summary.UpdatedProducts, summary.AlertsTriggered, summary.Failed)
	return summary, nil
}

// RefreshAll runs Refresh for every owner with active tracked products. An owner whose run
// fails is logged and skipped.
func (e *TrackingEngine) RefreshAll(ctx context.Context) ([]*models.RunSummary, error) {
	owners, err := e.store.ListTrackingOwners(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.RunSummary
	for _, owner := range owners {
		sum, err := e.Refresh(ctx, owner, nil)
		if sum != nil {
			out = append(out, sum)
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if err != nil {
			e.logger.Error("Tracking refresh for %s failed: %v", owner, err)
		}
	}
	return out, nil
}

// refreshOne records a fresh price and latches the alert the first time the target is met
func (e *TrackingEngine) refreshOne(ctx context.Context, rot *scraper.Rotator, product *models.TrackedProduct) (bool, error) {
	p := e.pipeline
	raw, err := p.fetchProduct(ctx, rot, product.ProductURL)
	if err != nil {
		return false, err
	}
	price := ParsePrice(raw.CurrentPrice)
	if price == nil {
		return false, fmt.Errorf("%w: no price", models.ErrExtractionFailed)
	}

	now := p.now()
	if err := e.store.UpdateTrackedPrice(ctx, product.ID, *price, now); err != nil {
		return false, err
	}
	if err := e.store.AppendPriceHistory(ctx, product.ASIN, *price, models.SourceRefresh, now); err != nil {
		return false, err
	}
	product.CurrentPrice = price
	product.LastChecked = &now

	if product.AlertSent || !product.TargetReached() {
		return false, nil
	}
	flipped, err := e.store.MarkAlertSent(ctx, product.ID)
	if err != nil {
		return false, err
	}
	if !flipped {
		return false, nil
	}
	product.AlertSent = true

	if e.notifier != nil {
		if err := e.notifier.NotifyTargetReached(ctx, *product); err != nil {
			e.logger.Warn("Alert for %s latched but not delivered: %v", product.ASIN, err)
		}
	}
	return true, nil
}

// scopeError tells a missing id from someone else's
func (e *TrackingEngine) scopeError(ctx context.Context, owner string, id int64) error {
	found, err := e.store.GetTrackedProduct(ctx, id)
	if err != nil {
		return err
	}
	if found.Owner != owner {
		return fmt.Errorf("tracked product %d: %w", id, models.ErrUnauthorized)
	}
	return fmt.Errorf("tracked product %d is inactive: %w", id, models.ErrNotFound)
}

// Remove deletes the owner's tracked product
func (e *TrackingEngine) Remove(ctx context.Context, owner string, id int64) error {
	deleted, err := e.store.DeleteTrackedProduct(ctx, id, owner)
	if err != nil {
		return err
	}
	if deleted {
		e.logger.Info("Stopped tracking %d for %s", id, owner)
		return nil
	}
	found, err := e.store.GetTrackedProduct(ctx, id)
	if err != nil {
		return err
	}
	if found.Owner != owner {
		return fmt.Errorf("tracked product %d: %w", id, models.ErrUnauthorized)
	}
	return fmt.Errorf("tracked product %d: %w", id, models.ErrNotFound)
}

// Update changes the target price or active flag. Setting a new target does not clear a sent alert.
func (e *TrackingEngine) Update(ctx context.Context, owner string, id int64, u TrackUpdate) (*models.TrackedProduct, error) {
	if u.TargetPrice == nil && !u.ClearTarget && u.Active == nil {
		return nil, fmt.Errorf("no fields to update: %w", models.ErrInvalidInput)
	}
	if u.TargetPrice != nil && *u.TargetPrice <= 0 {
		return nil, fmt.Errorf("target price must be positive: %w", models.ErrInvalidInput)
	}
	return e.store.UpdateTrackedSettings(ctx, id, owner, storage.TrackedSettings{
		TargetPrice: u.TargetPrice,
		ClearTarget: u.ClearTarget,
		Active:      u.Active,
	})
}

// List returns a page of the owner's tracked products and the owner's total
func (e *TrackingEngine) List(ctx context.Context, owner string, opts models.TrackedListOptions) ([]models.TrackedProduct, int, error) {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		return nil, 0, fmt.Errorf("limit %d above 100: %w", opts.Limit, models.ErrInvalidInput)
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return e.store.ListTrackedProducts(ctx, owner, opts)
}

// PriceHistory returns observations of asin from the last days days, oldest first
func (e *TrackingEngine) PriceHistory(ctx context.Context, asin string, days int) ([]models.PriceHistoryEntry, error) {
	if asin == "" {
		return nil, fmt.Errorf("asin is required: %w", models.ErrInvalidInput)
	}
	if days <= 0 {
		days = defaultHistoryDays
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}
	since := e.pipeline.now().Add(-time.Duration(days) * 24 * time.Hour)
	return e.store.PriceHistory(ctx, asin, since)
}
