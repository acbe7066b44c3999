package storage

import (
	"context"
	"time"

	"dealtracker/models"
)

// DealStore is the deal cache side of the persistent store. Calls are atomic per row.
type DealStore interface {
	// FindDealByASIN returns nil, nil when no row exists
	FindDealByASIN(ctx context.Context, asin string) (*models.Deal, error)
	// InsertDeal reports false when a row for the identifier appeared concurrently
	InsertDeal(ctx context.Context, deal *models.Deal) (bool, error)
	UpdateDeal(ctx context.Context, asin string, deal *models.Deal) error
	AppendPriceHistory(ctx context.Context, asin string, price float64, source string, at time.Time) error
}

// DealQueries reads the deal cache for consumers of the pipeline
type DealQueries interface {
	GetDeal(ctx context.Context, id int64) (*models.Deal, error)
	ListDeals(ctx context.Context, filter models.DealFilter) ([]models.Deal, int, error)
	DealStats(ctx context.Context) (*models.DealStats, error)
	Categories(ctx context.Context, limit int) ([]models.CategoryCount, error)
}

// TrackedSettings is an owner's edit of a tracked product
type TrackedSettings struct {
	TargetPrice *float64
	ClearTarget bool
	Active      *bool
}

// TrackingStore is the tracked-product side of the persistent store
type TrackingStore interface {
	// FindTrackedProduct returns the active row for (owner, asin), or nil, nil
	FindTrackedProduct(ctx context.Context, owner, asin string) (*models.TrackedProduct, error)
	// GetTrackedProduct returns models.ErrNotFound when the id is unknown
	GetTrackedProduct(ctx context.Context, id int64) (*models.TrackedProduct, error)
	// InsertTrackedProduct sets p.ID; models.ErrDuplicateTracking when an active row exists
	InsertTrackedProduct(ctx context.Context, p *models.TrackedProduct) error
	UpdateTrackedPrice(ctx context.Context, id int64, price float64, checkedAt time.Time) error
	// MarkAlertSent flips alert_sent false→true; it reports whether this call flipped it
	MarkAlertSent(ctx context.Context, id int64) (bool, error)
	UpdateTrackedSettings(ctx context.Context, id int64, owner string, s TrackedSettings) (*models.TrackedProduct, error)
	// DeleteTrackedProduct reports false when no row matched (id, owner)
	DeleteTrackedProduct(ctx context.Context, id int64, owner string) (bool, error)
	// ListActiveTrackedProducts returns an owner's active rows, optionally a single one
	ListActiveTrackedProducts(ctx context.Context, owner string, id *int64) ([]models.TrackedProduct, error)
	ListTrackedProducts(ctx context.Context, owner string, opts models.TrackedListOptions) ([]models.TrackedProduct, int, error)
	// ListTrackingOwners returns every owner with at least one active row
	ListTrackingOwners(ctx context.Context) ([]string, error)
	AppendPriceHistory(ctx context.Context, asin string, price float64, source string, at time.Time) error
	PriceHistory(ctx context.Context, asin string, since time.Time) ([]models.PriceHistoryEntry, error)
}
