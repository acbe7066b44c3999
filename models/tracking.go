package models

import "time"

// Price history sources
const (
	SourceTracking = "tracking"
	SourceRefresh  = "refresh"
	SourceDeals    = "deals"
)

// TrackedProduct is a product a single owner watches for a price drop
type TrackedProduct struct {
	ID           int64      `db:"id" json:"id"`
	Owner        string     `db:"owner" json:"owner"`
	ASIN         string     `db:"asin" json:"asin"`
	Title        string     `db:"title" json:"title"`
	CurrentPrice *float64   `db:"current_price" json:"current_price"`
	TargetPrice  *float64   `db:"target_price" json:"target_price"`
	ImageURL     *string    `db:"image_url" json:"image_url"`
	ProductURL   string     `db:"product_url" json:"product_url"`
	AffiliateURL string     `db:"affiliate_url" json:"affiliate_url"`
	Active       bool       `db:"is_active" json:"active"`
	AlertSent    bool       `db:"alert_sent" json:"alert_sent"`
	LastChecked  *time.Time `db:"last_checked" json:"last_checked"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// TargetReached reports whether the last observed price is at or below the target
func (p *TrackedProduct) TargetReached() bool {
	return p.TargetPrice != nil && p.CurrentPrice != nil && *p.CurrentPrice <= *p.TargetPrice
}

// TrackedListOptions controls sorting and paging of an owner's tracked products
type TrackedListOptions struct {
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

// PriceHistoryEntry is one append-only price observation
type PriceHistoryEntry struct {
	ID         int64     `db:"id" json:"id"`
	ASIN       string    `db:"asin" json:"asin"`
	Price      float64   `db:"price" json:"price"`
	Source     string    `db:"source" json:"source"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}
