package models

import "time"

// RawExtraction holds unparsed field values read from a product page or a listing card.
// A nil field means every selector strategy for it came back empty.
type RawExtraction struct {
	Title         *string
	CurrentPrice  *string // e.g. "₹2,999.00"
	OriginalPrice *string
	ImageURL      *string
	Rating        *string // e.g. "4.3 out of 5 stars"
	ReviewCount   *string // e.g. "1,234 ratings"
	Availability  *string
	PrimeEligible bool

	// Set by listing extraction only
	ProductURL *string
	DealType   string
}

// Deal is a normalized snapshot of a product kept in the shared deal cache
type Deal struct {
	ID                 int64     `db:"id" json:"id"`
	ASIN               string    `db:"asin" json:"asin"`
	Title              string    `db:"title" json:"title"`
	Price              *float64  `db:"price" json:"price"`
	OriginalPrice      *float64  `db:"original_price" json:"original_price"`
	DiscountPercentage int       `db:"discount_percentage" json:"discount_percentage"`
	ImageURL           *string   `db:"image_url" json:"image_url"`
	ProductURL         string    `db:"product_url" json:"product_url"`
	AffiliateURL       string    `db:"affiliate_url" json:"affiliate_url"`
	Category           *string   `db:"category" json:"category"`
	Rating             *float64  `db:"rating" json:"rating"`
	ReviewCount        *int      `db:"review_count" json:"review_count"`
	Availability       string    `db:"availability" json:"availability"`
	PrimeEligible      bool      `db:"prime_eligible" json:"prime_eligible"`
	DealType           string    `db:"deal_type" json:"deal_type"`
	Active             bool      `db:"is_active" json:"active"`
	FetchedAt          time.Time `db:"fetched_at" json:"fetched_at"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// DealFilter narrows a deal cache listing
type DealFilter struct {
	Category    string
	MinDiscount int
	MaxPrice    float64
	SortBy      string
	SortOrder   string
	Limit       int
	Offset      int
}

// DealStats summarizes the active deal cache
type DealStats struct {
	TotalDeals        int        `db:"total_deals" json:"total_deals"`
	HighDiscountDeals int        `db:"high_discount_deals" json:"high_discount_deals"`
	PrimeDeals        int        `db:"prime_deals" json:"prime_deals"`
	AverageDiscount   float64    `db:"avg_discount" json:"average_discount"`
	LastUpdated       *time.Time `db:"last_updated" json:"last_updated"`
}

// CategoryCount is one row of the category breakdown
type CategoryCount struct {
	Category  string `db:"category" json:"category"`
	DealCount int    `db:"deal_count" json:"deal_count"`
}
