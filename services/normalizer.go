package services

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"dealtracker/models"
	"dealtracker/scraper/amazon"
)

var (
	priceRegex       = regexp.MustCompile(`\d+(?:,\d+)*(?:\.\d+)?`)
	ratingRegex      = regexp.MustCompile(`\d+(?:\.\d+)?`)
	reviewCountRegex = regexp.MustCompile(`\d+(?:,\d+)*`)
	asinRegex        = regexp.MustCompile(`/([A-Z0-9]{10})(?:[/?#]|$)`)
)

const (
	unknownTitle        = "Unknown Product"
	unknownAvailability = "Unknown"
)

// Normalizer turns raw extractions into typed deals. It performs no I/O.
type Normalizer struct {
	baseURL      string
	affiliateTag string
	now          func() time.Time
}

// NewNormalizer creates a Normalizer for the given site and affiliate tag
func NewNormalizer(baseURL, affiliateTag string) *Normalizer {
	return &Normalizer{
		baseURL:      strings.TrimRight(baseURL, "/"),
		affiliateTag: affiliateTag,
		now:          time.Now,
	}
}

// Normalize converts raw into a Deal for sourceURL.
// It fails with models.ErrIdentifierMissing when no identifier is in the URL, and with
// models.ErrExtractionFailed when neither a title nor a price was extracted.
func (n *Normalizer) Normalize(raw models.RawExtraction, sourceURL string) (*models.Deal, error) {
	asin, ok := ExtractASIN(sourceURL)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrIdentifierMissing, sourceURL)
	}

	price := ParsePrice(raw.CurrentPrice)
	if raw.Title == nil && price == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrExtractionFailed, sourceURL)
	}
	original := ParsePrice(raw.OriginalPrice)

	title := unknownTitle
	if raw.Title != nil {
		title = strings.TrimSpace(*raw.Title)
	}
	availability := unknownAvailability
	if raw.Availability != nil {
		availability = strings.TrimSpace(*raw.Availability)
	}
	dealType := raw.DealType
	if dealType == "" {
		dealType = amazon.DealTypeDefault
	}

	return &models.Deal{
		ASIN:               asin,
		Title:              title,
		Price:              price,
		OriginalPrice:      original,
		DiscountPercentage: DiscountPercentage(price, original),
		ImageURL:           raw.ImageURL,
		ProductURL:         sourceURL,
		AffiliateURL:       n.AffiliateURL(sourceURL, asin),
		Rating:             ParseRating(raw.Rating),
		ReviewCount:        ParseReviewCount(raw.ReviewCount),
		Availability:       availability,
		PrimeEligible:      raw.PrimeEligible,
		DealType:           dealType,
		Active:             true,
		FetchedAt:          n.now(),
	}, nil
}

// AffiliateURL sets the affiliate tag on the product URL, or builds base/dp/{asin} when it cannot be parsed
func (n *Normalizer) AffiliateURL(productURL, asin string) string {
	u, err := url.Parse(productURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Sprintf("%s/dp/%s?tag=%s", n.baseURL, asin, url.QueryEscape(n.affiliateTag))
	}
	q := u.Query()
	q.Set("tag", n.affiliateTag)
	u.RawQuery = q.Encode()
	return u.String()
}

// ProductURL is the canonical detail page for asin
func (n *Normalizer) ProductURL(asin string) string {
	return fmt.Sprintf("%s/dp/%s", n.baseURL, asin)
}

// ExtractASIN finds the first 10-character uppercase alphanumeric path segment in rawURL
func ExtractASIN(rawURL string) (string, bool) {
	m := asinRegex.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// ParsePrice reads the first number like "2,999.00" out of a currency string
func ParsePrice(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	match := priceRegex.FindString(*raw)
	if match == "" {
		return nil
	}
	val, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &val
}

// ParseRating extracts the first decimal from strings like "4.3 out of 5 stars"
func ParseRating(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	match := ratingRegex.FindString(*raw)
	if match == "" {
		return nil
	}
	val, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &val
}

// ParseReviewCount extracts the first integer from strings like "1,234 ratings"
func ParseReviewCount(raw *string) *int {
	if raw == nil {
		return nil
	}
	match := reviewCountRegex.FindString(*raw)
	if match == "" {
		return nil
	}
	val, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return nil
	}
	return &val
}

// DiscountPercentage is round((original-price)/original*100) when original > price > 0, else 0
func DiscountPercentage(price, original *float64) int {
	if price == nil || original == nil {
		return 0
	}
	p, o := *price, *original
	if p <= 0 || o <= p {
		return 0
	}
	return int(math.Round((o - p) / o * 100))
}
