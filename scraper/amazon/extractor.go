package amazon

import (
	"net/url"
	"strings"

	"dealtracker/models"

	"github.com/PuerkitoBio/goquery"
)

// Deal types assigned from the listing template an item came from
const (
	DealTypeDefault   = "deal"
	DealTypeDealOfDay = "deal_of_day"
	DealTypeSearch    = "search"
)

// strategy reads a value from the first node matching selector: its text, or attr when set
type strategy struct {
	selector string
	attr     string
}

var (
	titleStrategies = []strategy{
		{selector: "#productTitle"},
		{selector: ".product-title"},
		{selector: "h1.a-size-large"},
		{selector: `meta[property="og:title"]`, attr: "content"},
	}
	priceStrategies = []strategy{
		{selector: ".a-price-current .a-offscreen"},
		{selector: ".a-price .a-offscreen"},
		{selector: "#priceblock_dealprice"},
		{selector: "#priceblock_ourprice"},
		{selector: "#corePriceDisplay_desktop_feature_div .a-price-whole"},
	}
	originalPriceStrategies = []strategy{
		{selector: ".a-price-was .a-offscreen"},
		{selector: "#priceblock_listprice"},
		{selector: ".a-text-strike .a-offscreen"},
		{selector: ".basisPrice .a-offscreen"},
		{selector: ".a-price.a-text-price .a-offscreen"},
	}
	imageStrategies = []strategy{
		{selector: "#landingImage", attr: "src"},
		{selector: "#imgBlkFront", attr: "src"},
		{selector: ".a-dynamic-image", attr: "src"},
		{selector: `meta[property="og:image"]`, attr: "content"},
	}
	ratingStrategies = []strategy{
		{selector: ".a-icon-alt"},
		{selector: `[data-hook="average-star-rating"] .a-icon-alt`},
		{selector: "#acrPopover", attr: "title"},
	}
	reviewCountStrategies = []strategy{
		{selector: "#acrCustomerReviewText"},
		{selector: `[data-hook="total-review-count"]`},
	}
	availabilityStrategies = []strategy{
		{selector: "#availability span"},
		{selector: ".a-color-success"},
		{selector: ".a-color-state"},
	}
	primeSelectors = []string{
		`[aria-label*="Prime"]`,
		".a-icon-prime",
	}
)

// Per-card strategies shared by the search and deals templates
var (
	cardTitleStrategies = []strategy{
		{selector: "h2 a span"},
		{selector: ".s-title-instructions-style span"},
		{selector: `[data-testid="deal-title"]`},
		{selector: "h2"},
	}
	cardLinkStrategies = []strategy{
		{selector: "h2 a", attr: "href"},
		{selector: "a.a-link-normal", attr: "href"},
		{selector: "a", attr: "href"},
	}
	cardPriceStrategies = []strategy{
		{selector: ".a-price-current .a-offscreen"},
		{selector: `[data-testid="deal-price"]`},
		{selector: ".a-price .a-offscreen"},
	}
	cardOriginalPriceStrategies = []strategy{
		{selector: `[data-testid="list-price"]`},
		{selector: ".a-price.a-text-price .a-offscreen"},
	}
	cardImageStrategies = []strategy{
		{selector: ".s-image", attr: "src"},
		{selector: "img", attr: "src"},
	}
	cardRatingStrategies = []strategy{
		{selector: ".a-icon-alt"},
	}
	cardReviewCountStrategies = []strategy{
		{selector: `[aria-label$="ratings"]`, attr: "aria-label"},
		{selector: ".s-underline-text"},
	}
)

// listingTemplate is one known shape of a results page, tried in order
type listingTemplate struct {
	container string
	dealType  string
}

var listingTemplates = []listingTemplate{
	{container: `[data-component-type="s-search-result"]`, dealType: DealTypeSearch},
	{container: `[data-testid="deal-card"]`, dealType: DealTypeDealOfDay},
	{container: `div[data-asin]:not([data-asin=""])`, dealType: DealTypeDefault},
}

// ExtractProduct reads raw fields from a product detail page
func ExtractProduct(doc *goquery.Document) models.RawExtraction {
	root := doc.Selection
	return models.RawExtraction{
		Title:         firstMatch(root, titleStrategies),
		CurrentPrice:  firstMatch(root, priceStrategies),
		OriginalPrice: firstMatch(root, originalPriceStrategies),
		ImageURL:      firstMatch(root, imageStrategies),
		Rating:        firstMatch(root, ratingStrategies),
		ReviewCount:   firstMatch(root, reviewCountStrategies),
		Availability:  firstMatch(root, availabilityStrategies),
		PrimeEligible: anyMatch(root, primeSelectors),
	}
}

// ExtractListing reads up to max items from a search results or deals page.
// Items without a title or a product link are dropped; relative links are resolved against baseURL.
// The first template that yields an item wins; a template whose cards are all unusable falls through.
func ExtractListing(doc *goquery.Document, baseURL string, max int) []models.RawExtraction {
	if max <= 0 {
		return nil
	}
	base, _ := url.Parse(baseURL)

	var items []models.RawExtraction
	for _, tpl := range listingTemplates {
		nodes := doc.Find(tpl.container)
		if nodes.Length() == 0 {
			continue
		}
		nodes.EachWithBreak(func(_ int, card *goquery.Selection) bool {
			title := firstMatch(card, cardTitleStrategies)
			link := firstMatch(card, cardLinkStrategies)
			if title == nil || link == nil {
				return true
			}
			productURL := resolve(base, *link)
			items = append(items, models.RawExtraction{
				Title:         title,
				CurrentPrice:  firstMatch(card, cardPriceStrategies),
				OriginalPrice: firstMatch(card, cardOriginalPriceStrategies),
				ImageURL:      firstMatch(card, cardImageStrategies),
				Rating:        firstMatch(card, cardRatingStrategies),
				ReviewCount:   firstMatch(card, cardReviewCountStrategies),
				PrimeEligible: anyMatch(card, primeSelectors),
				ProductURL:    &productURL,
				DealType:      tpl.dealType,
			})
			return len(items) < max
		})
		if len(items) > 0 {
			break
		}
	}
	return items
}

// firstMatch returns the first non-empty value across strategies, or nil
func firstMatch(root *goquery.Selection, strategies []strategy) *string {
	for _, s := range strategies {
		node := root.Find(s.selector).First()
		if node.Length() == 0 {
			continue
		}
		var v string
		if s.attr == "" {
			v = node.Text()
		} else {
			v, _ = node.Attr(s.attr)
		}
		v = collapseSpace(v)
		if v != "" {
			return &v
		}
	}
	return nil
}

func anyMatch(root *goquery.Selection, selectors []string) bool {
	for _, sel := range selectors {
		if root.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// DealsURL is the deals index page
func DealsURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/deals"
}

// SearchURL is the search results page for keyword
func SearchURL(baseURL, keyword string) string {
	return strings.TrimRight(baseURL, "/") + "/s?k=" + url.QueryEscape(keyword)
}
