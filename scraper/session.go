package scraper

import (
	"context"

	"dealtracker/models"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher runs one fetch session: open a document context with the given identity, load url,
// pace, hand the document to fn, and close the context on every exit path.
//
// Failures to load are reported as models.ErrNavigationTimeout or models.ErrSession;
// errors returned by fn pass through unchanged.
type Fetcher interface {
	WithSession(ctx context.Context, id models.Identity, url string, fn func(doc *goquery.Document) error) error
}

// FetcherFunc adapts a plain function to Fetcher
type FetcherFunc func(ctx context.Context, id models.Identity, url string, fn func(doc *goquery.Document) error) error

func (f FetcherFunc) WithSession(ctx context.Context, id models.Identity, url string, fn func(doc *goquery.Document) error) error {
	return f(ctx, id, url, fn)
}
