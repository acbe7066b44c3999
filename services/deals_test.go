package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealtracker/models"
	"dealtracker/storage"
	"dealtracker/utils"
)

func TestUpsertSameASINTwice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	syncer := NewDealSynchronizer(h.pipeline, h.store, nil, utils.NewNopLogger())
	n := h.pipeline.Normalizer()

	first, err := n.Normalize(models.RawExtraction{Title: strp("First title"), CurrentPrice: strp("₹100")}, productURL("B000000001"))
	if err != nil {
		t.Fatal(err)
	}
	res, err := syncer.Upsert(ctx, first)
	if err != nil || res != Inserted {
		t.Fatalf("first upsert: %v %v", res, err)
	}

	second, err := n.Normalize(models.RawExtraction{Title: strp("Second title"), CurrentPrice: strp("₹90")}, productURL("B000000001"))
	if err != nil {
		t.Fatal(err)
	}
	res, err = syncer.Upsert(ctx, second)
	if err != nil || res != Updated {
		t.Fatalf("second upsert: %v %v", res, err)
	}

	deals, total, err := h.store.ListDeals(ctx, models.DealFilter{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("want exactly one row, got %d", total)
	}
	got := deals[0]
	if got.Title != "Second title" {
		t.Fatalf("want latest title, got %q", got.Title)
	}
	if !got.FetchedAt.After(first.FetchedAt) {
		t.Fatalf("fetched_at %v should be after %v", got.FetchedAt, first.FetchedAt)
	}
}

func TestUpsertFallsBackToUpdateOnLostRace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	deal, err := h.pipeline.Normalizer().Normalize(models.RawExtraction{Title: strp("Racy"), CurrentPrice: strp("₹5")}, productURL("B000000001"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.InsertDeal(ctx, deal); err != nil {
		t.Fatal(err)
	}

	// lookup misses, the insert then hits the existing row
	racy := &raceStore{SQLStore: h.store}
	s := NewDealSynchronizer(h.pipeline, racy, nil, utils.NewNopLogger())
	deal.Title = "Racy v2"
	res, err := s.Upsert(ctx, deal)
	if err != nil || res != Updated {
		t.Fatalf("want Updated, got %v %v", res, err)
	}
	got, _ := h.store.FindDealByASIN(ctx, "B000000001")
	if got.Title != "Racy v2" {
		t.Fatalf("update not applied: %q", got.Title)
	}
}

// raceStore hides existing rows from lookups
type raceStore struct {
	*storage.SQLStore
}

func (r *raceStore) FindDealByASIN(context.Context, string) (*models.Deal, error) {
	return nil, nil
}

func TestDealsRefresh(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.site.set(testBase+"/deals", dealsIndex(
		"/dp/B000000001",
		"/dp/B000000002",
		"/gp/help/customer",
		"/dp/B000000001?ref=dup",
		"/dp/B000000003",
	))
	h.site.set(productURL("B000000001"), productPage("Headphones", "₹2,999.00", "₹4,499.00"))
	h.site.set(productURL("B000000002"), productPage("Speaker", "₹1,000", ""))
	h.site.failWith(productURL("B000000003"), models.ErrNavigationTimeout)

	raw := &memRecorder{}
	s := NewDealSynchronizer(h.pipeline, h.store, raw, utils.NewNopLogger())
	sum, err := s.Refresh(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Kind != models.RunRefreshDeals || sum.RunID == "" {
		t.Fatalf("unexpected summary header %+v", sum)
	}
	if sum.Scraped != 5 || sum.Inserted != 2 || sum.Updated != 0 || sum.Failed != 2 {
		t.Fatalf("unexpected counts %+v", sum)
	}
	if !sum.CompletedAt.After(sum.StartedAt) {
		t.Fatalf("completed %v not after started %v", sum.CompletedAt, sum.StartedAt)
	}
	if h.site.visitCount(productURL("B000000001")) != 1 {
		t.Fatal("duplicate identifier fetched twice in one run")
	}
	if len(raw.rows) != 5 || raw.source != testBase+"/deals" {
		t.Fatalf("raw dump: %d rows from %q", len(raw.rows), raw.source)
	}

	d, err := h.store.FindDealByASIN(ctx, "B000000001")
	if err != nil || d == nil {
		t.Fatalf("deal missing: %v", err)
	}
	if d.DiscountPercentage != 33 || d.DealType != "deal_of_day" || d.Title != "Headphones" {
		t.Fatalf("unexpected deal %+v", d)
	}

	hist, err := h.store.PriceHistory(ctx, "B000000002", time.Time{})
	if err != nil || len(hist) != 1 || hist[0].Source != models.SourceDeals {
		t.Fatalf("history: %+v %v", hist, err)
	}

	sum, err = s.Refresh(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Inserted != 0 || sum.Updated != 2 || sum.Failed != 2 {
		t.Fatalf("second run counts %+v", sum)
	}
}

func TestDealsRefreshIndexFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.site.failWith(testBase+"/deals", models.ErrSession)

	s := NewDealSynchronizer(h.pipeline, h.store, nil, utils.NewNopLogger())
	sum, err := s.Refresh(context.Background(), 50)
	if err != nil {
		t.Fatalf("index failure should yield a summary, got %v", err)
	}
	if sum.Scraped != 0 || sum.Inserted != 0 {
		t.Fatalf("unexpected counts %+v", sum)
	}
}

func TestDealsRefreshStopsBetweenItemsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.site.set(testBase+"/deals", dealsIndex("/dp/B000000001", "/dp/B000000002", "/dp/B000000003"))
	for _, asin := range []string{"B000000001", "B000000002", "B000000003"} {
		h.site.set(productURL(asin), productPage("Item "+asin, "₹10", ""))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.site.onFetch = func(url string) {
		if url == productURL("B000000001") {
			cancel()
		}
	}

	s := NewDealSynchronizer(h.pipeline, h.store, nil, utils.NewNopLogger())
	sum, err := s.Refresh(ctx, 50)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if sum == nil || sum.Inserted != 1 {
		t.Fatalf("in-flight item should complete, got %+v", sum)
	}
	if h.site.visitCount(productURL("B000000002")) != 0 {
		t.Fatal("no fetch should start after cancellation")
	}
}

type memRecorder struct {
	source string
	rows   []models.RawExtraction
}

func (m *memRecorder) WriteRawExtractions(_ string, sourceURL string, raws []models.RawExtraction, _ time.Time) error {
	m.source = sourceURL
	m.rows = append(m.rows, raws...)
	return nil
}
