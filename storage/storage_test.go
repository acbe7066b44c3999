package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dealtracker/models"
	"dealtracker/utils"
)

func memStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(DriverSQLite, ":memory:", utils.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	if err := s.CreateSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func f64(v float64) *float64 { return &v }
func sp(v string) *string    { return &v }

func newDeal(asin string, price float64, discount int, at time.Time) *models.Deal {
	return &models.Deal{
		ASIN:               asin,
		Title:              "Deal " + asin,
		Price:              f64(price),
		OriginalPrice:      f64(price * 2),
		DiscountPercentage: discount,
		ProductURL:         "https://www.amazon.in/dp/" + asin,
		AffiliateURL:       "https://www.amazon.in/dp/" + asin + "?tag=t-21",
		Availability:       "In stock",
		DealType:           "deal",
		Active:             true,
		FetchedAt:          at,
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "x", utils.NewNopLogger()); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestDealInsertFindUpdate(t *testing.T) {
	ctx := context.Background()
	s := memStore(t)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	found, err := s.FindDealByASIN(ctx, "B000000001")
	if err != nil || found != nil {
		t.Fatalf("want nil, nil for missing deal, got %v, %v", found, err)
	}

	d := newDeal("B000000001", 100, 50, t0)
	d.Category = sp("Electronics")
	ok, err := s.InsertDeal(ctx, d)
	if err != nil || !ok {
		t.Fatalf("insert: ok=%v err=%v", ok, err)
	}
	if d.ID == 0 {
		t.Fatal("insert should set id")
	}

	ok, err = s.InsertDeal(ctx, newDeal("B000000001", 1, 1, t0))
	if err != nil || ok {
		t.Fatalf("second insert should be a no-op, ok=%v err=%v", ok, err)
	}

	upd := newDeal("B000000001", 80, 60, t0.Add(time.Hour))
	upd.Title = "Renamed"
	if err := s.UpdateDeal(ctx, "B000000001", upd); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindDealByASIN(ctx, "B000000001")
	if err != nil || got == nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != d.ID || got.Title != "Renamed" || *got.Price != 80 || got.DiscountPercentage != 60 {
		t.Fatalf("unexpected row after update: %+v", got)
	}
	if !got.FetchedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("fetched_at not advanced: %v", got.FetchedAt)
	}
	if got.Category == nil || *got.Category != "Electronics" {
		t.Fatalf("category should survive refresh, got %v", got.Category)
	}

	if err := s.UpdateDeal(ctx, "B00000000X", upd); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown asin, got %v", err)
	}
}

func TestListDealsFilterSortPage(t *testing.T) {
	ctx := context.Background()
	s := memStore(t)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seed := []struct {
		asin     string
		price    float64
		discount int
		cat      string
	}{
		{"B000000001", 100, 10, "Electronics"},
		{"B000000002", 200, 55, "Electronics"},
		{"B000000003", 300, 70, "Home"},
		{"B000000004", 50, 65, ""},
	}
	for i, sd := range seed {
		d := newDeal(sd.asin, sd.price, sd.discount, t0.Add(time.Duration(i)*time.Minute))
		if sd.cat != "" {
			d.Category = sp(sd.cat)
		}
		if sd.asin == "B000000004" {
			d.PrimeEligible = true
		}
		if _, err := s.InsertDeal(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	deals, total, err := s.ListDeals(ctx, models.DealFilter{MinDiscount: 50, SortBy: "price", SortOrder: "asc", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(deals) != 2 {
		t.Fatalf("want 2 of 3, got %d of %d", len(deals), total)
	}
	if deals[0].ASIN != "B000000004" || deals[1].ASIN != "B000000002" {
		t.Fatalf("wrong order: %s, %s", deals[0].ASIN, deals[1].ASIN)
	}

	deals, total, err = s.ListDeals(ctx, models.DealFilter{Category: "electr", MaxPrice: 150, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || deals[0].ASIN != "B000000001" {
		t.Fatalf("category/price filter: total=%d %+v", total, deals)
	}

	// unknown sort column falls back to fetched_at desc
	deals, _, err = s.ListDeals(ctx, models.DealFilter{SortBy: "title; DROP TABLE deals_cache", Limit: 10, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(deals) != 3 || deals[0].ASIN != "B000000003" {
		t.Fatalf("fallback sort with offset: %+v", deals)
	}

	st, err := s.DealStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalDeals != 4 || st.HighDiscountDeals != 3 || st.PrimeDeals != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.AverageDiscount != 50 {
		t.Fatalf("want avg 50, got %v", st.AverageDiscount)
	}
	if st.LastUpdated == nil || !st.LastUpdated.Equal(t0.Add(3*time.Minute)) {
		t.Fatalf("unexpected last updated %v", st.LastUpdated)
	}

	cats, err := s.Categories(ctx, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 2 || cats[0].Category != "Electronics" || cats[0].DealCount != 2 {
		t.Fatalf("unexpected categories %+v", cats)
	}
}

func TestDealStatsEmpty(t *testing.T) {
	st, err := memStore(t).DealStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalDeals != 0 || st.LastUpdated != nil {
		t.Fatalf("unexpected empty stats %+v", st)
	}
}

func newTracked(owner, asin string) *models.TrackedProduct {
	return &models.TrackedProduct{
		Owner:        owner,
		ASIN:         asin,
		Title:        "Tracked " + asin,
		CurrentPrice: f64(500),
		TargetPrice:  f64(400),
		ProductURL:   "https://www.amazon.in/dp/" + asin,
		AffiliateURL: "https://www.amazon.in/dp/" + asin + "?tag=t-21",
		Active:       true,
	}
}

func TestTrackedProductUniqueness(t *testing.T) {
	ctx := context.Background()
	s := memStore(t)

	p := newTracked("alice", "B000000001")
	if err := s.InsertTrackedProduct(ctx, p); err != nil {
		t.Fatal(err)
	}
	if p.ID == 0 {
		t.Fatal("insert should set id")
	}

	if err := s.InsertTrackedProduct(ctx, newTracked("alice", "B000000001")); !errors.Is(err, models.ErrDuplicateTracking) {
		t.Fatalf("want ErrDuplicateTracking, got %v", err)
	}
	if err := s.InsertTrackedProduct(ctx, newTracked("bob", "B000000001")); err != nil {
		t.Fatalf("other owner should be allowed: %v", err)
	}

	// an inactive row does not block tracking again
	off := false
	if _, err := s.UpdateTrackedSettings(ctx, p.ID, "alice", TrackedSettings{Active: &off}); err != nil {
		t.Fatal(err)
	}
	again := newTracked("alice", "B000000001")
	if err := s.InsertTrackedProduct(ctx, again); err != nil {
		t.Fatalf("re-track after deactivation: %v", err)
	}

	on := true
	if _, err := s.UpdateTrackedSettings(ctx, p.ID, "alice", TrackedSettings{Active: &on}); !errors.Is(err, models.ErrDuplicateTracking) {
		t.Fatalf("reactivating a duplicate: want ErrDuplicateTracking, got %v", err)
	}

	found, err := s.FindTrackedProduct(ctx, "alice", "B000000001")
	if err != nil || found == nil || found.ID != again.ID {
		t.Fatalf("find active: %+v %v", found, err)
	}
}

func TestTrackedSettingsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := memStore(t)
	p := newTracked("alice", "B000000001")
	if err := s.InsertTrackedProduct(ctx, p); err != nil {
		t.Fatal(err)
	}

	if _, err := s.UpdateTrackedSettings(ctx, p.ID, "bob", TrackedSettings{TargetPrice: f64(1)}); !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if _, err := s.UpdateTrackedSettings(ctx, 999, "alice", TrackedSettings{}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	got, err := s.UpdateTrackedSettings(ctx, p.ID, "alice", TrackedSettings{TargetPrice: f64(350)})
	if err != nil {
		t.Fatal(err)
	}
	if got.TargetPrice == nil || *got.TargetPrice != 350 {
		t.Fatalf("target not updated: %v", got.TargetPrice)
	}
	got, err = s.UpdateTrackedSettings(ctx, p.ID, "alice", TrackedSettings{ClearTarget: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.TargetPrice != nil {
		t.Fatalf("target should be cleared, got %v", *got.TargetPrice)
	}

	ok, err := s.DeleteTrackedProduct(ctx, p.ID, "bob")
	if err != nil || ok {
		t.Fatalf("delete by other owner: ok=%v err=%v", ok, err)
	}
	ok, err = s.DeleteTrackedProduct(ctx, p.ID, "alice")
	if err != nil || !ok {
		t.Fatalf("delete by owner: ok=%v err=%v", ok, err)
	}
	if _, err := s.GetTrackedProduct(ctx, p.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
}

func TestMarkAlertSentOnce(t *testing.T) {
	ctx := context.Background()
	s := memStore(t)
	p := newTracked("alice", "B000000001")
	if err := s.InsertTrackedProduct(ctx, p); err != nil {
		t.Fatal(err)
	}

	first, err := s.MarkAlertSent(ctx, p.ID)
	if err != nil || !first {
		t.Fatalf("first latch: %v %v", first, err)
	}
	second, err := s.MarkAlertSent(ctx, p.ID)
	if err != nil || second {
		t.Fatalf("second latch should not flip: %v %v", second, err)
	}

	checked := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if err := s.UpdateTrackedPrice(ctx, p.ID, 390, checked); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetTrackedProduct(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.AlertSent || *got.CurrentPrice != 390 || got.LastChecked == nil || !got.LastChecked.Equal(checked) {
		t.Fatalf("unexpected row %+v", got)
	}
}

func TestListTrackedProducts(t *testing.T) {
	ctx := context.Background()
	s := memStore(t)
	for _, asin := range []string{"B000000001", "B000000002", "B000000003"} {
		if err := s.InsertTrackedProduct(ctx, newTracked("alice", asin)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.InsertTrackedProduct(ctx, newTracked("bob", "B000000009")); err != nil {
		t.Fatal(err)
	}

	list, total, err := s.ListTrackedProducts(ctx, "alice", models.TrackedListOptions{SortBy: "title", SortOrder: "asc", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(list) != 2 || list[0].ASIN != "B000000001" {
		t.Fatalf("unexpected page total=%d %+v", total, list)
	}

	active, err := s.ListActiveTrackedProducts(ctx, "alice", nil)
	if err != nil || len(active) != 3 {
		t.Fatalf("active: %d %v", len(active), err)
	}
	id := list[1].ID
	one, err := s.ListActiveTrackedProducts(ctx, "alice", &id)
	if err != nil || len(one) != 1 || one[0].ID != id {
		t.Fatalf("scoped: %+v %v", one, err)
	}
	none, err := s.ListActiveTrackedProducts(ctx, "bob", &id)
	if err != nil || len(none) != 0 {
		t.Fatalf("other owner's id should not match: %+v %v", none, err)
	}
}

func TestPriceHistorySince(t *testing.T) {
	ctx := context.Background()
	s := memStore(t)
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, price := range []float64{500, 480, 450} {
		if err := s.AppendPriceHistory(ctx, "B000000001", price, models.SourceRefresh, t0.AddDate(0, 0, i*10)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AppendPriceHistory(ctx, "B000000002", 1, models.SourceTracking, t0); err != nil {
		t.Fatal(err)
	}

	hist, err := s.PriceHistory(ctx, "B000000001", t0.AddDate(0, 0, 5))
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].Price != 480 || hist[1].Price != 450 {
		t.Fatalf("unexpected history %+v", hist)
	}
	if hist[0].Source != models.SourceRefresh {
		t.Fatalf("unexpected source %q", hist[0].Source)
	}
}

func TestCSVWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "raw.csv")
	w := NewCSVWriter(path, utils.NewNopLogger())
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	raws := []models.RawExtraction{
		{Title: sp("Headphones"), CurrentPrice: sp("₹1,999"), DealType: "search", PrimeEligible: true},
		{Title: nil},
	}
	if err := w.WriteRawExtractions("run-1", "https://x/s?k=a", raws, at); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRawExtractions("run-2", "https://x/deals", raws[:1], at); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("want header + 3 rows, got %d", len(rows))
	}
	if rows[1][4] != "Headphones" || rows[1][5] != "₹1,999" || rows[1][10] != "true" {
		t.Fatalf("unexpected row %q", rows[1])
	}
	if rows[3][0] != "run-2" {
		t.Fatalf("second write should append, got %q", rows[3])
	}
}
