package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dealtracker/config"
	"dealtracker/models"
	"dealtracker/scraper"
	"dealtracker/services"
	"dealtracker/storage"
	"dealtracker/utils"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofiber/fiber/v2"
)

const base = "https://shop.test"

func page(title, price string) string {
	return fmt.Sprintf(`<html><body><span id="productTitle">%s</span>`+
		`<div class="a-price-current"><span class="a-offscreen">%s</span></div></body></html>`, title, price)
}

func newTestApp(t *testing.T, pages map[string]string) (*fiber.App, *storage.SQLStore) {
	t.Helper()
	logger := utils.NewNopLogger()
	store, err := storage.Open(storage.DriverSQLite, ":memory:", logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)
	if err := store.CreateSchema(context.Background()); err != nil {
		t.Fatal(err)
	}

	fetcher := scraper.FetcherFunc(func(_ context.Context, _ models.Identity, url string, fn func(*goquery.Document) error) error {
		html, ok := pages[url]
		if !ok {
			return fmt.Errorf("%w: no page %s", models.ErrSession, url)
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return err
		}
		return fn(doc)
	})
	cfg := config.PipelineConfig{
		BaseURL:           base,
		AffiliateTag:      "tag-21",
		UserAgents:        []string{"ua"},
		ProxyPoolSize:     50,
		NavigationTimeout: time.Second,
	}
	p := services.NewPipeline(cfg, fetcher, nil, nil, logger)
	h := &Handler{
		Deals:    services.NewDealSynchronizer(p, store, nil, logger),
		Insights: services.NewInsightService(store, logger),
		Tracking: services.NewTrackingEngine(p, store, nil, logger),
		MaxDeals: 10,
		Logger:   logger,
	}
	return NewApp(h, logger), store
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, app *fiber.App, method, path, user, body string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("%s %s: bad json %q", method, path, raw)
	}
	return resp.StatusCode, env
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("x: %w", models.ErrUnauthorized), http.StatusForbidden},
		{models.ErrDuplicateTracking, http.StatusConflict},
		{fmt.Errorf("%w: %w", models.ErrExtractionFailed, models.ErrIdentifierMissing), http.StatusUnprocessableEntity},
		{models.ErrIdentifierMissing, http.StatusBadRequest},
		{models.ErrInvalidInput, http.StatusBadRequest},
		{models.ErrNavigationTimeout, http.StatusGatewayTimeout},
		{models.ErrSession, http.StatusBadGateway},
		{fiber.ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestTrackingLifecycle(t *testing.T) {
	pages := map[string]string{
		base + "/dp/B000000001": page("Kettle", "₹1,499"),
	}
	app, _ := newTestApp(t, pages)

	code, _ := do(t, app, "POST", "/api/tracking", "", `{"product_url":"https://shop.test/dp/B000000001"}`)
	if code != http.StatusUnauthorized {
		t.Fatalf("no user: want 401, got %d", code)
	}

	code, env := do(t, app, "POST", "/api/tracking", "alice", `{"product_url":"https://shop.test/dp/B000000001","target_price":1200}`)
	if code != http.StatusCreated || !env.Success {
		t.Fatalf("track: %d %+v", code, env)
	}
	var p models.TrackedProduct
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatal(err)
	}

	code, _ = do(t, app, "POST", "/api/tracking", "alice", `{"product_url":"https://shop.test/dp/B000000001"}`)
	if code != http.StatusConflict {
		t.Fatalf("duplicate: want 409, got %d", code)
	}
	code, _ = do(t, app, "POST", "/api/tracking", "alice", `{"product_url":"https://shop.test/gp/help"}`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("no identifier: want 422, got %d", code)
	}
	code, _ = do(t, app, "POST", "/api/tracking", "alice", `{"product_url":"https://shop.test/dp/B000000009"}`)
	if code != http.StatusBadGateway {
		t.Fatalf("session failure: want 502, got %d", code)
	}

	pages[base+"/dp/B000000001"] = page("Kettle", "₹1,100")
	code, env = do(t, app, "POST", fmt.Sprintf("/api/tracking/%d/refresh", p.ID), "alice", "")
	if code != http.StatusOK {
		t.Fatalf("refresh: %d %s", code, env.Message)
	}
	var sum models.RunSummary
	if err := json.Unmarshal(env.Data, &sum); err != nil {
		t.Fatal(err)
	}
	if sum.UpdatedProducts != 1 || sum.AlertsTriggered != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	code, _ = do(t, app, "POST", fmt.Sprintf("/api/tracking/%d/refresh", p.ID), "bob", "")
	if code != http.StatusForbidden {
		t.Fatalf("other owner refresh: want 403, got %d", code)
	}

	code, env = do(t, app, "GET", "/api/tracking?sort_by=title&sort_order=asc", "alice", "")
	if code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	var list struct {
		Products []struct {
			ID            int64 `json:"id"`
			AlertSent     bool  `json:"alert_sent"`
			TargetReached bool  `json:"target_reached"`
		} `json:"products"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || !list.Products[0].AlertSent || !list.Products[0].TargetReached {
		t.Fatalf("unexpected list %+v", list)
	}

	code, env = do(t, app, "PATCH", fmt.Sprintf("/api/tracking/%d", p.ID), "alice", `{"target_price":null}`)
	if code != http.StatusOK {
		t.Fatalf("clear target: %d %s", code, env.Message)
	}
	var updated models.TrackedProduct
	_ = json.Unmarshal(env.Data, &updated)
	if updated.TargetPrice != nil {
		t.Fatalf("target should be cleared, got %v", *updated.TargetPrice)
	}
	code, _ = do(t, app, "PATCH", fmt.Sprintf("/api/tracking/%d", p.ID), "alice", `{"target_price":"cheap"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("bad target: want 400, got %d", code)
	}

	code, env = do(t, app, "GET", "/api/price-history/B000000001?days=7", "alice", "")
	if code != http.StatusOK {
		t.Fatalf("history: %d", code)
	}
	var hist struct {
		PriceHistory []models.PriceHistoryEntry `json:"price_history"`
	}
	_ = json.Unmarshal(env.Data, &hist)
	if len(hist.PriceHistory) != 2 {
		t.Fatalf("want 2 history entries, got %d", len(hist.PriceHistory))
	}
	code, _ = do(t, app, "GET", "/api/price-history/nope", "alice", "")
	if code != http.StatusBadRequest {
		t.Fatalf("bad asin: want 400, got %d", code)
	}

	code, _ = do(t, app, "DELETE", fmt.Sprintf("/api/tracking/%d", p.ID), "bob", "")
	if code != http.StatusForbidden {
		t.Fatalf("delete by other owner: want 403, got %d", code)
	}
	code, _ = do(t, app, "DELETE", fmt.Sprintf("/api/tracking/%d", p.ID), "alice", "")
	if code != http.StatusOK {
		t.Fatalf("delete: want 200, got %d", code)
	}
	code, _ = do(t, app, "DELETE", fmt.Sprintf("/api/tracking/%d", p.ID), "alice", "")
	if code != http.StatusNotFound {
		t.Fatalf("second delete: want 404, got %d", code)
	}
}

func TestDealRoutes(t *testing.T) {
	pages := map[string]string{
		base + "/deals": `<html><body>
			<div data-testid="deal-card"><a href="/dp/B000000001"><span data-testid="deal-title">One</span></a></div>
			<div data-testid="deal-card"><a href="/dp/B000000002"><span data-testid="deal-title">Two</span></a></div>
		</body></html>`,
		base + "/dp/B000000001": `<html><body><span id="productTitle">One</span>
			<div class="a-price-current"><span class="a-offscreen">₹50</span></div>
			<div class="a-price-was"><span class="a-offscreen">₹100</span></div></body></html>`,
		base + "/dp/B000000002": page("Two", "₹80"),
	}
	app, _ := newTestApp(t, pages)

	code, env := do(t, app, "POST", "/api/deals/refresh", "", "")
	if code != http.StatusOK {
		t.Fatalf("refresh: %d %s", code, env.Message)
	}
	var sum models.RunSummary
	_ = json.Unmarshal(env.Data, &sum)
	if sum.Scraped != 2 || sum.Inserted != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	code, env = do(t, app, "GET", "/api/deals?min_discount=40", "", "")
	if code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	var list struct {
		Deals      []models.Deal `json:"deals"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	_ = json.Unmarshal(env.Data, &list)
	if list.Pagination.Total != 1 || list.Deals[0].ASIN != "B000000001" || list.Deals[0].DiscountPercentage != 50 {
		t.Fatalf("unexpected list %+v", list)
	}

	code, _ = do(t, app, "GET", "/api/deals?limit=500", "", "")
	if code != http.StatusBadRequest {
		t.Fatalf("limit above max: want 400, got %d", code)
	}

	code, env = do(t, app, "GET", fmt.Sprintf("/api/deals/%d", list.Deals[0].ID), "", "")
	if code != http.StatusOK {
		t.Fatalf("get deal: %d", code)
	}
	code, _ = do(t, app, "GET", "/api/deals/9999", "", "")
	if code != http.StatusNotFound {
		t.Fatalf("unknown deal: want 404, got %d", code)
	}

	code, env = do(t, app, "GET", "/api/deals/stats", "", "")
	if code != http.StatusOK {
		t.Fatalf("stats: %d", code)
	}
	var st models.DealStats
	_ = json.Unmarshal(env.Data, &st)
	if st.TotalDeals != 2 || st.HighDiscountDeals != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}

	code, env = do(t, app, "GET", "/api/deals/categories", "", "")
	if code != http.StatusOK || string(env.Data) != "[]" {
		t.Fatalf("categories: %d %s", code, env.Data)
	}
}
