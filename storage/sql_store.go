package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealtracker/models"
	"dealtracker/utils"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const dealColumns = `id, asin, title, price, original_price, discount_percentage, image_url, product_url,
	affiliate_url, category, rating, review_count, availability, prime_eligible, deal_type, is_active,
	fetched_at, created_at`

const trackedColumns = `id, owner, asin, title, current_price, target_price, image_url, product_url,
	affiliate_url, is_active, alert_sent, last_checked, created_at, updated_at`

var dealSortColumns = map[string]string{
	"fetched_at":          "fetched_at",
	"discount_percentage": "discount_percentage",
	"price":               "price",
	"rating":              "rating",
}

var trackedSortColumns = map[string]string{
	"created_at":    "created_at",
	"last_checked":  "last_checked",
	"current_price": "current_price",
	"target_price":  "target_price",
	"title":         "title",
}

// SQLStore keeps the deal cache, tracked products and price history in one database.
// Queries are written with ? placeholders and rebound for the driver in use.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	logger *utils.Logger
	now    func() time.Time
}

// Open connects to the database and pings it. driver is "postgres" or "sqlite".
func Open(driver, dsn string, logger *utils.Logger) (*SQLStore, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q: %w", driver, models.ErrInvalidInput)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	if driver == DriverSQLite {
		// every connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Minute * 5)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	logger.Info("Connected to %s successfully", driver)
	return &SQLStore{db: db, driver: driver, logger: logger, now: time.Now}, nil
}

// CreateSchema creates the tables and indexes if they don't exist
func (s *SQLStore) CreateSchema(ctx context.Context) error {
	schema := postgresSchema
	if s.driver == DriverSQLite {
		schema = sqliteSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	s.logger.Info("Tables 'deals_cache', 'tracked_products', 'price_history' are ready")
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

// ---- deal cache ----

func (s *SQLStore) FindDealByASIN(ctx context.Context, asin string) (*models.Deal, error) {
	var d models.Deal
	err := s.db.GetContext(ctx, &d, s.q(`SELECT `+dealColumns+` FROM deals_cache WHERE asin = ?`), asin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find deal %s: %w", asin, err)
	}
	return &d, nil
}

func (s *SQLStore) InsertDeal(ctx context.Context, d *models.Deal) (bool, error) {
	now := s.now().UTC()
	var id int64
	err := s.db.QueryRowxContext(ctx, s.q(`
		INSERT INTO deals_cache (asin, title, price, original_price, discount_percentage, image_url, product_url,
			affiliate_url, category, rating, review_count, availability, prime_eligible, deal_type, is_active,
			fetched_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asin) DO NOTHING
		RETURNING id`),
		d.ASIN, d.Title, d.Price, d.OriginalPrice, d.DiscountPercentage, d.ImageURL, d.ProductURL,
		d.AffiliateURL, d.Category, d.Rating, d.ReviewCount, d.Availability, d.PrimeEligible, d.DealType, d.Active,
		d.FetchedAt.UTC(), now, now,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert deal %s: %w", d.ASIN, err)
	}
	d.ID = id
	d.CreatedAt = now
	return true, nil
}

// UpdateDeal overwrites the scraped fields. Identifier, category, active flag and
// creation time are left alone.
func (s *SQLStore) UpdateDeal(ctx context.Context, asin string, d *models.Deal) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE deals_cache SET title = ?, price = ?, original_price = ?, discount_percentage = ?, image_url = ?,
			product_url = ?, affiliate_url = ?, rating = ?, review_count = ?, availability = ?, prime_eligible = ?,
			deal_type = ?, fetched_at = ?, updated_at = ?
		WHERE asin = ?`),
		d.Title, d.Price, d.OriginalPrice, d.DiscountPercentage, d.ImageURL,
		d.ProductURL, d.AffiliateURL, d.Rating, d.ReviewCount, d.Availability, d.PrimeEligible,
		d.DealType, d.FetchedAt.UTC(), s.now().UTC(), asin,
	)
	if err != nil {
		return fmt.Errorf("update deal %s: %w", asin, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update deal %s: %w", asin, models.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) GetDeal(ctx context.Context, id int64) (*models.Deal, error) {
	var d models.Deal
	err := s.db.GetContext(ctx, &d, s.q(`SELECT `+dealColumns+` FROM deals_cache WHERE id = ? AND is_active = TRUE`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deal %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get deal %d: %w", id, err)
	}
	return &d, nil
}

// ListDeals returns one page of active deals and the total number matching the filter
func (s *SQLStore) ListDeals(ctx context.Context, f models.DealFilter) ([]models.Deal, int, error) {
	where := []string{"is_active = TRUE"}
	var args []interface{}
	if f.Category != "" {
		where = append(where, "LOWER(category) LIKE LOWER(?)")
		args = append(args, "%"+f.Category+"%")
	}
	if f.MinDiscount > 0 {
		where = append(where, "discount_percentage >= ?")
		args = append(args, f.MinDiscount)
	}
	if f.MaxPrice > 0 {
		where = append(where, "price <= ?")
		args = append(args, f.MaxPrice)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, s.q(`SELECT COUNT(*) FROM deals_cache WHERE `+cond), args...); err != nil {
		return nil, 0, fmt.Errorf("count deals: %w", err)
	}

	order := orderBy(dealSortColumns, f.SortBy, "fetched_at", f.SortOrder)
	query := `SELECT ` + dealColumns + ` FROM deals_cache WHERE ` + cond + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	deals := []models.Deal{}
	if err := s.db.SelectContext(ctx, &deals, s.q(query), append(args, f.Limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("list deals: %w", err)
	}
	return deals, total, nil
}

// DealStats aggregates the active cache. A deal counts as high discount from 50%.
func (s *SQLStore) DealStats(ctx context.Context) (*models.DealStats, error) {
	var st models.DealStats
	err := s.db.GetContext(ctx, &st, `
		SELECT COUNT(*) AS total_deals,
			COALESCE(SUM(CASE WHEN discount_percentage >= 50 THEN 1 ELSE 0 END), 0) AS high_discount_deals,
			COALESCE(SUM(CASE WHEN prime_eligible = TRUE THEN 1 ELSE 0 END), 0) AS prime_deals,
			COALESCE(AVG(discount_percentage), 0) AS avg_discount
		FROM deals_cache WHERE is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("deal stats: %w", err)
	}

	// plain column read keeps the driver's time decoding on sqlite, MAX() would not
	var last time.Time
	err = s.db.GetContext(ctx, &last, `SELECT fetched_at FROM deals_cache WHERE is_active = TRUE ORDER BY fetched_at DESC LIMIT 1`)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("deal stats last update: %w", err)
	default:
		st.LastUpdated = &last
	}
	return &st, nil
}

// Categories returns the most populated categories of active deals
func (s *SQLStore) Categories(ctx context.Context, limit int) ([]models.CategoryCount, error) {
	out := []models.CategoryCount{}
	err := s.db.SelectContext(ctx, &out, s.q(`
		SELECT category, COUNT(*) AS deal_count
		FROM deals_cache
		WHERE is_active = TRUE AND category IS NOT NULL
		GROUP BY category
		ORDER BY deal_count DESC, category ASC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	return out, nil
}

// ---- tracked products ----

func (s *SQLStore) FindTrackedProduct(ctx context.Context, owner, asin string) (*models.TrackedProduct, error) {
	var p models.TrackedProduct
	err := s.db.GetContext(ctx, &p, s.q(`SELECT `+trackedColumns+` FROM tracked_products
		WHERE owner = ? AND asin = ? AND is_active = TRUE`), owner, asin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tracked %s/%s: %w", owner, asin, err)
	}
	return &p, nil
}

func (s *SQLStore) GetTrackedProduct(ctx context.Context, id int64) (*models.TrackedProduct, error) {
	var p models.TrackedProduct
	err := s.db.GetContext(ctx, &p, s.q(`SELECT `+trackedColumns+` FROM tracked_products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tracked product %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tracked product %d: %w", id, err)
	}
	return &p, nil
}

func (s *SQLStore) InsertTrackedProduct(ctx context.Context, p *models.TrackedProduct) error {
	now := s.now().UTC()
	var lastChecked *time.Time
	if p.LastChecked != nil {
		t := p.LastChecked.UTC()
		lastChecked = &t
	}
	var id int64
	err := s.db.QueryRowxContext(ctx, s.q(`
		INSERT INTO tracked_products (owner, asin, title, current_price, target_price, image_url, product_url,
			affiliate_url, is_active, alert_sent, last_checked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id`),
		p.Owner, p.ASIN, p.Title, p.CurrentPrice, p.TargetPrice, p.ImageURL, p.ProductURL,
		p.AffiliateURL, p.Active, p.AlertSent, lastChecked, now, now,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s for %s: %w", p.ASIN, p.Owner, models.ErrDuplicateTracking)
	}
	if err != nil {
		return fmt.Errorf("insert tracked product %s: %w", p.ASIN, err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (s *SQLStore) UpdateTrackedPrice(ctx context.Context, id int64, price float64, checkedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE tracked_products SET current_price = ?, last_checked = ?, updated_at = ? WHERE id = ?`),
		price, checkedAt.UTC(), s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update tracked price %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tracked product %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) MarkAlertSent(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE tracked_products SET alert_sent = TRUE, updated_at = ? WHERE id = ? AND alert_sent = FALSE`),
		s.now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("mark alert sent %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark alert sent %d: %w", id, err)
	}
	return n == 1, nil
}

func (s *SQLStore) UpdateTrackedSettings(ctx context.Context, id int64, owner string, st TrackedSettings) (*models.TrackedProduct, error) {
	cur, err := s.GetTrackedProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Owner != owner {
		return nil, fmt.Errorf("tracked product %d: %w", id, models.ErrUnauthorized)
	}

	target := cur.TargetPrice
	if st.ClearTarget {
		target = nil
	} else if st.TargetPrice != nil {
		target = st.TargetPrice
	}
	active := cur.Active
	if st.Active != nil {
		active = *st.Active
	}

	_, err = s.db.ExecContext(ctx, s.q(`
		UPDATE tracked_products SET target_price = ?, is_active = ?, updated_at = ? WHERE id = ? AND owner = ?`),
		target, active, s.now().UTC(), id, owner)
	if err != nil {
		if active && !cur.Active && isUniqueViolation(err) {
			return nil, fmt.Errorf("%s for %s: %w", cur.ASIN, owner, models.ErrDuplicateTracking)
		}
		return nil, fmt.Errorf("update tracked product %d: %w", id, err)
	}
	return s.GetTrackedProduct(ctx, id)
}

func (s *SQLStore) DeleteTrackedProduct(ctx context.Context, id int64, owner string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM tracked_products WHERE id = ? AND owner = ?`), id, owner)
	if err != nil {
		return false, fmt.Errorf("delete tracked product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete tracked product %d: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLStore) ListActiveTrackedProducts(ctx context.Context, owner string, id *int64) ([]models.TrackedProduct, error) {
	query := `SELECT ` + trackedColumns + ` FROM tracked_products WHERE owner = ? AND is_active = TRUE`
	args := []interface{}{owner}
	if id != nil {
		query += ` AND id = ?`
		args = append(args, *id)
	}
	query += ` ORDER BY id`

	out := []models.TrackedProduct{}
	if err := s.db.SelectContext(ctx, &out, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("list active tracked products: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ListTrackedProducts(ctx context.Context, owner string, o models.TrackedListOptions) ([]models.TrackedProduct, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, s.q(`SELECT COUNT(*) FROM tracked_products WHERE owner = ?`), owner); err != nil {
		return nil, 0, fmt.Errorf("count tracked products: %w", err)
	}

	order := orderBy(trackedSortColumns, o.SortBy, "created_at", o.SortOrder)
	out := []models.TrackedProduct{}
	err := s.db.SelectContext(ctx, &out, s.q(`SELECT `+trackedColumns+` FROM tracked_products
		WHERE owner = ? ORDER BY `+order+` LIMIT ? OFFSET ?`), owner, o.Limit, o.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list tracked products: %w", err)
	}
	return out, total, nil
}

func (s *SQLStore) ListTrackingOwners(ctx context.Context) ([]string, error) {
	out := []string{}
	err := s.db.SelectContext(ctx, &out, `SELECT DISTINCT owner FROM tracked_products WHERE is_active = TRUE ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("list tracking owners: %w", err)
	}
	return out, nil
}

// ---- price history ----

func (s *SQLStore) AppendPriceHistory(ctx context.Context, asin string, price float64, source string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO price_history (asin, price, source, recorded_at) VALUES (?, ?, ?, ?)`),
		asin, price, source, at.UTC())
	if err != nil {
		return fmt.Errorf("append price history %s: %w", asin, err)
	}
	return nil
}

// PriceHistory returns entries recorded at or after since, oldest first
func (s *SQLStore) PriceHistory(ctx context.Context, asin string, since time.Time) ([]models.PriceHistoryEntry, error) {
	out := []models.PriceHistoryEntry{}
	err := s.db.SelectContext(ctx, &out, s.q(`
		SELECT id, asin, price, source, recorded_at FROM price_history
		WHERE asin = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC, id ASC`), asin, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("price history %s: %w", asin, err)
	}
	return out, nil
}

// orderBy maps a requested sort onto a whitelisted column; anything else falls back to def
func orderBy(columns map[string]string, sortBy, def, sortOrder string) string {
	col, ok := columns[sortBy]
	if !ok {
		col = def
	}
	dir := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		dir = "ASC"
	}
	return col + " " + dir + ", id " + dir
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
