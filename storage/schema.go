package storage

const postgresSchema = `
CREATE TABLE IF NOT EXISTS deals_cache (
	id                  SERIAL PRIMARY KEY,
	asin                VARCHAR(10)   NOT NULL UNIQUE,
	title               TEXT          NOT NULL,
	price               NUMERIC(12,2),
	original_price      NUMERIC(12,2),
	discount_percentage INTEGER       NOT NULL DEFAULT 0,
	image_url           TEXT,
	product_url         TEXT          NOT NULL,
	affiliate_url       TEXT          NOT NULL,
	category            TEXT,
	rating              NUMERIC(3,1),
	review_count        INTEGER,
	availability        TEXT          NOT NULL DEFAULT 'Unknown',
	prime_eligible      BOOLEAN       NOT NULL DEFAULT FALSE,
	deal_type           VARCHAR(50)   NOT NULL DEFAULT 'deal',
	is_active           BOOLEAN       NOT NULL DEFAULT TRUE,
	fetched_at          TIMESTAMPTZ   NOT NULL,
	created_at          TIMESTAMPTZ   NOT NULL,
	updated_at          TIMESTAMPTZ   NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deals_discount ON deals_cache (discount_percentage);
CREATE INDEX IF NOT EXISTS idx_deals_price    ON deals_cache (price);
CREATE INDEX IF NOT EXISTS idx_deals_fetched  ON deals_cache (fetched_at);

CREATE TABLE IF NOT EXISTS tracked_products (
	id             SERIAL PRIMARY KEY,
	owner          TEXT          NOT NULL,
	asin           VARCHAR(10)   NOT NULL,
	title          TEXT          NOT NULL,
	current_price  NUMERIC(12,2),
	target_price   NUMERIC(12,2),
	image_url      TEXT,
	product_url    TEXT          NOT NULL,
	affiliate_url  TEXT          NOT NULL,
	is_active      BOOLEAN       NOT NULL DEFAULT TRUE,
	alert_sent     BOOLEAN       NOT NULL DEFAULT FALSE,
	last_checked   TIMESTAMPTZ,
	created_at     TIMESTAMPTZ   NOT NULL,
	updated_at     TIMESTAMPTZ   NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tracked_owner_asin_active ON tracked_products (owner, asin) WHERE is_active = TRUE;
CREATE INDEX IF NOT EXISTS idx_tracked_owner ON tracked_products (owner);

CREATE TABLE IF NOT EXISTS price_history (
	id          SERIAL PRIMARY KEY,
	asin        VARCHAR(10)   NOT NULL,
	price       NUMERIC(12,2) NOT NULL,
	source      VARCHAR(20)   NOT NULL,
	recorded_at TIMESTAMPTZ   NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_history_asin ON price_history (asin, recorded_at);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS deals_cache (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	asin                TEXT     NOT NULL UNIQUE,
	title               TEXT     NOT NULL,
	price               REAL,
	original_price      REAL,
	discount_percentage INTEGER  NOT NULL DEFAULT 0,
	image_url           TEXT,
	product_url         TEXT     NOT NULL,
	affiliate_url       TEXT     NOT NULL,
	category            TEXT,
	rating              REAL,
	review_count        INTEGER,
	availability        TEXT     NOT NULL DEFAULT 'Unknown',
	prime_eligible      BOOLEAN  NOT NULL DEFAULT 0,
	deal_type           TEXT     NOT NULL DEFAULT 'deal',
	is_active           BOOLEAN  NOT NULL DEFAULT 1,
	fetched_at          DATETIME NOT NULL,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deals_discount ON deals_cache (discount_percentage);
CREATE INDEX IF NOT EXISTS idx_deals_price    ON deals_cache (price);
CREATE INDEX IF NOT EXISTS idx_deals_fetched  ON deals_cache (fetched_at);

CREATE TABLE IF NOT EXISTS tracked_products (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	owner          TEXT     NOT NULL,
	asin           TEXT     NOT NULL,
	title          TEXT     NOT NULL,
	current_price  REAL,
	target_price   REAL,
	image_url      TEXT,
	product_url    TEXT     NOT NULL,
	affiliate_url  TEXT     NOT NULL,
	is_active      BOOLEAN  NOT NULL DEFAULT 1,
	alert_sent     BOOLEAN  NOT NULL DEFAULT 0,
	last_checked   DATETIME,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tracked_owner_asin_active ON tracked_products (owner, asin) WHERE is_active = 1;
CREATE INDEX IF NOT EXISTS idx_tracked_owner ON tracked_products (owner);

CREATE TABLE IF NOT EXISTS price_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	asin        TEXT     NOT NULL,
	price       REAL     NOT NULL,
	source      TEXT     NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_history_asin ON price_history (asin, recorded_at);
`
