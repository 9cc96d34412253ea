package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carscout/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// EnsureSchema creates the tables the pipeline needs if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id BIGSERIAL PRIMARY KEY,
			source_site TEXT NOT NULL,
			url TEXT NOT NULL,
			title TEXT NOT NULL,
			price INT,
			previous_price INT,
			location TEXT NOT NULL DEFAULT '',
			make TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			year INT,
			mileage INT,
			fuel_type TEXT NOT NULL DEFAULT '',
			transmission TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			deal_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			price_dropped BOOLEAN NOT NULL DEFAULT FALSE,
			price_drop_amount INT NOT NULL DEFAULT 0,
			duplicate_of_id BIGINT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			first_seen TIMESTAMPTZ NOT NULL,
			last_seen TIMESTAMPTZ NOT NULL,
			UNIQUE (source_site, url)
		);
		CREATE TABLE IF NOT EXISTS scrape_logs (
			id BIGSERIAL PRIMARY KEY,
			site_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'running',
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ,
			pages_scraped INT NOT NULL DEFAULT 0,
			listings_found INT NOT NULL DEFAULT 0,
			listings_new INT NOT NULL DEFAULT 0,
			listings_updated INT NOT NULL DEFAULT 0,
			listings_removed INT NOT NULL DEFAULT 0,
			is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
			errors JSONB NOT NULL DEFAULT '[]'
		);
		CREATE TABLE IF NOT EXISTS settings (
			id INT PRIMARY KEY DEFAULT 1,
			enabled_sites JSONB NOT NULL DEFAULT '["carzone","donedeal","adverts"]',
			max_pages_per_site INT NOT NULL DEFAULT 10,
			min_deal_score DOUBLE PRECISION NOT NULL DEFAULT 50,
			approved_locations JSONB NOT NULL DEFAULT '["Leinster"]',
			blacklist JSONB NOT NULL DEFAULT '[]',
			weight_price_vs_market INT NOT NULL DEFAULT 25,
			weight_mileage_vs_year INT NOT NULL DEFAULT 20,
			weight_co2_tax_band INT NOT NULL DEFAULT 15,
			weight_popularity_rarity INT NOT NULL DEFAULT 15,
			weight_price_dropped INT NOT NULL DEFAULT 10,
			weight_location_match INT NOT NULL DEFAULT 10,
			weight_listing_freshness INT NOT NULL DEFAULT 5
		);
		INSERT INTO settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING;
	`)
	return err
}

const listingColumns = `id, source_site, url, title, price, previous_price, location,
	make, model, year, mileage, fuel_type, transmission, image_url,
	deal_score, price_dropped, price_drop_amount, duplicate_of_id,
	is_active, first_seen, last_seen`

func scanListing(row pgx.Row) (*domain.Listing, error) {
	var l domain.Listing
	err := row.Scan(&l.ID, &l.SourceSite, &l.URL, &l.Title, &l.Price, &l.PreviousPrice,
		&l.Location, &l.Make, &l.Model, &l.Year, &l.Mileage, &l.FuelType,
		&l.Transmission, &l.ImageURL, &l.DealScore, &l.PriceDropped,
		&l.PriceDropAmount, &l.DuplicateOfID, &l.IsActive, &l.FirstSeen, &l.LastSeen)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) GetListingByURL(ctx context.Context, site, url string) (*domain.Listing, error) {
	l, err := scanListing(s.db.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE source_site = $1 AND url = $2`,
		site, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return l, err
}

// InsertListing inserts a listing, relying on the (source_site, url) unique
// constraint to serialize concurrent writers on the same key.
func (s *PostgresStore) InsertListing(ctx context.Context, l *domain.Listing) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO listings (source_site, url, title, price, previous_price, location,
			make, model, year, mileage, fuel_type, transmission, image_url,
			deal_score, price_dropped, price_drop_amount, duplicate_of_id,
			is_active, first_seen, last_seen)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		 ON CONFLICT (source_site, url) DO UPDATE SET
			title = EXCLUDED.title, price = EXCLUDED.price,
			deal_score = EXCLUDED.deal_score, is_active = TRUE,
			last_seen = EXCLUDED.last_seen
		 RETURNING id`,
		l.SourceSite, l.URL, l.Title, l.Price, l.PreviousPrice, l.Location,
		l.Make, l.Model, l.Year, l.Mileage, l.FuelType, l.Transmission, l.ImageURL,
		l.DealScore, l.PriceDropped, l.PriceDropAmount, l.DuplicateOfID,
		l.IsActive, l.FirstSeen, l.LastSeen,
	).Scan(&l.ID)
}

func (s *PostgresStore) UpdateListing(ctx context.Context, l *domain.Listing) error {
	_, err := s.db.Exec(ctx,
		`UPDATE listings SET title = $1, price = $2, previous_price = $3, location = $4,
			make = $5, model = $6, year = $7, mileage = $8, fuel_type = $9,
			transmission = $10, image_url = $11, deal_score = $12,
			price_dropped = $13, price_drop_amount = $14, duplicate_of_id = $15,
			is_active = $16, last_seen = $17
		 WHERE id = $18`,
		l.Title, l.Price, l.PreviousPrice, l.Location, l.Make, l.Model, l.Year,
		l.Mileage, l.FuelType, l.Transmission, l.ImageURL, l.DealScore,
		l.PriceDropped, l.PriceDropAmount, l.DuplicateOfID, l.IsActive,
		l.LastSeen, l.ID)
	return err
}

func (s *PostgresStore) ActiveListings(ctx context.Context) ([]domain.Listing, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectListings(rows)
}

func (s *PostgresStore) ListingsInPriceBand(ctx context.Context, minPrice, maxPrice int) ([]domain.Listing, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE is_active AND price IS NOT NULL AND price BETWEEN $1 AND $2
		 ORDER BY first_seen, id`,
		minPrice, maxPrice)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectListings(rows)
}

func collectListings(rows pgx.Rows) ([]domain.Listing, error) {
	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// MarkUnseenInactive flips is_active off for every active listing of a site
// whose URL was not observed in the current run and returns the count.
func (s *PostgresStore) MarkUnseenInactive(ctx context.Context, site string, seenURLs []string) (int, error) {
	// A run that observed nothing must still flip the whole site; a nil
	// slice would encode as SQL NULL and make the ANY predicate vacuous.
	if seenURLs == nil {
		seenURLs = []string{}
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE listings SET is_active = FALSE
		 WHERE source_site = $1 AND is_active AND NOT (url = ANY($2))`,
		site, seenURLs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountListings(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n)
	return n, err
}

func (s *PostgresStore) CountListingsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM listings WHERE first_seen >= $1`, since).Scan(&n)
	return n, err
}

func (s *PostgresStore) ListingsBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT source_site, COUNT(*) FROM listings GROUP BY source_site`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var site string
		var n int
		if err := rows.Scan(&site, &n); err != nil {
			return nil, err
		}
		out[site] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateScrapeLog(ctx context.Context, log *domain.ScrapeLog) error {
	errs, _ := json.Marshal(log.Errors)
	if log.Errors == nil {
		errs = []byte("[]")
	}
	return s.db.QueryRow(ctx,
		`INSERT INTO scrape_logs (site_name, status, started_at, is_blocked, errors)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		log.SiteName, log.Status, log.StartedAt, log.IsBlocked, errs).Scan(&log.ID)
}

func (s *PostgresStore) UpdateScrapeLog(ctx context.Context, log *domain.ScrapeLog) error {
	errs, _ := json.Marshal(log.Errors)
	if log.Errors == nil {
		errs = []byte("[]")
	}
	_, err := s.db.Exec(ctx,
		`UPDATE scrape_logs SET status = $1, completed_at = $2, pages_scraped = $3,
			listings_found = $4, listings_new = $5, listings_updated = $6,
			listings_removed = $7, is_blocked = $8, errors = $9
		 WHERE id = $10`,
		log.Status, log.CompletedAt, log.PagesScraped, log.ListingsFound,
		log.ListingsNew, log.ListingsUpdated, log.ListingsRemoved,
		log.IsBlocked, errs, log.ID)
	return err
}

const logColumns = `id, site_name, status, started_at, completed_at, pages_scraped,
	listings_found, listings_new, listings_updated, listings_removed, is_blocked, errors`

func collectLogs(rows pgx.Rows) ([]domain.ScrapeLog, error) {
	var out []domain.ScrapeLog
	for rows.Next() {
		var l domain.ScrapeLog
		var errs []byte
		if err := rows.Scan(&l.ID, &l.SiteName, &l.Status, &l.StartedAt, &l.CompletedAt,
			&l.PagesScraped, &l.ListingsFound, &l.ListingsNew, &l.ListingsUpdated,
			&l.ListingsRemoved, &l.IsBlocked, &errs); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(errs, &l.Errors)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RecentScrapeLogs(ctx context.Context, limit int) ([]domain.ScrapeLog, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+logColumns+` FROM scrape_logs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

func (s *PostgresStore) ScrapeLogsPage(ctx context.Context, page, perPage int) ([]domain.ScrapeLog, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM scrape_logs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+logColumns+` FROM scrape_logs ORDER BY started_at DESC
		 LIMIT $1 OFFSET $2`,
		perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	logs, err := collectLogs(rows)
	return logs, total, err
}

func (s *PostgresStore) ScrapeLogsSince(ctx context.Context, since time.Time) ([]domain.ScrapeLog, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+logColumns+` FROM scrape_logs WHERE started_at >= $1 ORDER BY started_at DESC`,
		since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

func (s *PostgresStore) DeleteScrapeLogs(ctx context.Context, ids []int64) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM scrape_logs WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteFailedScrapeLogs(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM scrape_logs WHERE status = 'failed'`)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) LoadSettings(ctx context.Context) (*domain.Settings, error) {
	var st domain.Settings
	var sitesJSON, locJSON, blJSON []byte
	err := s.db.QueryRow(ctx,
		`SELECT enabled_sites, max_pages_per_site, min_deal_score, approved_locations,
			blacklist, weight_price_vs_market, weight_mileage_vs_year,
			weight_co2_tax_band, weight_popularity_rarity, weight_price_dropped,
			weight_location_match, weight_listing_freshness
		 FROM settings WHERE id = 1`).Scan(
		&sitesJSON, &st.MaxPagesPerSite, &st.MinDealScore, &locJSON, &blJSON,
		&st.Weights.PriceVsMarket, &st.Weights.MileageVsYear, &st.Weights.CO2TaxBand,
		&st.Weights.PopularityRarity, &st.Weights.PriceDropped,
		&st.Weights.LocationMatch, &st.Weights.ListingFreshness)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sitesJSON, &st.EnabledSites); err != nil {
		return nil, fmt.Errorf("decode enabled_sites: %w", err)
	}
	if err := json.Unmarshal(locJSON, &st.ApprovedLocations); err != nil {
		return nil, fmt.Errorf("decode approved_locations: %w", err)
	}
	if err := json.Unmarshal(blJSON, &st.Blacklist); err != nil {
		return nil, fmt.Errorf("decode blacklist: %w", err)
	}
	return &st, nil
}

// Cleanup deletes old scrape logs and stale inactive listings in one
// transaction so a failure leaves no partial deletion behind.
func (s *PostgresStore) Cleanup(ctx context.Context, cutoff time.Time) (int, int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	logTag, err := tx.Exec(ctx, `DELETE FROM scrape_logs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, 0, err
	}
	listingTag, err := tx.Exec(ctx,
		`DELETE FROM listings WHERE NOT is_active AND last_seen < $1`, cutoff)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return int(logTag.RowsAffected()), int(listingTag.RowsAffected()), nil
}
