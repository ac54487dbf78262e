package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"bizharvest/models"
	"bizharvest/utils"
)

const maxSyncResults = 50

// Store persists listings, enrichment records and sync-run outcomes in
// PostgreSQL. It exclusively owns durable identity.
type Store struct {
	db     *sql.DB
	logger *utils.Logger
}

// NewStore opens a connection, runs schema migrations, and returns a
// ready-to-use Store. Connection failure here is process-fatal by policy;
// everything after startup degrades instead.
func NewStore(dsn string, logger *utils.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id            TEXT PRIMARY KEY,
			source        VARCHAR(50)   NOT NULL,
			name          TEXT          NOT NULL,
			industry      TEXT          NOT NULL DEFAULT '',
			location      TEXT          NOT NULL DEFAULT '',
			city          TEXT          NOT NULL DEFAULT '',
			state         TEXT          NOT NULL DEFAULT '',
			country       TEXT          NOT NULL DEFAULT '',
			zip           TEXT          NOT NULL DEFAULT '',
			price         NUMERIC(14,2),
			price_min     NUMERIC(14,2),
			price_max     NUMERIC(14,2),
			revenue       NUMERIC(14,2),
			description   TEXT          NOT NULL DEFAULT '',
			contact_link  TEXT          NOT NULL DEFAULT '',
			tags          TEXT          NOT NULL DEFAULT '',
			lat           DOUBLE PRECISION,
			lng           DOUBLE PRECISION,
			original_data JSONB,
			confidence    NUMERIC(4,3)  NOT NULL DEFAULT 0,
			scraped_at    TIMESTAMPTZ   NOT NULL,
			created_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_source     ON listings(source);
		CREATE INDEX IF NOT EXISTS idx_listings_industry   ON listings(industry);
		CREATE INDEX IF NOT EXISTS idx_listings_location   ON listings(location);
		CREATE INDEX IF NOT EXISTS idx_listings_price      ON listings(price);
		CREATE INDEX IF NOT EXISTS idx_listings_scraped_at ON listings(scraped_at);

		CREATE TABLE IF NOT EXISTS listing_enrichments (
			listing_id       TEXT PRIMARY KEY REFERENCES listings(id) ON DELETE CASCADE,
			owner_name       TEXT NOT NULL DEFAULT '',
			owner_email      TEXT NOT NULL DEFAULT '',
			owner_phone      TEXT NOT NULL DEFAULT '',
			contact_form_url TEXT NOT NULL DEFAULT '',
			website          TEXT NOT NULL DEFAULT '',
			year_founded     INT  NOT NULL DEFAULT 0,
			employee_count   INT  NOT NULL DEFAULT 0,
			funding_total    TEXT NOT NULL DEFAULT '',
			linkedin_url     TEXT NOT NULL DEFAULT '',
			summary          TEXT NOT NULL DEFAULT '',
			sources          TEXT NOT NULL DEFAULT '',
			confidence       NUMERIC(5,2) NOT NULL DEFAULT 0,
			updated_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS sync_results (
			id               SERIAL PRIMARY KEY,
			scraper_name     VARCHAR(100) NOT NULL,
			success          BOOLEAN      NOT NULL,
			records_scraped  INT          NOT NULL DEFAULT 0,
			records_enriched INT          NOT NULL DEFAULT 0,
			records_stored   INT          NOT NULL DEFAULT 0,
			duration_ms      BIGINT       NOT NULL DEFAULT 0,
			errors           TEXT         NOT NULL DEFAULT '',
			timestamp        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_sync_results_scraper   ON sync_results(scraper_name);
		CREATE INDEX IF NOT EXISTS idx_sync_results_timestamp ON sync_results(timestamp);
	`)
	return err
}

// StoreListings upserts listings by id (insert-or-replace) and attaches
// any enrichment best-effort. Per-record failures are counted and logged,
// never fatal to the batch. Returns how many listings landed.
func (s *Store) StoreListings(listings []*models.NormalizedListing, source string) (int, error) {
	stored := 0
	failed := 0

	for _, l := range listings {
		if err := s.upsertListing(l); err != nil {
			failed++
			s.logger.Warn("[postgres] Store failed for %q: %v", l.Name, err)
			continue
		}
		stored++

		if l.Enrichment != nil {
			if err := s.upsertEnrichment(l.Enrichment); err != nil {
				s.logger.Warn("[postgres] Enrichment store failed for %s: %v", l.ID, err)
			}
		}
	}

	if failed > 0 {
		s.logger.Warn("[postgres] %s batch: %d stored, %d failed", source, stored, failed)
	}
	return stored, nil
}

func (s *Store) upsertListing(l *models.NormalizedListing) error {
	original, err := json.Marshal(l.OriginalData)
	if err != nil {
		original = []byte("{}")
	}

	var priceMin, priceMax *float64
	if l.PriceRange != nil {
		priceMin, priceMax = l.PriceRange.Min, l.PriceRange.Max
	}
	var lat, lng *float64
	if l.Coordinates != nil {
		lat, lng = &l.Coordinates.Lat, &l.Coordinates.Lng
	}

	_, err = s.db.Exec(`
		INSERT INTO listings (
			id, source, name, industry, location, city, state, country, zip,
			price, price_min, price_max, revenue, description, contact_link,
			tags, lat, lng, original_data, confidence, scraped_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source, name = EXCLUDED.name,
			industry = EXCLUDED.industry, location = EXCLUDED.location,
			city = EXCLUDED.city, state = EXCLUDED.state,
			country = EXCLUDED.country, zip = EXCLUDED.zip,
			price = EXCLUDED.price, price_min = EXCLUDED.price_min,
			price_max = EXCLUDED.price_max, revenue = EXCLUDED.revenue,
			description = EXCLUDED.description, contact_link = EXCLUDED.contact_link,
			tags = EXCLUDED.tags, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
			original_data = EXCLUDED.original_data, confidence = EXCLUDED.confidence,
			scraped_at = EXCLUDED.scraped_at
	`,
		l.ID, l.Source, l.Name, l.Industry, l.Location,
		l.Parsed.City, l.Parsed.State, l.Parsed.Country, l.Parsed.Zip,
		l.Price, priceMin, priceMax, l.Revenue, l.Description, l.ContactLink,
		strings.Join(l.Tags, ","), lat, lng, original, l.Confidence, l.ScrapedAt,
	)
	return err
}

func (s *Store) upsertEnrichment(e *models.EnrichmentRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO listing_enrichments (
			listing_id, owner_name, owner_email, owner_phone, contact_form_url,
			website, year_founded, employee_count, funding_total, linkedin_url,
			summary, sources, confidence, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (listing_id) DO UPDATE SET
			owner_name = EXCLUDED.owner_name, owner_email = EXCLUDED.owner_email,
			owner_phone = EXCLUDED.owner_phone, contact_form_url = EXCLUDED.contact_form_url,
			website = EXCLUDED.website, year_founded = EXCLUDED.year_founded,
			employee_count = EXCLUDED.employee_count, funding_total = EXCLUDED.funding_total,
			linkedin_url = EXCLUDED.linkedin_url, summary = EXCLUDED.summary,
			sources = EXCLUDED.sources, confidence = EXCLUDED.confidence,
			updated_at = EXCLUDED.updated_at
	`,
		e.ListingID, e.OwnerName, e.OwnerEmail, e.OwnerPhone, e.ContactFormURL,
		e.Website, e.YearFounded, e.EmployeeCount, e.FundingTotal, e.LinkedInURL,
		e.Summary, strings.Join(e.Sources, ","), e.Confidence, e.UpdatedAt,
	)
	return err
}

// GetListings returns listings matching the filter, most recent first.
func (s *Store) GetListings(filter models.ListingFilter) ([]*models.NormalizedListing, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Source != "" {
		conds = append(conds, "source = "+arg(filter.Source))
	}
	if filter.Industry != "" {
		conds = append(conds, "industry = "+arg(filter.Industry))
	}
	if filter.Location != "" {
		conds = append(conds, "location ILIKE "+arg("%"+filter.Location+"%"))
	}
	if filter.MinPrice != nil {
		conds = append(conds, "price >= "+arg(*filter.MinPrice))
	}
	if filter.MaxPrice != nil {
		conds = append(conds, "price <= "+arg(*filter.MaxPrice))
	}
	if filter.DateFrom != nil {
		conds = append(conds, "scraped_at >= "+arg(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		conds = append(conds, "scraped_at <= "+arg(*filter.DateTo))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, source, name, industry, location, city, state, country, zip,
		       price, price_min, price_max, revenue, description, contact_link,
		       tags, lat, lng, original_data, confidence, scraped_at
		FROM listings
		%s
		ORDER BY scraped_at DESC
		LIMIT %s OFFSET %s
	`, where, arg(limit), arg(filter.Offset))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: get listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.NormalizedListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func scanListing(rows *sql.Rows) (*models.NormalizedListing, error) {
	l := &models.NormalizedListing{}
	var priceMin, priceMax, lat, lng *float64
	var tags string
	var original []byte

	if err := rows.Scan(
		&l.ID, &l.Source, &l.Name, &l.Industry, &l.Location,
		&l.Parsed.City, &l.Parsed.State, &l.Parsed.Country, &l.Parsed.Zip,
		&l.Price, &priceMin, &priceMax, &l.Revenue, &l.Description, &l.ContactLink,
		&tags, &lat, &lng, &original, &l.Confidence, &l.ScrapedAt,
	); err != nil {
		return nil, err
	}

	if priceMin != nil || priceMax != nil {
		l.PriceRange = &models.PriceRange{Min: priceMin, Max: priceMax}
	}
	if lat != nil && lng != nil {
		l.Coordinates = &models.Coordinates{Lat: *lat, Lng: *lng}
	}
	if tags != "" {
		l.Tags = strings.Split(tags, ",")
	}
	if len(original) > 0 {
		_ = json.Unmarshal(original, &l.OriginalData)
	}
	return l, nil
}

// GetStats computes the overall, per-source and per-industry aggregates.
func (s *Store) GetStats() (*models.ListingStats, error) {
	stats := &models.ListingStats{
		BySource:   make(map[string]models.SourceStats),
		ByIndustry: make(map[string]models.SourceStats),
	}

	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(AVG(price), 0),
		       COALESCE(MIN(price), 0),
		       COALESCE(MAX(price), 0)
		FROM listings
	`).Scan(&stats.TotalListings, &stats.AvgPrice, &stats.MinPrice, &stats.MaxPrice)
	if err != nil {
		return nil, fmt.Errorf("postgres: overall stats: %w", err)
	}

	for _, group := range []struct {
		column string
		dest   map[string]models.SourceStats
	}{
		{"source", stats.BySource},
		{"industry", stats.ByIndustry},
	} {
		rows, err := s.db.Query(fmt.Sprintf(`
			SELECT %s, COUNT(*), COALESCE(AVG(price), 0)
			FROM listings
			WHERE %s <> ''
			GROUP BY %s
		`, group.column, group.column, group.column))
		if err != nil {
			return nil, fmt.Errorf("postgres: %s stats: %w", group.column, err)
		}
		for rows.Next() {
			var key string
			var st models.SourceStats
			if err := rows.Scan(&key, &st.Count, &st.AvgPrice); err != nil {
				rows.Close()
				return nil, fmt.Errorf("postgres: scan %s stats: %w", group.column, err)
			}
			group.dest[key] = st
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	return stats, nil
}

// StoreSyncResult appends one run outcome. Results are never mutated.
func (s *Store) StoreSyncResult(r *models.SyncRunResult) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_results (
			scraper_name, success, records_scraped, records_enriched,
			records_stored, duration_ms, errors, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		r.ScraperName, r.Success, r.RecordsScraped, r.RecordsEnriched,
		r.RecordsStored, r.DurationMs, strings.Join(r.Errors, "\n"), r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: store sync result: %w", err)
	}
	return nil
}

// GetLastSyncResults returns the latest results (at most 50), optionally
// filtered by scraper name.
func (s *Store) GetLastSyncResults(scraperName string) ([]*models.SyncRunResult, error) {
	query := `
		SELECT scraper_name, success, records_scraped, records_enriched,
		       records_stored, duration_ms, errors, timestamp
		FROM sync_results
	`
	var args []interface{}
	if scraperName != "" {
		query += " WHERE scraper_name = $1"
		args = append(args, scraperName)
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT %d", maxSyncResults)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: get sync results: %w", err)
	}
	defer rows.Close()

	var results []*models.SyncRunResult
	for rows.Next() {
		r := &models.SyncRunResult{}
		var errText string
		if err := rows.Scan(
			&r.ScraperName, &r.Success, &r.RecordsScraped, &r.RecordsEnriched,
			&r.RecordsStored, &r.DurationMs, &errText, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan sync result: %w", err)
		}
		if errText != "" {
			r.Errors = strings.Split(errText, "\n")
		} else {
			r.Errors = []string{}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeduplicateListings removes all but the lexicographically-first row per
// (lower(name), lower(location)) group. Running it twice yields the same
// result as once.
func (s *Store) DeduplicateListings(source string) (int, error) {
	query := `
		DELETE FROM listings a
		USING listings b
		WHERE lower(a.name) = lower(b.name)
		  AND lower(a.location) = lower(b.location)
		  AND a.id > b.id
	`
	var args []interface{}
	if source != "" {
		query += " AND a.source = $1 AND b.source = $1"
		args = append(args, source)
	}

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: deduplicate: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CleanupOldListings hard-deletes listings scraped before the retention
// cutoff.
func (s *Store) CleanupOldListings(source string, daysOld int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -daysOld)

	query := "DELETE FROM listings WHERE scraped_at < $1"
	args := []interface{}{cutoff}
	if source != "" {
		query += " AND source = $2"
		args = append(args, source)
	}

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// HealthCheck pings the database with a short timeout.
func (s *Store) HealthCheck() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.db.PingContext(ctx) == nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
