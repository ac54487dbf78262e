package models

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// RawScrapeRecord holds unprocessed field values extracted from one listing
// card or detail page. It is handed straight to the normalizer and never
// persisted.
type RawScrapeRecord struct {
	Source    string
	PageURL   string
	Fields    map[string]string
	ScrapedAt time.Time
}

// Field returns the trimmed value of a raw field, or "" when absent.
func (r *RawScrapeRecord) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return strings.TrimSpace(r.Fields[name])
}

// ParsedLocation is the structured form of a free-text location string.
type ParsedLocation struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	Zip     string `json:"zip"`
}

// PriceRange captures an explicit asking-price range such as "$100K - $500K".
// Min <= Max whenever both ends are present.
type PriceRange struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// Coordinates is an optional lat/lng pair for a listing.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NormalizedListing is the canonical, source-agnostic business-listing
// record ready for enrichment and storage.
type NormalizedListing struct {
	ID           string            `json:"id"`
	Source       string            `json:"source"`
	Name         string            `json:"name"`
	Industry     string            `json:"industry"`
	Location     string            `json:"location"`
	Parsed       ParsedLocation    `json:"parsedLocation"`
	Price        *float64          `json:"price"`
	PriceRange   *PriceRange       `json:"priceRange,omitempty"`
	Revenue      *float64          `json:"revenue,omitempty"`
	Description  string            `json:"description"`
	ContactLink  string            `json:"contactLink"`
	Tags         []string          `json:"tags"`
	Coordinates  *Coordinates      `json:"coordinates,omitempty"`
	ScrapedAt    time.Time         `json:"scrapedAt"`
	OriginalData map[string]string `json:"originalData"`
	Confidence   float64           `json:"confidence"`

	// Enrichment is attached by the enrichment agent before storage.
	// Nil when no source contributed anything.
	Enrichment *EnrichmentRecord `json:"enrichment,omitempty"`
}

// DedupKey derives the name+location+price identity used by duplicate
// removal. It is intentionally distinct from ID: ID drives upsert, the
// key drives dedup, and the two are never reconciled.
func (l *NormalizedListing) DedupKey() string {
	price := ""
	if l.Price != nil {
		price = fmt.Sprintf("%.0f", *l.Price)
	}
	h := sha1.Sum([]byte(strings.ToLower(l.Name) + "|" + strings.ToLower(l.Location) + "|" + price))
	return hex.EncodeToString(h[:])
}

// EnrichmentRecord holds third-party augmentation data keyed by listing id.
type EnrichmentRecord struct {
	ListingID string `json:"listingId"`

	OwnerName      string `json:"ownerName,omitempty"`
	OwnerEmail     string `json:"ownerEmail,omitempty"`
	OwnerPhone     string `json:"ownerPhone,omitempty"`
	ContactFormURL string `json:"contactFormUrl,omitempty"`

	Website       string `json:"website,omitempty"`
	YearFounded   int    `json:"yearFounded,omitempty"`
	EmployeeCount int    `json:"employeeCount,omitempty"`
	FundingTotal  string `json:"fundingTotal,omitempty"`
	LinkedInURL   string `json:"linkedinUrl,omitempty"`
	Summary       string `json:"summary,omitempty"`

	Sources    []string  `json:"sources"`
	Confidence float64   `json:"confidence"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SyncRunResult records the outcome of one scheduler invocation of one
// adapter. Append-only: never mutated after creation.
type SyncRunResult struct {
	ScraperName     string    `json:"scraperName"`
	Success         bool      `json:"success"`
	RecordsScraped  int       `json:"recordsScraped"`
	RecordsEnriched int       `json:"recordsEnriched"`
	RecordsStored   int       `json:"recordsStored"`
	DurationMs      int64     `json:"durationMs"`
	Errors          []string  `json:"errors"`
	Timestamp       time.Time `json:"timestamp"`
}

// ProxySession is a rotating ephemeral browser identity. RequestCount and
// LastUsed are bumped on every request; once retired (IsActive=false) a
// session is never reactivated.
type ProxySession struct {
	ID            string            `json:"id"`
	ProxyEndpoint string            `json:"proxyEndpoint"`
	UserAgent     string            `json:"userAgent"`
	Headers       map[string]string `json:"headers"`
	Cookies       map[string]string `json:"cookies"`
	LastUsed      time.Time         `json:"lastUsed"`
	RequestCount  int               `json:"requestCount"`
	FailureCount  int               `json:"failureCount"`
	IsActive      bool              `json:"isActive"`
}

// ListingFilter narrows a listings query. Zero values mean "no constraint".
type ListingFilter struct {
	Source   string     `json:"source,omitempty"`
	Industry string     `json:"industry,omitempty"`
	Location string     `json:"location,omitempty"` // substring match
	MinPrice *float64   `json:"minPrice,omitempty"`
	MaxPrice *float64   `json:"maxPrice,omitempty"`
	DateFrom *time.Time `json:"dateFrom,omitempty"`
	DateTo   *time.Time `json:"dateTo,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}

// SourceStats aggregates listing counts and prices for one grouping key.
type SourceStats struct {
	Count    int     `json:"count"`
	AvgPrice float64 `json:"avgPrice"`
}

// ListingStats is the aggregate report returned by the store.
type ListingStats struct {
	TotalListings int                    `json:"totalListings"`
	AvgPrice      float64                `json:"avgPrice"`
	MinPrice      float64                `json:"minPrice"`
	MaxPrice      float64                `json:"maxPrice"`
	BySource      map[string]SourceStats `json:"bySource"`
	ByIndustry    map[string]SourceStats `json:"byIndustry"`
}

// ScrapeInsights summarizes one scrape batch for operators.
type ScrapeInsights struct {
	TotalListings int                  `json:"totalListings"`
	EnrichedCount int                  `json:"enrichedCount"`
	AveragePrice  float64              `json:"averagePrice"`
	MinPrice      float64              `json:"minPrice"`
	MaxPrice      float64              `json:"maxPrice"`
	AvgConfidence float64              `json:"avgConfidence"`
	ByIndustry    map[string]int       `json:"byIndustry"`
	ByState       map[string]int       `json:"byState"`
	TopValue      []*NormalizedListing `json:"topValue"`
}

// SearchParams are the caller-supplied knobs for one scrape run.
type SearchParams struct {
	Query    string  `json:"query"`
	Location string  `json:"location"`
	Industry string  `json:"industry"`
	MinPrice float64 `json:"minPrice"`
	MaxPrice float64 `json:"maxPrice"`
	MaxPages int     `json:"maxPages"`
}
