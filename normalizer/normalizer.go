// Package normalizer turns raw scrape output into canonical listings.
// Everything here is a pure transformation: no I/O, and normalizing an
// already-canonical record changes nothing.
package normalizer

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"bizharvest/models"
)

const (
	maxNameLen        = 200
	maxDescriptionLen = 2000
)

var (
	// priceTokenRegexp captures one amount with an optional scale suffix.
	priceTokenRegexp = regexp.MustCompile(`(?i)([\d][\d,]*(?:\.\d+)?)\s*(thousand|million|billion|k|m|b)?`)
	// rangeSplitRegexp separates the two ends of an explicit price range.
	rangeSplitRegexp = regexp.MustCompile(`(?i)(?:\s+to\s+|\s*[–-]\s*)\$?`)
	// zipRegexp matches a US zip at the end of a location segment.
	zipRegexp = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
	// controlRegexp strips characters that never belong in listing text.
	controlRegexp = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

var priceScales = map[string]float64{
	"k": 1e3, "thousand": 1e3,
	"m": 1e6, "million": 1e6,
	"b": 1e9, "billion": 1e9,
}

// Normalizer holds the location-parse cache. The cache is owned, injected
// state: construct one per process and share it.
type Normalizer struct {
	mu            sync.Mutex
	locationCache map[string]models.ParsedLocation
}

// New creates a Normalizer with an empty parse cache.
func New() *Normalizer {
	return &Normalizer{locationCache: make(map[string]models.ParsedLocation)}
}

// Normalize converts one raw record into a canonical listing, or nil when
// the record lacks a usable name.
func (n *Normalizer) Normalize(raw *models.RawScrapeRecord) *models.NormalizedListing {
	name := CleanText(raw.Field("title"), maxNameLen)
	if name == "" || strings.EqualFold(name, "n/a") {
		return nil
	}

	location := CleanText(raw.Field("location"), 0)
	price, priceRange := ParsePrice(raw.Field("price"))
	revenue, _ := ParsePrice(raw.Field("revenue"))
	description := CleanText(raw.Field("description"), maxDescriptionLen)
	industry := MapIndustry(raw.Field("industry"), description)
	link := raw.Field("link")

	listing := &models.NormalizedListing{
		ID:           uuid.New().String(),
		Source:       raw.Source,
		Name:         name,
		Industry:     industry,
		Location:     location,
		Parsed:       n.ParseLocation(location),
		Price:        price,
		PriceRange:   priceRange,
		Revenue:      revenue,
		Description:  description,
		ContactLink:  link,
		Tags:         DeriveTags(industry, description),
		ScrapedAt:    raw.ScrapedAt,
		OriginalData: raw.Fields,
	}

	if lat, lng, ok := parseCoordinates(raw.Field("lat"), raw.Field("lng")); ok {
		listing.Coordinates = &models.Coordinates{Lat: lat, Lng: lng}
	}

	listing.Confidence = scoreConfidence(listing)
	return listing
}

// CleanText trims, collapses whitespace, strips control characters and
// truncates at a word boundary with an ellipsis when maxLen > 0.
func CleanText(s string, maxLen int) string {
	s = controlRegexp.ReplaceAllString(s, " ")
	fields := strings.FieldsFunc(s, func(r rune) bool { return unicode.IsSpace(r) })
	s = strings.Join(fields, " ")

	if maxLen > 0 && len(s) > maxLen {
		// Never slice mid-rune.
		end := maxLen
		for end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
		cut := s[:end]
		if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
			cut = cut[:idx]
		}
		s = strings.TrimRight(cut, " .,;:") + "..."
	}
	return s
}

// ParsePrice extracts an amount, honoring K/M/B and word suffixes, and an
// explicit range when present. For a range the listing price is the lower
// end. Returns (nil, nil) when no amount is found.
func ParsePrice(raw string) (*float64, *models.PriceRange) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	if parts := rangeSplitRegexp.Split(raw, 2); len(parts) == 2 {
		lo := parseAmount(parts[0])
		hi := parseAmount(parts[1])
		if lo != nil && hi != nil {
			if *lo > *hi {
				lo, hi = hi, lo
			}
			return lo, &models.PriceRange{Min: lo, Max: hi}
		}
	}

	return parseAmount(raw), nil
}

func parseAmount(s string) *float64 {
	m := priceTokenRegexp.FindStringSubmatch(s)
	if m == nil {
		return nil
	}

	num, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	if scale, ok := priceScales[strings.ToLower(m[2])]; ok {
		num *= scale
	}
	if num <= 0 {
		return nil
	}
	return &num
}

// ParseLocation splits a free-text location into city/state/country/zip.
// Parses are cached by the raw string.
func (n *Normalizer) ParseLocation(raw string) models.ParsedLocation {
	if raw == "" {
		return models.ParsedLocation{}
	}

	n.mu.Lock()
	if cached, ok := n.locationCache[raw]; ok {
		n.mu.Unlock()
		return cached
	}
	n.mu.Unlock()

	parsed := parseLocation(raw)

	n.mu.Lock()
	n.locationCache[raw] = parsed
	n.mu.Unlock()
	return parsed
}

func parseLocation(raw string) models.ParsedLocation {
	var loc models.ParsedLocation

	work := raw
	if m := zipRegexp.FindString(work); m != "" {
		loc.Zip = m
		work = strings.TrimSpace(zipRegexp.ReplaceAllString(work, ""))
		work = strings.TrimRight(work, ", ")
	}

	segments := strings.Split(work, ",")
	for i := range segments {
		segments[i] = strings.TrimSpace(segments[i])
	}

	switch len(segments) {
	case 1:
		if code, ok := asStateCode(segments[0]); ok {
			loc.State = code
			loc.Country = "US"
		} else {
			loc.City = segments[0]
		}
	case 2:
		loc.City = segments[0]
		if code, ok := asStateCode(segments[1]); ok {
			loc.State = code
			loc.Country = "US"
		} else {
			loc.Country = segments[1]
		}
	default:
		loc.City = segments[0]
		if code, ok := asStateCode(segments[1]); ok {
			loc.State = code
		} else {
			loc.State = segments[1]
		}
		loc.Country = segments[len(segments)-1]
	}

	if loc.Zip != "" && loc.Country == "" {
		loc.Country = "US"
	}
	return loc
}

// asStateCode resolves a segment to a two-letter US state code.
func asStateCode(s string) (string, bool) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if len(up) == 2 {
		if _, ok := stateNames[up]; ok {
			return up, true
		}
	}
	for code, name := range stateNames {
		if strings.EqualFold(name, s) {
			return code, true
		}
	}
	return "", false
}

// DeriveTags builds the sorted tag set from the industry plus a fixed
// keyword scan of the description.
func DeriveTags(industry, description string) []string {
	set := make(map[string]struct{})
	if industry != "" {
		set[strings.ToLower(industry)] = struct{}{}
	}

	desc := strings.ToLower(description)
	for _, kw := range tagKeywords {
		if strings.Contains(desc, kw) {
			set[kw] = struct{}{}
		}
	}

	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func parseCoordinates(latRaw, lngRaw string) (float64, float64, bool) {
	if latRaw == "" || lngRaw == "" {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(latRaw, 64)
	lng, err2 := strconv.ParseFloat(lngRaw, 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}

// scoreConfidence weights the completeness of a listing: name 0.25,
// location 0.25 (full city+state) or 0.15 (any), price 0.25, and the
// remaining 0.25 split across description, industry and contact link.
func scoreConfidence(l *models.NormalizedListing) float64 {
	score := 0.0

	if len(l.Name) >= 3 {
		score += 0.25
	}
	switch {
	case l.Parsed.City != "" && l.Parsed.State != "":
		score += 0.25
	case l.Location != "":
		score += 0.15
	}
	if l.Price != nil {
		score += 0.25
	}

	if n := len(l.Description); n > 0 {
		frac := float64(n) / 200.0
		if frac > 1 {
			frac = 1
		}
		score += 0.10 * frac
	}
	if l.Industry != "" {
		score += 0.10
	}
	if l.ContactLink != "" {
		score += 0.05
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
