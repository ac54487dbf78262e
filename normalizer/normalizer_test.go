package normalizer

import (
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"bizharvest/models"
)

func rawRecord(fields map[string]string) *models.RawScrapeRecord {
	return &models.RawScrapeRecord{
		Source:    "bizmarket",
		PageURL:   "https://example.com/search",
		Fields:    fields,
		ScrapedAt: time.Now(),
	}
}

func TestParsePriceSuffixes(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"$1.2M", 1200000},
		{"$100K", 100000},
		{"100k", 100000},
		{"$2B", 2000000000},
		{"1.5 million", 1500000},
		{"750 thousand", 750000},
		{"3 billion", 3000000000},
		{"$750,000", 750000},
		{"$750K", 750000},
		{"USD 99", 99},
	}

	for _, tt := range tests {
		price, _ := ParsePrice(tt.raw)
		if price == nil {
			t.Errorf("ParsePrice(%q) = nil; want %.0f", tt.raw, tt.want)
			continue
		}
		if *price != tt.want {
			t.Errorf("ParsePrice(%q) = %.0f; want %.0f", tt.raw, *price, tt.want)
		}
	}
}

func TestParsePriceNoAmount(t *testing.T) {
	for _, raw := range []string{"", "Contact seller", "N/A", "negotiable"} {
		if price, rng := ParsePrice(raw); price != nil || rng != nil {
			t.Errorf("ParsePrice(%q) should yield nothing", raw)
		}
	}
}

func TestParsePriceRange(t *testing.T) {
	price, rng := ParsePrice("$100K - $500K")
	if price == nil || *price != 100000 {
		t.Fatalf("range price: got %v, want 100000", price)
	}
	if rng == nil || rng.Min == nil || rng.Max == nil {
		t.Fatal("expected both range ends")
	}
	if *rng.Min != 100000 || *rng.Max != 500000 {
		t.Errorf("range: got [%.0f, %.0f], want [100000, 500000]", *rng.Min, *rng.Max)
	}

	// Reversed ends are reordered so min <= max holds.
	_, rng = ParsePrice("$500K - $100K")
	if rng == nil || *rng.Min != 100000 || *rng.Max != 500000 {
		t.Error("reversed range should be reordered")
	}

	price, rng = ParsePrice("250K to 1M")
	if price == nil || *price != 250000 || rng == nil || *rng.Max != 1000000 {
		t.Error("word-separated range should parse")
	}
}

func TestParseLocation(t *testing.T) {
	n := New()

	tests := []struct {
		raw  string
		want models.ParsedLocation
	}{
		{"Austin, TX", models.ParsedLocation{City: "Austin", State: "TX", Country: "US"}},
		{"Austin, Texas", models.ParsedLocation{City: "Austin", State: "TX", Country: "US"}},
		{"Austin, TX 78701", models.ParsedLocation{City: "Austin", State: "TX", Country: "US", Zip: "78701"}},
		{"Portland, OR, USA", models.ParsedLocation{City: "Portland", State: "OR", Country: "USA"}},
		{"Toronto, Canada", models.ParsedLocation{City: "Toronto", Country: "Canada"}},
		{"Chicago", models.ParsedLocation{City: "Chicago"}},
		{"", models.ParsedLocation{}},
	}

	for _, tt := range tests {
		got := n.ParseLocation(tt.raw)
		if got != tt.want {
			t.Errorf("ParseLocation(%q) = %+v; want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestParseLocationCaches(t *testing.T) {
	n := New()
	first := n.ParseLocation("Austin, TX")
	second := n.ParseLocation("Austin, TX")
	if first != second {
		t.Error("cached parse must be identical")
	}
	if len(n.locationCache) != 1 {
		t.Errorf("cache size: got %d, want 1", len(n.locationCache))
	}
}

func TestCleanTextTruncatesAtWordBoundary(t *testing.T) {
	got := CleanText("alpha beta gamma delta", 12)
	if got != "alpha beta..." {
		t.Errorf("CleanText truncation: got %q", got)
	}

	if got := CleanText("  too \t many\nspaces  ", 0); got != "too many spaces" {
		t.Errorf("whitespace collapse: got %q", got)
	}
}

func TestCleanTextTruncatesOnRuneBoundary(t *testing.T) {
	in := strings.Repeat("日本語テキスト", 50)
	got := CleanText(in, 100)

	if !utf8.ValidString(got) {
		t.Fatalf("truncated output is not valid UTF-8: %q", got)
	}
	if len(got) > 100+len("...") {
		t.Errorf("truncated output too long: %d bytes", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}
}

func TestMapIndustry(t *testing.T) {
	tests := []struct {
		raw  string
		desc string
		want string
	}{
		{"restaurant", "", "Restaurants & Food"},
		{"Pizza Restaurant For Sale", "", "Restaurants & Food"},
		{"hvac", "", "Home Services"},
		{"Home Services", "", "Home Services"}, // canonical maps to itself
		{"underwater basket weaving", "", "Underwater Basket Weaving"},
		{"", "established HVAC contractor", "Home Services"},
		{"", "", ""},
	}

	for _, tt := range tests {
		if got := MapIndustry(tt.raw, tt.desc); got != tt.want {
			t.Errorf("MapIndustry(%q, %q) = %q; want %q", tt.raw, tt.desc, got, tt.want)
		}
	}
}

func TestNormalizeDropsNamelessRecords(t *testing.T) {
	n := New()
	for _, title := range []string{"", "   ", "N/A"} {
		if got := n.Normalize(rawRecord(map[string]string{"title": title, "price": "$100K"})); got != nil {
			t.Errorf("record with title %q should be dropped", title)
		}
	}
}

func TestNormalizeEndToEndRecord(t *testing.T) {
	n := New()
	listing := n.Normalize(rawRecord(map[string]string{
		"title":    "Joe's HVAC",
		"price":    "$750K",
		"location": "Austin, TX",
	}))
	if listing == nil {
		t.Fatal("listing should not be dropped")
	}

	if listing.Name != "Joe's HVAC" {
		t.Errorf("name: got %q", listing.Name)
	}
	if listing.Price == nil || *listing.Price != 750000 {
		t.Errorf("price: got %v, want 750000", listing.Price)
	}
	if listing.Parsed.City != "Austin" || listing.Parsed.State != "TX" {
		t.Errorf("parsed location: got %+v", listing.Parsed)
	}
	if listing.Confidence < 0.75 {
		t.Errorf("confidence: got %.2f, want >= 0.75", listing.Confidence)
	}
	if listing.ID == "" {
		t.Error("listing must get an id")
	}
}

func TestConfidenceBounds(t *testing.T) {
	n := New()
	records := []map[string]string{
		{"title": "X"},
		{"title": "Complete Deal Co", "price": "$5M", "location": "Denver, CO", "industry": "manufacturing", "description": "Long established profitable turnkey operation with recurring revenue and loyal customers built over thirty years of steady growth in the regional market serving hundreds of accounts.", "link": "https://example.com/contact"},
		{"title": "Mid", "location": "Somewhere"},
	}

	for i, fields := range records {
		l := n.Normalize(rawRecord(fields))
		if l == nil {
			t.Fatalf("record %d dropped unexpectedly", i)
		}
		if l.Confidence < 0 || l.Confidence > 1 {
			t.Errorf("record %d: confidence %.3f out of [0,1]", i, l.Confidence)
		}
	}
}

func TestNormalizeIdempotence(t *testing.T) {
	n := New()
	first := n.Normalize(rawRecord(map[string]string{
		"title":       "Joe's HVAC",
		"price":       "$750K",
		"location":    "Austin, TX",
		"industry":    "hvac",
		"description": "Established HVAC contractor, turnkey operation.",
		"link":        "https://example.com/listing/1",
	}))
	if first == nil {
		t.Fatal("first pass dropped the record")
	}

	// Feed the canonical output back through as if re-scraped.
	roundTrip := rawRecord(map[string]string{
		"title":       first.Name,
		"price":       strconv.FormatFloat(*first.Price, 'f', -1, 64),
		"location":    first.Location,
		"industry":    first.Industry,
		"description": first.Description,
		"link":        first.ContactLink,
	})
	second := n.Normalize(roundTrip)
	if second == nil {
		t.Fatal("second pass dropped the record")
	}

	if second.Name != first.Name ||
		second.Location != first.Location ||
		second.Industry != first.Industry ||
		second.Description != first.Description ||
		second.ContactLink != first.ContactLink {
		t.Error("text fields must be stable under re-normalization")
	}
	if *second.Price != *first.Price {
		t.Errorf("price drifted: %.0f -> %.0f", *first.Price, *second.Price)
	}
	if second.Parsed != first.Parsed {
		t.Errorf("parsed location drifted: %+v -> %+v", first.Parsed, second.Parsed)
	}
	if !reflect.DeepEqual(second.Tags, first.Tags) {
		t.Errorf("tags drifted: %v -> %v", first.Tags, second.Tags)
	}
	if second.Confidence != first.Confidence {
		t.Errorf("confidence drifted: %.3f -> %.3f", first.Confidence, second.Confidence)
	}
}

func TestDeriveTags(t *testing.T) {
	tags := DeriveTags("Home Services", "Profitable, established business. Turnkey with seller financing available.")
	want := []string{"established", "home services", "profitable", "seller financing", "turnkey"}
	if !reflect.DeepEqual(tags, want) {
		t.Errorf("tags: got %v, want %v", tags, want)
	}
}

func TestDedupKeyStability(t *testing.T) {
	price := 750000.0
	a := &models.NormalizedListing{Name: "Joe's HVAC", Location: "Austin, TX", Price: &price}
	b := &models.NormalizedListing{Name: "JOE'S HVAC", Location: "austin, tx", Price: &price}
	if a.DedupKey() != b.DedupKey() {
		t.Error("dedup key must be case-insensitive over name+location")
	}

	c := &models.NormalizedListing{Name: "Joe's HVAC", Location: "Dallas, TX", Price: &price}
	if a.DedupKey() == c.DedupKey() {
		t.Error("different locations must produce different keys")
	}
}
