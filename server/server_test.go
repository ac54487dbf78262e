package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bizharvest/config"
	"bizharvest/models"
	"bizharvest/scheduler"
	"bizharvest/scraper"
	"bizharvest/utils"
)

type stubCore struct{ listings int }

func (s *stubCore) ScrapeSource(ctx context.Context, a *scraper.Adapter, params models.SearchParams) *scraper.Result {
	r := &scraper.Result{Source: a.Name, PagesVisited: 1, Errors: []string{}}
	for i := 0; i < s.listings; i++ {
		r.Listings = append(r.Listings, &models.NormalizedListing{
			Name:       fmt.Sprintf("Biz %d", i),
			Source:     a.Name,
			Confidence: 0.9,
		})
	}
	r.RawCount = s.listings
	return r
}

type stubEnricher struct{}

func (stubEnricher) EnrichBatch(ctx context.Context, listings []*models.NormalizedListing) int {
	return len(listings)
}

type memStore struct {
	mu         sync.Mutex
	healthy    bool
	listings   []*models.NormalizedListing
	results    []*models.SyncRunResult
	lastFilter models.ListingFilter
}

func (m *memStore) StoreListings(listings []*models.NormalizedListing, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings = append(m.listings, listings...)
	return len(listings), nil
}

func (m *memStore) GetListings(filter models.ListingFilter) ([]*models.NormalizedListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	return append([]*models.NormalizedListing{}, m.listings...), nil
}

func (m *memStore) GetStats() (*models.ListingStats, error) {
	return &models.ListingStats{TotalListings: len(m.listings)}, nil
}

func (m *memStore) StoreSyncResult(result *models.SyncRunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

func (m *memStore) GetLastSyncResults(scraperName string) ([]*models.SyncRunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.SyncRunResult{}, m.results...), nil
}

func (m *memStore) DeduplicateListings(source string) (int, error)          { return 0, nil }
func (m *memStore) CleanupOldListings(source string, days int) (int, error) { return 0, nil }
func (m *memStore) HealthCheck() bool                                       { return m.healthy }
func (m *memStore) Close() error                                            { return nil }

func newTestServer(store *memStore) *Server {
	cfg := &config.Config{}
	logger := utils.NewLogger(utils.LevelError)
	adapters := []*scraper.Adapter{
		{Name: "bizmarket", BaseURL: "https://bizmarket.example", MaxPages: 5, SyncInterval: time.Hour},
	}
	sched := scheduler.New(cfg, adapters, &stubCore{listings: 2}, stubEnricher{}, store, nil, logger)
	return New(":0", store, sched, logger)
}

func doRequest(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var parsed map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("%s %s: invalid JSON body %q: %v", method, path, w.Body.String(), err)
	}
	return w, parsed
}

func TestHealthHealthy(t *testing.T) {
	srv := newTestServer(&memStore{healthy: true})
	w, body := doRequest(t, srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200", w.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestHealthDegradedWithoutDatabase(t *testing.T) {
	srv := newTestServer(&memStore{healthy: false})
	w, body := doRequest(t, srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", w.Code)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestListingsPassesFilters(t *testing.T) {
	store := &memStore{healthy: true}
	store.listings = []*models.NormalizedListing{{Name: "HVAC Co"}}
	srv := newTestServer(store)

	w, body := doRequest(t, srv, http.MethodGet,
		"/api/listings?source=bizmarket&industry=HVAC&location=Austin&minPrice=1000&maxPrice=50000&limit=10&offset=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	if body["count"].(float64) != 1 {
		t.Errorf("count = %v, want 1", body["count"])
	}

	f := store.lastFilter
	if f.Source != "bizmarket" || f.Industry != "HVAC" || f.Location != "Austin" {
		t.Errorf("Filter fields not forwarded: %+v", f)
	}
	if f.MinPrice == nil || *f.MinPrice != 1000 {
		t.Errorf("MinPrice = %v, want 1000", f.MinPrice)
	}
	if f.MaxPrice == nil || *f.MaxPrice != 50000 {
		t.Errorf("MaxPrice = %v, want 50000", f.MaxPrice)
	}
	if f.Limit != 10 || f.Offset != 5 {
		t.Errorf("Limit/Offset = %d/%d, want 10/5", f.Limit, f.Offset)
	}
}

func TestListingsBadNumbersFallBack(t *testing.T) {
	store := &memStore{healthy: true}
	srv := newTestServer(store)

	w, _ := doRequest(t, srv, http.MethodGet, "/api/listings?minPrice=abc&limit=xyz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	if store.lastFilter.MinPrice != nil {
		t.Error("Unparseable minPrice should be ignored")
	}
	if store.lastFilter.Limit != 100 {
		t.Errorf("Limit = %d, want default 100", store.lastFilter.Limit)
	}
}

func TestStats(t *testing.T) {
	store := &memStore{healthy: true, listings: []*models.NormalizedListing{{Name: "A"}, {Name: "B"}}}
	srv := newTestServer(store)

	w, body := doRequest(t, srv, http.MethodGet, "/api/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	stats := body["stats"].(map[string]any)
	if stats["totalListings"].(float64) != 2 {
		t.Errorf("totalListings = %v, want 2", stats["totalListings"])
	}
}

func TestScrapersList(t *testing.T) {
	srv := newTestServer(&memStore{healthy: true})
	w, body := doRequest(t, srv, http.MethodGet, "/api/scrapers", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	scrapers := body["scrapers"].([]any)
	if len(scrapers) != 1 {
		t.Fatalf("Expected 1 scraper, got %d", len(scrapers))
	}
	first := scrapers[0].(map[string]any)
	if first["name"] != "bizmarket" {
		t.Errorf("name = %v, want bizmarket", first["name"])
	}
}

func TestRunSyncAcknowledgesAndRecords(t *testing.T) {
	store := &memStore{healthy: true}
	srv := newTestServer(store)

	w, body := doRequest(t, srv, http.MethodPost, "/api/sync/run/bizmarket", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("Status = %d, want 202: %v", w.Code, body)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	waitForResults(t, store, 1)
}

func TestRunSyncUnknownScraperIs404(t *testing.T) {
	srv := newTestServer(&memStore{healthy: true})
	w, body := doRequest(t, srv, http.MethodPost, "/api/sync/run/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
}

func TestRunAllAcknowledgesImmediately(t *testing.T) {
	store := &memStore{healthy: true}
	srv := newTestServer(store)

	w, body := doRequest(t, srv, http.MethodPost, "/api/sync/run-all", "")
	if w.Code != http.StatusAccepted {
		t.Errorf("Status = %d, want 202", w.Code)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}

	waitForResults(t, store, 1)
}

// waitForResults polls until the background run lands or times out.
func waitForResults(t *testing.T, store *memStore, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		n := len(store.results)
		store.mu.Unlock()
		if n >= want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("Background run never recorded %d outcome(s)", want)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestTestScraperSynchronous(t *testing.T) {
	store := &memStore{healthy: true}
	srv := newTestServer(store)

	w, body := doRequest(t, srv, http.MethodPost, "/api/test/bizmarket", `{"location":"Austin","maxPages":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200: %v", w.Code, body)
	}
	if body["count"].(float64) != 2 {
		t.Errorf("count = %v, want 2", body["count"])
	}
	if len(store.listings) != 0 {
		t.Errorf("Test endpoint must not persist, found %d listings", len(store.listings))
	}
}

func TestTestScraperBadBody(t *testing.T) {
	srv := newTestServer(&memStore{healthy: true})
	w, _ := doRequest(t, srv, http.MethodPost, "/api/test/bizmarket", `{"maxPages":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", w.Code)
	}
}

type panickyStore struct{ memStore }

func (p *panickyStore) GetStats() (*models.ListingStats, error) {
	panic("stats backend gone")
}

func TestPanicReturnsJSONEnvelope(t *testing.T) {
	store := &panickyStore{}
	cfg := &config.Config{}
	logger := utils.NewLogger(utils.LevelError)
	adapters := []*scraper.Adapter{{Name: "bizmarket", SyncInterval: time.Hour}}
	sched := scheduler.New(cfg, adapters, &stubCore{listings: 1}, stubEnricher{}, store, nil, logger)
	srv := New(":0", store, sched, logger)

	w, body := doRequest(t, srv, http.MethodGet, "/api/stats", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", w.Code)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	if body["error"] == "" || body["error"] == nil {
		t.Error("Expected a non-empty error message")
	}
}

func TestUnknownRouteEnvelope(t *testing.T) {
	srv := newTestServer(&memStore{healthy: true})
	w, body := doRequest(t, srv, http.MethodGet, "/api/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
	if body["error"] != "Endpoint not found" {
		t.Errorf("error = %v, want 'Endpoint not found'", body["error"])
	}
}

func TestSyncStatusAndStats(t *testing.T) {
	store := &memStore{healthy: true}
	srv := newTestServer(store)

	doRequest(t, srv, http.MethodPost, "/api/sync/run/bizmarket", "")
	waitForResults(t, store, 1)

	w, body := doRequest(t, srv, http.MethodGet, "/api/sync/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	jobs := body["jobs"].([]any)
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(jobs))
	}

	w, body = doRequest(t, srv, http.MethodGet, "/api/sync/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	stats := body["stats"].(map[string]any)
	if stats["totalRuns"].(float64) != 1 {
		t.Errorf("totalRuns = %v, want 1", stats["totalRuns"])
	}
}
