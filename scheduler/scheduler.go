// Package scheduler owns per-source job lifecycles: it triggers the
// session -> scrape -> normalize -> enrich -> store pipeline on a timer or
// on demand and records exactly one run outcome per invocation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"bizharvest/config"
	"bizharvest/models"
	"bizharvest/scraper"
	"bizharvest/services"
	"bizharvest/storage"
	"bizharvest/utils"
)

var (
	ErrUnknownScraper = errors.New("unknown scraper")
	ErrAlreadyRunning = errors.New("sync already running")
)

// Scraper is the slice of the scraper core the scheduler drives.
type Scraper interface {
	ScrapeSource(ctx context.Context, a *scraper.Adapter, params models.SearchParams) *scraper.Result
}

// Enricher is the slice of the enrichment agent the scheduler drives.
type Enricher interface {
	EnrichBatch(ctx context.Context, listings []*models.NormalizedListing) int
}

// JobStatus reports one source's scheduling state.
type JobStatus struct {
	Name     string                `json:"name"`
	State    string                `json:"state"` // idle | running
	Interval string                `json:"interval"`
	LastRun  *models.SyncRunResult `json:"lastRun,omitempty"`
}

// SyncStats aggregates recorded run outcomes.
type SyncStats struct {
	TotalRuns      int                       `json:"totalRuns"`
	SuccessfulRuns int                       `json:"successfulRuns"`
	FailedRuns     int                       `json:"failedRuns"`
	TotalScraped   int                       `json:"totalScraped"`
	TotalStored    int                       `json:"totalStored"`
	ByScraper      map[string]map[string]int `json:"byScraper"`
}

// Scheduler sequences pipelines per configured source. A source is never
// run concurrently with itself; concurrent runs of different sources are
// fine.
type Scheduler struct {
	cfg      *config.Config
	logger   *utils.Logger
	core     Scraper
	enricher Enricher
	store    storage.ListingStore
	audit    *storage.CSVAuditWriter
	cleaner  *services.Cleaner

	adapters map[string]*scraper.Adapter
	order    []string

	mu      sync.Mutex
	running map[string]bool
	lastRun map[string]*models.SyncRunResult

	done    chan struct{}
	tickers []*time.Ticker
	wg      sync.WaitGroup
}

// New wires a Scheduler. The audit writer may be nil.
func New(cfg *config.Config, adapters []*scraper.Adapter, core Scraper, enricher Enricher,
	store storage.ListingStore, audit *storage.CSVAuditWriter, logger *utils.Logger) *Scheduler {

	s := &Scheduler{
		cfg:      cfg,
		logger:   logger,
		core:     core,
		enricher: enricher,
		store:    store,
		audit:    audit,
		cleaner:  services.NewCleaner(logger, cfg.MinConfidence),
		adapters: make(map[string]*scraper.Adapter, len(adapters)),
		running:  make(map[string]bool),
		lastRun:  make(map[string]*models.SyncRunResult),
		done:     make(chan struct{}),
	}
	for _, a := range adapters {
		s.adapters[a.Name] = a
		s.order = append(s.order, a.Name)
	}
	sort.Strings(s.order)
	return s
}

// Start launches the per-source timers when auto-sync is enabled.
func (s *Scheduler) Start() {
	if !s.cfg.AutoSync {
		s.logger.Info("[scheduler] Auto-sync disabled — manual triggers only")
		return
	}

	for _, name := range s.order {
		a := s.adapters[name]
		interval := a.SyncInterval
		if interval <= 0 {
			interval = time.Duration(s.cfg.SyncIntervalMin) * time.Minute
		}

		ticker := time.NewTicker(interval)
		s.tickers = append(s.tickers, ticker)

		s.wg.Add(1)
		go func(name string, ticker *time.Ticker) {
			defer s.wg.Done()
			for {
				select {
				case <-ticker.C:
					if _, err := s.RunSingleSync(name); err != nil {
						s.logger.Warn("[scheduler] Timed sync %s skipped: %v", name, err)
					}
				case <-s.done:
					return
				}
			}
		}(name, ticker)

		s.logger.Info("[scheduler] %s scheduled every %v", name, interval)
	}
}

// RunSingleSync executes one full pipeline for the named source. A second
// trigger while the source is running is rejected.
func (s *Scheduler) RunSingleSync(name string) (*models.SyncRunResult, error) {
	a, ok := s.adapters[name]
	if !ok {
		return nil, fmt.Errorf("scheduler: %w: %q", ErrUnknownScraper, name)
	}

	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		return nil, fmt.Errorf("scheduler: %w: %s", ErrAlreadyRunning, name)
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()

	result := s.runPipeline(a, models.SearchParams{})

	s.mu.Lock()
	s.lastRun[name] = result
	s.mu.Unlock()

	if err := s.store.StoreSyncResult(result); err != nil {
		s.logger.Error("[scheduler] Failed to record %s outcome: %v", name, err)
	}
	return result, nil
}

// StartSync validates the trigger and runs the pipeline in the
// background; the outcome lands in the sync-result history.
func (s *Scheduler) StartSync(name string) error {
	if _, ok := s.adapters[name]; !ok {
		return fmt.Errorf("scheduler: %w: %q", ErrUnknownScraper, name)
	}
	s.mu.Lock()
	busy := s.running[name]
	s.mu.Unlock()
	if busy {
		return fmt.Errorf("scheduler: %w: %s", ErrAlreadyRunning, name)
	}

	go func() {
		if _, err := s.RunSingleSync(name); err != nil {
			s.logger.Warn("[scheduler] Triggered sync %s skipped: %v", name, err)
		}
	}()
	return nil
}

// RunAllSyncs triggers every configured source concurrently and waits for
// all of them. Sources already running are skipped.
func (s *Scheduler) RunAllSyncs() []*models.SyncRunResult {
	results := make([]*models.SyncRunResult, 0, len(s.order))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range s.order {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			r, err := s.RunSingleSync(name)
			if err != nil {
				s.logger.Warn("[scheduler] run-all: %v", err)
				return
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

// TestScraper runs the pipeline for diagnostics without persisting
// listings. The run outcome is still returned (not recorded).
func (s *Scheduler) TestScraper(name string, params models.SearchParams) (*scraper.Result, error) {
	a, ok := s.adapters[name]
	if !ok {
		return nil, fmt.Errorf("scheduler: %w: %q", ErrUnknownScraper, name)
	}

	ctx := context.Background()
	result := s.core.ScrapeSource(ctx, a, params)
	result.Listings = s.cleaner.Clean(result.Listings)
	if len(result.Listings) > 0 {
		s.enricher.EnrichBatch(ctx, result.Listings)
	}
	return result, nil
}

// runPipeline performs one scrape->enrich->store sequence and always
// produces exactly one SyncRunResult, whatever partially failed.
func (s *Scheduler) runPipeline(a *scraper.Adapter, params models.SearchParams) *models.SyncRunResult {
	started := time.Now()
	run := &models.SyncRunResult{
		ScraperName: a.Name,
		Errors:      []string{},
		Timestamp:   started,
	}

	ctx := context.Background()
	s.logger.Info("[scheduler] Sync starting: %s", a.Name)

	scrape := s.core.ScrapeSource(ctx, a, params)
	run.RecordsScraped = scrape.RawCount
	run.Errors = append(run.Errors, scrape.Errors...)

	scrape.Listings = s.cleaner.Clean(scrape.Listings)

	if len(scrape.Listings) > 0 {
		run.RecordsEnriched = s.enricher.EnrichBatch(ctx, scrape.Listings)

		stored, err := s.store.StoreListings(scrape.Listings, a.Name)
		if err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("store: %v", err))
		}
		run.RecordsStored = stored

		if removed, err := s.store.DeduplicateListings(a.Name); err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("dedup: %v", err))
		} else if removed > 0 {
			s.logger.Info("[scheduler] %s: dedup removed %d rows", a.Name, removed)
		}

		if s.cfg.RetentionDays > 0 {
			if _, err := s.store.CleanupOldListings(a.Name, s.cfg.RetentionDays); err != nil {
				run.Errors = append(run.Errors, fmt.Sprintf("retention: %v", err))
			}
		}

		if s.audit != nil {
			if err := s.audit.Append(scrape.Listings); err != nil {
				s.logger.Warn("[scheduler] CSV audit append failed: %v", err)
			}
		}
	}

	run.DurationMs = time.Since(started).Milliseconds()
	run.Success = run.RecordsScraped > 0 && len(run.Errors) == 0

	s.logger.Info("[scheduler] Sync finished: %s — scraped=%d enriched=%d stored=%d errors=%d (%dms)",
		a.Name, run.RecordsScraped, run.RecordsEnriched, run.RecordsStored, len(run.Errors), run.DurationMs)
	return run
}

// JobStatuses reports every configured source's state.
func (s *Scheduler) JobStatuses() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		a := s.adapters[name]
		state := "idle"
		if s.running[name] {
			state = "running"
		}
		statuses = append(statuses, JobStatus{
			Name:     name,
			State:    state,
			Interval: a.SyncInterval.String(),
			LastRun:  s.lastRun[name],
		})
	}
	return statuses
}

// GetSyncStats aggregates the recorded outcomes.
func (s *Scheduler) GetSyncStats() (*SyncStats, error) {
	results, err := s.store.GetLastSyncResults("")
	if err != nil {
		return nil, err
	}

	stats := &SyncStats{ByScraper: make(map[string]map[string]int)}
	for _, r := range results {
		stats.TotalRuns++
		if r.Success {
			stats.SuccessfulRuns++
		} else {
			stats.FailedRuns++
		}
		stats.TotalScraped += r.RecordsScraped
		stats.TotalStored += r.RecordsStored

		by := stats.ByScraper[r.ScraperName]
		if by == nil {
			by = make(map[string]int)
			stats.ByScraper[r.ScraperName] = by
		}
		by["runs"]++
		by["scraped"] += r.RecordsScraped
		by["stored"] += r.RecordsStored
	}
	return stats, nil
}

// AdapterNames returns the configured sources in stable order.
func (s *Scheduler) AdapterNames() []string {
	return append([]string(nil), s.order...)
}

// Adapters exposes the configured adapters for the control surface.
func (s *Scheduler) Adapters() []*scraper.Adapter {
	out := make([]*scraper.Adapter, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.adapters[name])
	}
	return out
}

// Close stops the timers and waits for in-flight timed runs to drain.
func (s *Scheduler) Close() {
	close(s.done)
	for _, t := range s.tickers {
		t.Stop()
	}
	s.wg.Wait()
}
