package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bizharvest/browser"
	"bizharvest/config"
	"bizharvest/enrich"
	"bizharvest/models"
	"bizharvest/normalizer"
	"bizharvest/scheduler"
	"bizharvest/scraper"
	"bizharvest/server"
	"bizharvest/services"
	"bizharvest/session"
	"bizharvest/storage"
	"bizharvest/utils"
)

func main() {
	cfg := config.Load()
	logger := utils.NewLogger(utils.ParseLevel(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	cmd := "start"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "start":
		runStart(cfg, logger)
	case "test":
		if len(os.Args) < 3 {
			fmt.Println("Usage: bizharvest test <scraper> [location]")
			os.Exit(2)
		}
		location := ""
		if len(os.Args) > 3 {
			location = os.Args[3]
		}
		runTest(cfg, logger, os.Args[2], location)
	case "sync":
		if len(os.Args) < 3 {
			fmt.Println("Usage: bizharvest sync <scraper|all>")
			os.Exit(2)
		}
		runSync(cfg, logger, os.Args[2])
	case "health":
		runHealth(cfg, logger)
	default:
		fmt.Printf("Unknown command %q\n\n", cmd)
		fmt.Println("Commands:")
		fmt.Println("  start            run the full service (default)")
		fmt.Println("  test <scraper>   scrape one source without persisting")
		fmt.Println("  sync <scraper>   run one pipeline and exit ('all' for every source)")
		fmt.Println("  health           check database connectivity")
		os.Exit(2)
	}
}

// pipeline bundles the wired components plus their teardown order.
type pipeline struct {
	store    *storage.Store
	audit    *storage.CSVAuditWriter
	sessions *session.Manager
	pool     browser.Pool
	sched    *scheduler.Scheduler
	logger   *utils.Logger
}

// buildPipeline wires the full stack. With needStore=false the runs go
// through a no-op store so nothing is persisted.
func buildPipeline(cfg *config.Config, logger *utils.Logger, needStore bool) (*pipeline, error) {
	p := &pipeline{logger: logger}

	var store storage.ListingStore = noopStore{}
	if needStore {
		s, err := storage.NewStore(cfg.DSN(), logger)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		p.store = s
		store = s
	}

	if cfg.CSVAuditPath != "" {
		audit, err := storage.NewCSVAuditWriter(cfg.CSVAuditPath)
		if err != nil {
			logger.Warn("CSV audit disabled: %v", err)
		} else {
			p.audit = audit
		}
	}

	p.sessions = session.NewManager(cfg, logger)
	p.pool = browser.NewChromePool(cfg.Headless, cfg.ChromeBin, logger)

	core := scraper.NewCore(cfg, p.pool, p.sessions, normalizer.New(), logger)
	agent := enrich.NewAgent(cfg, logger)
	adapters := scraper.BuiltinAdapters(cfg.DefaultMaxPages, time.Duration(cfg.SyncIntervalMin)*time.Minute)

	p.sched = scheduler.New(cfg, adapters, core, agent, store, p.audit, logger)
	return p, nil
}

func (p *pipeline) close() {
	p.sched.Close()
	if err := p.pool.Close(); err != nil {
		p.logger.Warn("Browser pool close: %v", err)
	}
	p.sessions.Close()
	if p.audit != nil {
		if err := p.audit.Close(); err != nil {
			p.logger.Warn("CSV audit close: %v", err)
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			p.logger.Warn("Store close: %v", err)
		}
	}
}

func runStart(cfg *config.Config, logger *utils.Logger) {
	logger.Info("=== BizHarvest starting ===")
	logger.Info("Config — concurrency: %d | max pages: %d | rate: %dms | auto-sync: %v",
		cfg.MaxConcurrency, cfg.DefaultMaxPages, cfg.RateLimitMs, cfg.AutoSync)

	p, err := buildPipeline(cfg, logger, true)
	if err != nil {
		logger.Error("Startup failed: %v", err)
		os.Exit(1)
	}

	p.sched.Start()

	srv := server.New(cfg.ServerAddr, p.store, p.sched, logger)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info("Received %v — shutting down", s)
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server failed: %v", err)
		}
	}

	if err := srv.Shutdown(10 * time.Second); err != nil {
		logger.Warn("HTTP shutdown: %v", err)
	}
	p.close()
	logger.Info("=== BizHarvest stopped ===")
}

func runTest(cfg *config.Config, logger *utils.Logger, name, location string) {
	p, err := buildPipeline(cfg, logger, false)
	if err != nil {
		logger.Error("Startup failed: %v", err)
		os.Exit(1)
	}
	defer p.close()

	result, err := p.sched.TestScraper(name, models.SearchParams{Location: location, MaxPages: 1})
	if err != nil {
		logger.Error("Test run failed: %v", err)
		os.Exit(1)
	}

	logger.Info("Test %s — pages: %d | raw: %d | normalized: %d | degraded: %v",
		result.Source, result.PagesVisited, result.RawCount, len(result.Listings), result.Degraded)
	for _, e := range result.Errors {
		logger.Warn("  error: %s", e)
	}
	insights := services.NewInsightService(logger)
	insights.Print(insights.Generate(result.Listings))

	if len(result.Listings) == 0 {
		os.Exit(1)
	}
}

func runSync(cfg *config.Config, logger *utils.Logger, target string) {
	p, err := buildPipeline(cfg, logger, true)
	if err != nil {
		logger.Error("Startup failed: %v", err)
		os.Exit(1)
	}
	defer p.close()

	var runs []*models.SyncRunResult
	if target == "all" {
		runs = p.sched.RunAllSyncs()
	} else {
		run, err := p.sched.RunSingleSync(target)
		if err != nil {
			logger.Error("Sync failed: %v", err)
			os.Exit(1)
		}
		runs = append(runs, run)
	}

	failed := false
	for _, run := range runs {
		logger.Info("Sync %s — success: %v | scraped: %d | enriched: %d | stored: %d (%dms)",
			run.ScraperName, run.Success, run.RecordsScraped, run.RecordsEnriched, run.RecordsStored, run.DurationMs)
		for _, e := range run.Errors {
			logger.Warn("  error: %s", e)
		}
		if !run.Success {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func runHealth(cfg *config.Config, logger *utils.Logger) {
	store, err := storage.NewStore(cfg.DSN(), logger)
	if err != nil {
		logger.Error("Database unreachable: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	if !store.HealthCheck() {
		logger.Error("Database ping failed")
		os.Exit(1)
	}
	logger.Info("Database OK (%s:%s/%s)", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
}

// noopStore backs test runs that must not persist anything.
type noopStore struct{}

func (noopStore) StoreListings(listings []*models.NormalizedListing, source string) (int, error) {
	return 0, nil
}
func (noopStore) GetListings(filter models.ListingFilter) ([]*models.NormalizedListing, error) {
	return nil, nil
}
func (noopStore) GetStats() (*models.ListingStats, error) { return &models.ListingStats{}, nil }
func (noopStore) StoreSyncResult(result *models.SyncRunResult) error {
	return nil
}
func (noopStore) GetLastSyncResults(scraperName string) ([]*models.SyncRunResult, error) {
	return nil, nil
}
func (noopStore) DeduplicateListings(source string) (int, error) { return 0, nil }
func (noopStore) CleanupOldListings(source string, daysOld int) (int, error) {
	return 0, nil
}
func (noopStore) HealthCheck() bool { return true }
func (noopStore) Close() error      { return nil }
