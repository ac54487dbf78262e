// Package server exposes the HTTP control surface: listing queries,
// aggregate stats, and manual sync triggers.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bizharvest/models"
	"bizharvest/scheduler"
	"bizharvest/scraper"
	"bizharvest/storage"
	"bizharvest/utils"
)

// Server hosts the gin router over the store and scheduler.
type Server struct {
	store  storage.ListingStore
	sched  *scheduler.Scheduler
	logger *utils.Logger
	addr   string

	httpSrv *http.Server
}

func New(addr string, store storage.ListingStore, sched *scheduler.Scheduler, logger *utils.Logger) *Server {
	return &Server{
		store:  store,
		sched:  sched,
		logger: logger,
		addr:   addr,
	}
}

// Router builds the full route table. Exposed separately so tests can
// drive it through httptest without binding a port.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		s.logger.Error("[server] Panic in %s %s: %v", c.Request.Method, c.Request.URL.Path, rec)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})
	}))
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.GET("/listings", s.handleListings)
		api.GET("/stats", s.handleStats)
		api.GET("/scrapers", s.handleScrapers)

		api.GET("/sync/status", s.handleSyncStatus)
		api.GET("/sync/results", s.handleSyncResults)
		api.GET("/sync/stats", s.handleSyncStats)
		api.POST("/sync/run/:scraperName", s.handleRunSync)
		api.POST("/sync/run-all", s.handleRunAll)

		api.POST("/test/:scraperName", s.handleTestScraper)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Endpoint not found"})
	})

	return router
}

// Start binds and serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
	}
	s.logger.Info("[server] Control surface listening on %s", s.addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(timeout time.Duration) error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	dbOK := s.store.HealthCheck()
	status := http.StatusOK
	state := "healthy"
	if !dbOK {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"database":  dbOK,
		"scrapers":  len(s.sched.AdapterNames()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListings(c *gin.Context) {
	filter := models.ListingFilter{
		Source:   c.Query("source"),
		Industry: c.Query("industry"),
		Location: c.Query("location"),
	}
	if v, ok := parseFloatQuery(c, "minPrice"); ok {
		filter.MinPrice = &v
	}
	if v, ok := parseFloatQuery(c, "maxPrice"); ok {
		filter.MaxPrice = &v
	}
	if t, ok := parseTimeQuery(c, "dateFrom"); ok {
		filter.DateFrom = &t
	}
	if t, ok := parseTimeQuery(c, "dateTo"); ok {
		filter.DateTo = &t
	}
	filter.Limit = parseIntQuery(c, "limit", 100)
	filter.Offset = parseIntQuery(c, "offset", 0)

	listings, err := s.store.GetListings(filter)
	if err != nil {
		s.logger.Error("[server] Listing query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    listings,
		"count":   len(listings),
		"filters": filter,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.GetStats()
	if err != nil {
		s.logger.Error("[server] Stats query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

func (s *Server) handleScrapers(c *gin.Context) {
	type scraperInfo struct {
		Name     string `json:"name"`
		BaseURL  string `json:"baseUrl"`
		MaxPages int    `json:"maxPages"`
		Interval string `json:"syncInterval"`
	}
	infos := make([]scraperInfo, 0)
	for _, a := range s.sched.Adapters() {
		infos = append(infos, scraperInfo{
			Name:     a.Name,
			BaseURL:  a.BaseURL,
			MaxPages: a.MaxPages,
			Interval: a.SyncInterval.String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "scrapers": infos})
}

func (s *Server) handleSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "jobs": s.sched.JobStatuses()})
}

func (s *Server) handleSyncResults(c *gin.Context) {
	results, err := s.store.GetLastSyncResults(c.Query("scraper"))
	if err != nil {
		s.logger.Error("[server] Sync result query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

func (s *Server) handleSyncStats(c *gin.Context) {
	stats, err := s.sched.GetSyncStats()
	if err != nil {
		s.logger.Error("[server] Sync stats query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// handleRunSync acknowledges immediately; the outcome is inspected later
// via /api/sync/results.
func (s *Server) handleRunSync(c *gin.Context) {
	name := c.Param("scraperName")
	if err := s.sched.StartSync(name); err != nil {
		status := http.StatusConflict
		if errors.Is(err, scheduler.ErrUnknownScraper) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "Sync started for " + name})
}

// handleRunAll acknowledges immediately; the runs proceed in the
// background and land in /api/sync/results.
func (s *Server) handleRunAll(c *gin.Context) {
	go s.sched.RunAllSyncs()
	c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "Sync started for all scrapers"})
}

func (s *Server) handleTestScraper(c *gin.Context) {
	name := c.Param("scraperName")

	var params models.SearchParams
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
			return
		}
	}

	result, err := s.sched.TestScraper(name, params)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"source":       result.Source,
		"pagesVisited": result.PagesVisited,
		"rawCount":     result.RawCount,
		"degraded":     result.Degraded,
		"errors":       result.Errors,
		"listings":     sampleListings(result, 10),
		"count":        len(result.Listings),
	})
}

func sampleListings(r *scraper.Result, n int) []*models.NormalizedListing {
	if len(r.Listings) <= n {
		return r.Listings
	}
	return r.Listings[:n]
}

func parseFloatQuery(c *gin.Context, key string) (float64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
