package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bizharvest/browser"
	"bizharvest/config"
	"bizharvest/models"
	"bizharvest/normalizer"
	"bizharvest/session"
	"bizharvest/utils"
)

// pageSafetyCap bounds pagination regardless of configured MaxPages so a
// lying "next" control can never produce a runaway loop.
const pageSafetyCap = 50

// Result is the outcome of scraping one source.
type Result struct {
	Source       string
	PagesVisited int
	RawCount     int
	Listings     []*models.NormalizedListing
	Degraded     bool
	Errors       []string
}

// Core drives browser automation for all adapters through a bounded worker
// pool. It hands raw records straight to the normalizer and never persists
// anything itself.
type Core struct {
	logger   *utils.Logger
	sessions *session.Manager
	pool     browser.Pool
	norm     *normalizer.Normalizer
	retry    *utils.RetryConfig
	workers  *utils.WorkerPool

	navTimeout       time.Duration
	settleDelay      time.Duration
	scrollPause      time.Duration
	captchaWait      time.Duration
	rateLimitBackoff time.Duration
}

// NewCore wires the scraper core from configuration.
func NewCore(cfg *config.Config, pool browser.Pool, sessions *session.Manager,
	norm *normalizer.Normalizer, logger *utils.Logger) *Core {
	return &Core{
		logger:   logger,
		sessions: sessions,
		pool:     pool,
		norm:     norm,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		workers:          utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs),
		navTimeout:       cfg.NavTimeout,
		settleDelay:      3 * time.Second,
		scrollPause:      300 * time.Millisecond,
		captchaWait:      10 * time.Second,
		rateLimitBackoff: 30 * time.Second,
	}
}

// ScrapeSource walks one adapter's result pages in order, extracting and
// normalizing listings. Per-page failures are collected into the result's
// error list; the walk stops on an empty page, a missing next control, the
// page budget, or a navigation failure.
func (c *Core) ScrapeSource(ctx context.Context, a *Adapter, params models.SearchParams) *Result {
	result := &Result{Source: a.Name}

	sess := c.sessions.CreateSession()
	proxyUser, proxyPass := c.sessions.Credentials()
	page, err := c.pool.OpenPage(ctx, browser.Identity{
		UserAgent:     sess.UserAgent,
		ProxyEndpoint: sess.ProxyEndpoint,
		ProxyUsername: proxyUser,
		ProxyPassword: proxyPass,
		Headers:       sess.Headers,
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("open page: %v", err))
		return result
	}
	defer page.Close()

	visited := utils.NewSet()
	seenLinks := utils.NewSet()
	currentURL := a.BuildSearchURL(params)
	maxPages := a.effectiveMaxPages(params)

	for pageNum := 1; pageNum <= maxPages; pageNum++ {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "run cancelled")
			break
		}
		if !visited.Add(currentURL) {
			c.logger.Debug("[%s] Next control loops back to %s — stopping", a.Name, currentURL)
			break
		}

		var degraded bool
		err := c.retry.Do(ctx, fmt.Sprintf("%s-page-%d", a.Name, pageNum), func() error {
			var perr error
			degraded, perr = c.preparePage(ctx, page, currentURL)
			if perr != nil {
				c.sessions.RecordFailure(sess.ID)
			}
			return perr
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("page %d: %v", pageNum, err))
			break
		}
		c.sessions.RecordUse(sess.ID)
		result.Degraded = result.Degraded || degraded
		result.PagesVisited++

		var cards []map[string]string
		if err := page.Evaluate(ctx, a.extractionJS(), &cards); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("page %d extract: %v", pageNum, err))
			break
		}

		c.logger.Debug("[%s] Page %d — %d cards", a.Name, pageNum, len(cards))
		if len(cards) == 0 {
			c.logger.Info("[%s] Page %d yielded 0 records — stopping", a.Name, pageNum)
			break
		}

		scrapedAt := time.Now()
		for _, fields := range cards {
			raw := &models.RawScrapeRecord{
				Source:    a.Name,
				PageURL:   currentURL,
				Fields:    fields,
				ScrapedAt: scrapedAt,
			}
			result.RawCount++

			if link := raw.Field("link"); link != "" && !seenLinks.Add(link) {
				continue
			}

			listing := c.norm.Normalize(raw)
			if listing == nil {
				c.logger.Debug("[%s] Dropped record without usable name (page %d)", a.Name, pageNum)
				continue
			}
			result.Listings = append(result.Listings, listing)
		}

		var nextURL string
		if err := page.Evaluate(ctx, a.nextPageJS(), &nextURL); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("page %d next-control: %v", pageNum, err))
			break
		}
		if nextURL == "" {
			// Some sites render results without a next control; fall
			// back to bumping the page parameter when the adapter has
			// one. The empty-page check above still ends the walk.
			nextURL = a.nextPageURL(currentURL, pageNum+1)
		}
		if nextURL == "" {
			c.logger.Debug("[%s] No next control after page %d", a.Name, pageNum)
			break
		}
		currentURL = nextURL
	}

	c.logger.Info("[%s] Scrape done — pages=%d raw=%d listings=%d errors=%d",
		a.Name, result.PagesVisited, result.RawCount, len(result.Listings), len(result.Errors))
	return result
}

// ScrapeAll runs every adapter concurrently through the bounded worker
// pool. Sources are independent: one failing never aborts its siblings.
func (c *Core) ScrapeAll(ctx context.Context, adapters []*Adapter, params models.SearchParams) map[string]*Result {
	results := make(map[string]*Result, len(adapters))
	var mu sync.Mutex

	for _, a := range adapters {
		adapter := a
		c.workers.SubmitErr(func() error {
			r := c.ScrapeSource(ctx, adapter, params)
			mu.Lock()
			results[adapter.Name] = r
			mu.Unlock()
			return nil
		}, func(err error) {
			mu.Lock()
			results[adapter.Name] = &Result{
				Source: adapter.Name,
				Errors: []string{err.Error()},
			}
			mu.Unlock()
		})
	}
	c.workers.Wait()
	return results
}
