// Package enrich fans a normalized listing out to independent third-party
// augmentation sources and merges the partial, possibly-failing results.
package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bizharvest/config"
	"bizharvest/models"
	"bizharvest/utils"
)

// Source is one third-party augmentation backend. A Lookup failure or
// timeout is isolated to that source.
type Source interface {
	Name() string
	Lookup(ctx context.Context, listing *models.NormalizedListing) (*models.EnrichmentRecord, error)
}

// Agent coordinates fan-out, merge and batch throttling.
type Agent struct {
	logger  *utils.Logger
	sources []Source

	timeout    time.Duration
	batchSize  int
	batchDelay time.Duration
}

// NewAgent builds the agent with the built-in source set.
func NewAgent(cfg *config.Config, logger *utils.Logger) *Agent {
	return &Agent{
		logger:     logger,
		sources:    builtinSources(cfg),
		timeout:    cfg.EnrichTimeout,
		batchSize:  cfg.EnrichBatchSize,
		batchDelay: cfg.EnrichBatchDelay,
	}
}

// sourceOutcome is one settled fan-out result, success or failure.
type sourceOutcome struct {
	name   string
	record *models.EnrichmentRecord
	err    error
}

// Enrich augments one listing, waiting for every source to settle and
// merging whatever succeeded. The listing always comes back; with zero
// contributing sources its Enrichment stays nil.
func (a *Agent) Enrich(ctx context.Context, listing *models.NormalizedListing) *models.NormalizedListing {
	outcomes := make([]sourceOutcome, len(a.sources))
	var wg sync.WaitGroup

	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					outcomes[i] = sourceOutcome{name: src.Name(), err: panicError(rec)}
				}
			}()

			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			record, err := src.Lookup(callCtx, listing)
			outcomes[i] = sourceOutcome{name: src.Name(), record: record, err: err}
		}(i, src)
	}
	wg.Wait()

	merged := &models.EnrichmentRecord{ListingID: listing.ID}
	contributed := 0
	for _, out := range outcomes {
		if out.err != nil {
			a.logger.Debug("[enrich] %s failed for %q: %v", out.name, listing.Name, out.err)
			continue
		}
		if out.record == nil {
			continue
		}
		mergeRecord(merged, out.record)
		merged.Sources = append(merged.Sources, out.name)
		contributed++
	}

	if contributed == 0 {
		return listing
	}

	merged.Confidence = scoreEnrichment(merged)
	merged.UpdatedAt = time.Now()
	listing.Enrichment = merged
	return listing
}

// EnrichBatch processes listings in fixed-size batches with an inter-batch
// delay so third-party rate limits are respected. Per-item failures
// degrade to the original listing. Returns how many listings ended up
// enriched.
func (a *Agent) EnrichBatch(ctx context.Context, listings []*models.NormalizedListing) int {
	enriched := 0

	for start := 0; start < len(listings); start += a.batchSize {
		end := start + a.batchSize
		if end > len(listings) {
			end = len(listings)
		}

		var wg sync.WaitGroup
		for _, l := range listings[start:end] {
			wg.Add(1)
			go func(l *models.NormalizedListing) {
				defer wg.Done()
				a.Enrich(ctx, l)
			}(l)
		}
		wg.Wait()

		for _, l := range listings[start:end] {
			if l.Enrichment != nil {
				enriched++
			}
		}

		if end < len(listings) && a.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return enriched
			case <-time.After(a.batchDelay):
			}
		}
	}
	return enriched
}

// mergeRecord fills dst from src with first-non-empty-wins semantics.
func mergeRecord(dst, src *models.EnrichmentRecord) {
	if dst.OwnerName == "" {
		dst.OwnerName = src.OwnerName
	}
	if dst.OwnerEmail == "" {
		dst.OwnerEmail = src.OwnerEmail
	}
	if dst.OwnerPhone == "" {
		dst.OwnerPhone = src.OwnerPhone
	}
	if dst.ContactFormURL == "" {
		dst.ContactFormURL = src.ContactFormURL
	}
	if dst.Website == "" {
		dst.Website = src.Website
	}
	if dst.YearFounded == 0 {
		dst.YearFounded = src.YearFounded
	}
	if dst.EmployeeCount == 0 {
		dst.EmployeeCount = src.EmployeeCount
	}
	if dst.FundingTotal == "" {
		dst.FundingTotal = src.FundingTotal
	}
	if dst.LinkedInURL == "" {
		dst.LinkedInURL = src.LinkedInURL
	}
	if dst.Summary == "" {
		dst.Summary = src.Summary
	}
}

// scoreEnrichment weights source diversity (up to 40), contact
// completeness (up to 30) and company-profile completeness (up to 30),
// clamped to [0,100].
func scoreEnrichment(r *models.EnrichmentRecord) float64 {
	score := 0.0

	diversity := len(r.Sources)
	if diversity > 4 {
		diversity = 4
	}
	score += float64(diversity) * 10

	contactFields := 0
	for _, v := range []string{r.OwnerName, r.OwnerEmail, r.OwnerPhone, r.ContactFormURL} {
		if v != "" {
			contactFields++
		}
	}
	score += float64(contactFields) / 4 * 30

	companyFields := 0
	if r.Website != "" {
		companyFields++
	}
	if r.YearFounded != 0 {
		companyFields++
	}
	if r.EmployeeCount != 0 {
		companyFields++
	}
	if r.FundingTotal != "" {
		companyFields++
	}
	if r.LinkedInURL != "" {
		companyFields++
	}
	if r.Summary != "" {
		companyFields++
	}
	score += float64(companyFields) / 6 * 30

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

func panicError(rec interface{}) error {
	return fmt.Errorf("source panic: %v", rec)
}
