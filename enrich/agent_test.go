package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"bizharvest/models"
	"bizharvest/utils"
)

type fakeSource struct {
	name   string
	record *models.EnrichmentRecord
	err    error
	delay  time.Duration
	panics bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Lookup(ctx context.Context, l *models.NormalizedListing) (*models.EnrichmentRecord, error) {
	if f.panics {
		panic("source blew up")
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.record, f.err
}

func newTestAgent(sources ...Source) *Agent {
	return &Agent{
		logger:     utils.NewLogger(utils.LevelError),
		sources:    sources,
		timeout:    time.Second,
		batchSize:  2,
		batchDelay: time.Millisecond,
	}
}

func testListing() *models.NormalizedListing {
	return &models.NormalizedListing{ID: "lst-1", Name: "Joe's HVAC", Location: "Austin, TX"}
}

func TestEnrichPartialFailureResilience(t *testing.T) {
	agent := newTestAgent(
		&fakeSource{name: "a", record: &models.EnrichmentRecord{OwnerName: "Joe"}},
		&fakeSource{name: "b", err: errors.New("service down")},
		&fakeSource{name: "c", record: &models.EnrichmentRecord{Website: "https://joes.example.com"}},
		&fakeSource{name: "d", err: errors.New("timeout")},
	)

	l := agent.Enrich(context.Background(), testListing())
	if l.Enrichment == nil {
		t.Fatal("expected enrichment from surviving sources")
	}
	if got := len(l.Enrichment.Sources); got != 2 {
		t.Errorf("sources: got %d, want 2", got)
	}
	if l.Enrichment.OwnerName != "Joe" || l.Enrichment.Website != "https://joes.example.com" {
		t.Errorf("merged record incomplete: %+v", l.Enrichment)
	}
}

func TestEnrichAllSourcesFailing(t *testing.T) {
	agent := newTestAgent(
		&fakeSource{name: "a", err: errors.New("down")},
		&fakeSource{name: "b", panics: true},
	)

	l := agent.Enrich(context.Background(), testListing())
	if l == nil {
		t.Fatal("listing must always come back")
	}
	if l.Enrichment != nil {
		t.Error("no surviving source means no enrichment record")
	}
}

func TestEnrichMergeFirstNonEmptyWins(t *testing.T) {
	agent := newTestAgent(
		&fakeSource{name: "first", record: &models.EnrichmentRecord{OwnerName: "First Owner", Website: "https://first.example.com"}},
		&fakeSource{name: "second", record: &models.EnrichmentRecord{OwnerName: "Second Owner", OwnerEmail: "second@example.com"}},
	)

	l := agent.Enrich(context.Background(), testListing())
	if l.Enrichment.OwnerName != "First Owner" {
		t.Errorf("owner name: got %q, first contributor should win", l.Enrichment.OwnerName)
	}
	if l.Enrichment.OwnerEmail != "second@example.com" {
		t.Errorf("owner email: got %q, gap should be filled by later source", l.Enrichment.OwnerEmail)
	}
}

func TestEnrichTimeoutIsolated(t *testing.T) {
	agent := newTestAgent(
		&fakeSource{name: "slow", delay: time.Minute, record: &models.EnrichmentRecord{OwnerName: "Never"}},
		&fakeSource{name: "fast", record: &models.EnrichmentRecord{OwnerName: "Fast Owner"}},
	)
	agent.timeout = 20 * time.Millisecond

	l := agent.Enrich(context.Background(), testListing())
	if l.Enrichment == nil {
		t.Fatal("fast source should still contribute")
	}
	if l.Enrichment.OwnerName != "Fast Owner" {
		t.Errorf("owner name: got %q", l.Enrichment.OwnerName)
	}
	if len(l.Enrichment.Sources) != 1 {
		t.Errorf("sources: got %v, want only the fast one", l.Enrichment.Sources)
	}
}

func TestEnrichmentConfidenceBounds(t *testing.T) {
	full := &models.EnrichmentRecord{
		OwnerName: "O", OwnerEmail: "e@x.com", OwnerPhone: "555", ContactFormURL: "https://x.com/c",
		Website: "https://x.com", YearFounded: 1999, EmployeeCount: 10,
		FundingTotal: "$1M", LinkedInURL: "https://l.com", Summary: "s",
		Sources: []string{"a", "b", "c", "d", "e", "f"},
	}
	if got := scoreEnrichment(full); got != 100 {
		t.Errorf("fully populated record: got %.1f, want 100", got)
	}

	empty := &models.EnrichmentRecord{Sources: []string{"a"}}
	got := scoreEnrichment(empty)
	if got < 0 || got > 100 {
		t.Errorf("confidence %v out of [0,100]", got)
	}
	if got != 10 {
		t.Errorf("single bare source: got %.1f, want 10", got)
	}
}

func TestEnrichBatchDegradesPerItem(t *testing.T) {
	agent := newTestAgent(&flakySource{})

	listings := []*models.NormalizedListing{
		{ID: "1", Name: "One"},
		{ID: "2", Name: "Two"},
		{ID: "3", Name: "Three"},
	}

	enriched := agent.EnrichBatch(context.Background(), listings)
	if enriched != 2 {
		t.Errorf("enriched: got %d, want 2 (one item degraded)", enriched)
	}
	for _, l := range listings {
		if l == nil {
			t.Error("no listing may be lost to a failing item")
		}
	}
}

// flakySource fails for exactly one listing id.
type flakySource struct{}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) Lookup(_ context.Context, l *models.NormalizedListing) (*models.EnrichmentRecord, error) {
	if l.ID == "2" {
		return nil, errors.New("borked for this one")
	}
	return &models.EnrichmentRecord{OwnerName: "Owner " + l.Name}, nil
}
