package services

import (
	"testing"

	"bizharvest/models"
	"bizharvest/utils"
)

func newTestLogger() *utils.Logger { return utils.NewLogger(utils.LevelError) }

func priced(name, location string, price float64, confidence float64) *models.NormalizedListing {
	return &models.NormalizedListing{
		Name:       name,
		Location:   location,
		Price:      &price,
		Confidence: confidence,
	}
}

func TestCleanerDropsBelowConfidenceFloor(t *testing.T) {
	c := NewCleaner(newTestLogger(), 0.5)

	in := []*models.NormalizedListing{
		priced("Good Biz", "Austin, TX", 100000, 0.8),
		priced("Thin Biz", "Austin, TX", 50000, 0.3),
	}
	out := c.Clean(in)

	if len(out) != 1 {
		t.Fatalf("Expected 1 listing, got %d", len(out))
	}
	if out[0].Name != "Good Biz" {
		t.Errorf("Kept wrong listing: %s", out[0].Name)
	}
}

func TestCleanerDropsNameless(t *testing.T) {
	c := NewCleaner(newTestLogger(), 0)

	in := []*models.NormalizedListing{
		priced("   ", "Austin, TX", 100000, 0.9),
		priced("Real Biz", "Austin, TX", 100000, 0.9),
	}
	out := c.Clean(in)

	if len(out) != 1 || out[0].Name != "Real Biz" {
		t.Errorf("Expected only Real Biz to survive, got %d listings", len(out))
	}
}

func TestCleanerCollapsesDuplicateFingerprints(t *testing.T) {
	c := NewCleaner(newTestLogger(), 0)

	in := []*models.NormalizedListing{
		priced("Joe's HVAC", "Austin, TX", 250000, 0.6),
		priced("joe's hvac", "austin, tx", 250000, 0.4), // same fingerprint, lower confidence
		priced("Joe's HVAC", "Dallas, TX", 250000, 0.6), // different location
	}
	out := c.Clean(in)

	if len(out) != 2 {
		t.Fatalf("Expected 2 listings after dedup, got %d", len(out))
	}
	if out[0].Confidence != 0.6 {
		t.Errorf("First occurrence should win on equal-or-lower confidence, got %.2f", out[0].Confidence)
	}
}

func TestCleanerHigherConfidenceDuplicateReplaces(t *testing.T) {
	c := NewCleaner(newTestLogger(), 0)

	in := []*models.NormalizedListing{
		priced("Joe's HVAC", "Austin, TX", 250000, 0.4),
		priced("Joe's HVAC", "Austin, TX", 250000, 0.9),
	}
	out := c.Clean(in)

	if len(out) != 1 {
		t.Fatalf("Expected 1 listing, got %d", len(out))
	}
	if out[0].Confidence != 0.9 {
		t.Errorf("Higher-confidence duplicate should replace, got %.2f", out[0].Confidence)
	}
}

func TestCleanerEmptyBatch(t *testing.T) {
	c := NewCleaner(newTestLogger(), 0.5)
	if out := c.Clean(nil); len(out) != 0 {
		t.Errorf("Expected empty output, got %d", len(out))
	}
}
