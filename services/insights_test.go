package services

import (
	"testing"

	"bizharvest/models"
)

func insightListing(name string, price float64, confidence float64, industry, state string) *models.NormalizedListing {
	l := priced(name, state, price, confidence)
	l.Industry = industry
	l.Parsed.State = state
	return l
}

func TestInsightsEmptyBatch(t *testing.T) {
	s := NewInsightService(newTestLogger())
	r := s.Generate(nil)

	if r.TotalListings != 0 {
		t.Errorf("TotalListings = %d, want 0", r.TotalListings)
	}
	if r.AveragePrice != 0 {
		t.Errorf("AveragePrice = %.2f, want 0", r.AveragePrice)
	}
}

func TestInsightsPriceStats(t *testing.T) {
	s := NewInsightService(newTestLogger())

	r := s.Generate([]*models.NormalizedListing{
		insightListing("A", 100000, 0.8, "HVAC Services", "TX"),
		insightListing("B", 300000, 0.6, "HVAC Services", "TX"),
		insightListing("C", 200000, 0.4, "Restaurants & Food", "CA"),
	})

	if r.TotalListings != 3 {
		t.Errorf("TotalListings = %d, want 3", r.TotalListings)
	}
	if r.MinPrice != 100000 || r.MaxPrice != 300000 {
		t.Errorf("Min/Max = %.0f/%.0f, want 100000/300000", r.MinPrice, r.MaxPrice)
	}
	if r.AveragePrice != 200000 {
		t.Errorf("AveragePrice = %.0f, want 200000", r.AveragePrice)
	}
	if r.AvgConfidence != 0.6 {
		t.Errorf("AvgConfidence = %.2f, want 0.60", r.AvgConfidence)
	}
}

func TestInsightsDistributions(t *testing.T) {
	s := NewInsightService(newTestLogger())

	r := s.Generate([]*models.NormalizedListing{
		insightListing("A", 100, 0.5, "HVAC Services", "TX"),
		insightListing("B", 100, 0.5, "HVAC Services", "TX"),
		insightListing("C", 100, 0.5, "Restaurants & Food", "CA"),
	})

	if r.ByIndustry["HVAC Services"] != 2 {
		t.Errorf("HVAC count = %d, want 2", r.ByIndustry["HVAC Services"])
	}
	if r.ByState["CA"] != 1 {
		t.Errorf("CA count = %d, want 1", r.ByState["CA"])
	}
}

func TestInsightsTopValueCappedAtFive(t *testing.T) {
	s := NewInsightService(newTestLogger())

	var listings []*models.NormalizedListing
	for i := 1; i <= 8; i++ {
		listings = append(listings, insightListing("Biz", float64(i*10000), 0.5, "", ""))
	}
	r := s.Generate(listings)

	if len(r.TopValue) != 5 {
		t.Fatalf("TopValue length = %d, want 5", len(r.TopValue))
	}
	if *r.TopValue[0].Price != 80000 {
		t.Errorf("Top price = %.0f, want 80000", *r.TopValue[0].Price)
	}
	for i := 1; i < len(r.TopValue); i++ {
		if *r.TopValue[i].Price > *r.TopValue[i-1].Price {
			t.Error("TopValue not sorted descending")
		}
	}
}

func TestInsightsEnrichedCount(t *testing.T) {
	s := NewInsightService(newTestLogger())

	a := insightListing("A", 100, 0.5, "", "")
	a.Enrichment = &models.EnrichmentRecord{}
	b := insightListing("B", 100, 0.5, "", "")

	r := s.Generate([]*models.NormalizedListing{a, b})
	if r.EnrichedCount != 1 {
		t.Errorf("EnrichedCount = %d, want 1", r.EnrichedCount)
	}
}
