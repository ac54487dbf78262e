package services

import (
	"fmt"
	"sort"
	"strings"

	"bizharvest/models"
	"bizharvest/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate summarizes a normalized batch: price spread, confidence,
// industry and state distribution, and the five priciest listings.
func (s *InsightService) Generate(listings []*models.NormalizedListing) *models.ScrapeInsights {
	report := &models.ScrapeInsights{
		ByIndustry: make(map[string]int),
		ByState:    make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var priced []*models.NormalizedListing
	var confidenceTotal float64

	for _, l := range listings {
		confidenceTotal += l.Confidence
		if l.Enrichment != nil {
			report.EnrichedCount++
		}
		if l.Price != nil && *l.Price > 0 {
			priced = append(priced, l)
		}
		if l.Industry != "" {
			report.ByIndustry[l.Industry]++
		}
		if l.Parsed.State != "" {
			report.ByState[l.Parsed.State]++
		}
	}

	report.AvgConfidence = round2(confidenceTotal / float64(len(listings)))

	if len(priced) > 0 {
		report.MinPrice = *priced[0].Price
		report.MaxPrice = *priced[0].Price
		var total float64
		for _, l := range priced {
			p := *l.Price
			total += p
			if p < report.MinPrice {
				report.MinPrice = p
			}
			if p > report.MaxPrice {
				report.MaxPrice = p
			}
		}
		report.AveragePrice = round2(total / float64(len(priced)))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)

		sort.Slice(priced, func(i, j int) bool {
			return *priced[i].Price > *priced[j].Price
		})
		if len(priced) > 5 {
			report.TopValue = priced[:5]
		} else {
			report.TopValue = priced
		}
	}

	return report
}

func (s *InsightService) Print(r *models.ScrapeInsights) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 SCRAPE INSIGHTS\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Total listings      : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Printf("  Enriched listings   : \033[1m%d\033[0m\n", r.EnrichedCount)
	fmt.Printf("  Average confidence  : \033[1m%.2f\033[0m\n", r.AvgConfidence)
	fmt.Println()

	// Price Stats
	fmt.Printf("\033[1;33m  Asking Price Statistics\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if r.AveragePrice > 0 {
		fmt.Printf("  Average price : \033[1;32m$%.2f\033[0m\n", r.AveragePrice)
		fmt.Printf("  Minimum price : \033[1;32m$%.2f\033[0m\n", r.MinPrice)
		fmt.Printf("  Maximum price : \033[1;32m$%.2f\033[0m\n", r.MaxPrice)
	} else {
		fmt.Printf("  No price data available\n")
	}
	fmt.Println()

	// Top 5 by asking price
	fmt.Printf("\033[1;33m  Top 5 by Asking Price\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if len(r.TopValue) == 0 {
		fmt.Printf("  No priced listings found\n")
	} else {
		for i, l := range r.TopValue {
			name := truncate(l.Name, 38)
			fmt.Printf("  \033[1m%d.\033[0m %-40s \033[1;32m$%.0f\033[0m\n",
				i+1, name, *l.Price)
		}
	}
	fmt.Println()

	// Industry distribution
	fmt.Printf("\033[1;33m  Listings by Industry\033[0m\n")
	fmt.Printf("  %s\n", thin)
	printDistribution(r.ByIndustry)
	fmt.Println()

	// State distribution
	fmt.Printf("\033[1;33m  Listings by State\033[0m\n")
	fmt.Printf("  %s\n", thin)
	printDistribution(r.ByState)

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

func printDistribution(counts map[string]int) {
	if len(counts) == 0 {
		fmt.Printf("  No data\n")
		return
	}
	type entry struct {
		key   string
		count int
	}
	var entries []entry
	for k, v := range counts {
		if k != "" {
			entries = append(entries, entry{k, v})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	for _, e := range entries {
		bar := strings.Repeat("█", e.count)
		fmt.Printf("  %-30s %s (%d)\n", truncate(e.key, 28), bar, e.count)
	}
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
