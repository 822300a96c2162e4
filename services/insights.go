package services

import (
	"fmt"
	"sort"
	"strings"

	"customer-map/models"
	"customer-map/utils"
)

const discountSampleLimit = 5

// InsightService tabulates descriptive statistics over a record subset.
type InsightService struct {
	logger *utils.Logger
}

// NewInsightService creates an InsightService with the given logger.
func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Summarize counts brand, product, and region occurrences over the given
// records and collects the first discount samples in input order. Missing
// values land in the "unknown" bucket. Rankings sort by count descending
// with ties broken by first-encountered order.
func (s *InsightService) Summarize(records []*models.CustomerRecord) *models.StatsReport {
	report := &models.StatsReport{Total: len(records)}

	brands := utils.NewOrderedCounter()
	products := utils.NewOrderedCounter()
	regions := utils.NewOrderedCounter()

	for _, rec := range records {
		report.TotalVolume += rec.Volume

		tokens := BrandTokens(rec.Brand)
		if len(tokens) == 0 {
			tokens = []string{models.Unknown}
		}
		for _, b := range tokens {
			brands.Add(b)
		}
		products.Add(orUnknown(rec.ProductName))
		regions.Add(orUnknown(rec.Region))

		if len(report.DiscountSamples) < discountSampleLimit {
			if d := strings.TrimSpace(rec.DiscountPrice); d != "" {
				report.DiscountSamples = append(report.DiscountSamples, d)
			}
		}
	}

	report.ByBrand = rank(brands)
	report.ByProduct = rank(products)
	report.ByRegion = rank(regions)
	return report
}

// rank converts a counter into entries sorted by count descending. The
// counter hands keys back in first-seen order and the sort is stable, so
// equal counts keep that order.
func rank(c *utils.OrderedCounter) []models.CountEntry {
	entries := make([]models.CountEntry, 0, c.Len())
	for _, key := range c.Keys() {
		entries = append(entries, models.CountEntry{Name: key, Count: c.Count(key)})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return models.Unknown
	}
	return s
}

// Print renders the report to the console for the one-shot report mode.
func (s *InsightService) Print(r *models.StatsReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 CUSTOMER MAP INSIGHTS\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Total customers : \033[1m%d\033[0m\n", r.Total)
	fmt.Printf("  Total volume    : \033[1m%.2f\033[0m\n", r.TotalVolume)
	fmt.Println()

	printRanking("Customers by Brand", thin, r.ByBrand)
	printRanking("Customers by Product", thin, r.ByProduct)
	printRanking("Customers by Region", thin, r.ByRegion)

	fmt.Printf("\033[1;33m  Discount Samples\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if len(r.DiscountSamples) == 0 {
		fmt.Printf("  No discount data\n")
	} else {
		for _, d := range r.DiscountSamples {
			fmt.Printf("  - %s\n", truncate(d, 50))
		}
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

func printRanking(title, thin string, entries []models.CountEntry) {
	fmt.Printf("\033[1;33m  %s\033[0m\n", title)
	fmt.Printf("  %s\n", thin)
	if len(entries) == 0 {
		fmt.Printf("  No data\n")
	}
	for _, e := range entries {
		bar := strings.Repeat("█", e.Count)
		fmt.Printf("  %-30s %s (%d)\n", truncate(e.Name, 28), bar, e.Count)
	}
	fmt.Println()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
