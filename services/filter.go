package services

import (
	"strings"

	"customer-map/models"
)

// brandDelimiters separates multi-brand cells: half/full-width commas and
// the Chinese enumeration comma all occur upstream.
func brandDelimiter(r rune) bool {
	return r == ',' || r == '，' || r == '、'
}

// BrandTokens splits a record's brand cell into its individual brand
// names, trimmed, empties dropped.
func BrandTokens(brand string) []string {
	parts := strings.FieldsFunc(brand, brandDelimiter)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// ApplyFilters computes the visible subset of records under the given
// filter state: logical AND across filter categories, logical OR within a
// multi-select. Empty selections and an empty search query match
// everything. Output order preserves input order; recomputation is total,
// the record counts here are hundreds, not millions.
func ApplyFilters(records []*models.CustomerRecord, state models.FilterState) []*models.CustomerRecord {
	query := strings.ToLower(strings.TrimSpace(state.SearchQuery))
	regions := toSet(state.RegionFilter)
	brands := toSet(state.BrandFilter)

	visible := make([]*models.CustomerRecord, 0, len(records))
	for _, rec := range records {
		if !matchesSearch(rec, query) {
			continue
		}
		if len(regions) > 0 {
			if _, ok := regions[rec.Region]; !ok {
				continue
			}
		}
		if len(brands) > 0 && !brandIntersects(rec.Brand, brands) {
			continue
		}
		visible = append(visible, rec)
	}
	return visible
}

func matchesSearch(rec *models.CustomerRecord, query string) bool {
	if query == "" {
		return true
	}
	for _, field := range []string{rec.Name, rec.ProductName, rec.Brand, rec.Address} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func brandIntersects(brand string, selected map[string]struct{}) bool {
	for _, token := range BrandTokens(brand) {
		if _, ok := selected[token]; ok {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
