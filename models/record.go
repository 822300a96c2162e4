package models

// RawRecord is one row as returned by the upstream table listing call.
// Field names are human-readable column labels, not stable keys, and
// field values arrive in whatever shape the upstream felt like that day:
// plain strings, numbers, rich-text fragment arrays, or nested objects.
type RawRecord struct {
	ID     string         `json:"record_id"`
	Fields map[string]any `json:"fields"`
}

// Unknown is the sentinel used for text fields the upstream left blank.
const Unknown = "unknown"

// CustomerRecord is the validated, app-internal geospatial record served
// to the map client. It exists only if the upstream row carried a
// non-empty name and a resolvable coordinate pair; every other field is
// best-effort and defaults to "" (or the Unknown sentinel for the product).
type CustomerRecord struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Longitude     float64 `json:"lng"`
	Latitude      float64 `json:"lat"`
	ProductName   string  `json:"productName"`
	Brand         string  `json:"brand"`
	DiscountPrice string  `json:"discountPrice"`
	Distributor   string  `json:"distributor"`
	Region        string  `json:"region"`
	District      string  `json:"district"`
	Address       string  `json:"address"`
	RecordDate    string  `json:"recordDate,omitempty"`
	Volume        float64 `json:"volume,omitempty"`
}

// Rejection reasons form a fixed vocabulary; handlers and tests match on
// these exact strings.
const (
	ReasonMissingName           = "missing name"
	ReasonMissingCoordinate     = "missing coordinate field"
	ReasonUnparseableCoordinate = "unparseable coordinate"
	ReasonNonFiniteCoordinate   = "non-finite coordinate"
)

// Rejection is produced instead of a CustomerRecord when a required field
// is missing or unparseable. Every input row yields exactly one of
// {CustomerRecord, Rejection}; nothing is silently dropped.
type Rejection struct {
	Index      int               `json:"index"`
	UpstreamID string            `json:"upstreamId,omitempty"`
	Reason     string            `json:"reason"`
	RawPreview map[string]string `json:"rawPreview,omitempty"`
}

// FilterState holds the active filter predicates for one map session.
// Mutations replace the whole struct so the filter pipeline always
// observes a complete, consistent state.
type FilterState struct {
	SearchQuery  string   `json:"searchQuery"`
	RegionFilter []string `json:"regionFilter"`
	BrandFilter  []string `json:"brandFilter"`
}

// CountEntry is one bucket of an aggregation, in ranking order.
type CountEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// StatsReport holds the descriptive statistics computed over a record
// subset — shown in the stats panel and fed to the AI summarizer.
type StatsReport struct {
	Total           int          `json:"total"`
	TotalVolume     float64      `json:"totalVolume"`
	ByBrand         []CountEntry `json:"byBrand"`
	ByProduct       []CountEntry `json:"byProduct"`
	ByRegion        []CountEntry `json:"byRegion"`
	DiscountSamples []string     `json:"discountSamples"`
}
