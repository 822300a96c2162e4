package services

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"customer-map/models"
	"customer-map/utils"
)

var (
	// numberRegexp extracts signed decimal numbers from a coordinate
	// string, tolerant of half/full-width commas and whitespace separators.
	numberRegexp = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
	// latColumnRegexp / lngColumnRegexp match latitude/longitude column
	// labels across language variants.
	latColumnRegexp = regexp.MustCompile(`(?i)(^|[^a-z])lat|纬度`)
	lngColumnRegexp = regexp.MustCompile(`(?i)(^|[^a-z])(lng|lon)|经度`)
)

// Plausible coordinate bounds for a single national bounding box. Used to
// decide which of the two extracted numbers is the longitude.
const (
	latMin, latMax = 18.0, 54.0
	lngMin, lngMax = 73.0, 135.0
)

// Field label aliases, in lookup priority order. Upstream columns carry
// human-readable labels, so every read goes through an alias list.
var (
	nameAliases     = []string{"门店名称", "客户名称", "店名", "name", "store name"}
	productAliases  = []string{"产品名称", "产品", "product", "product name"}
	brandAliases    = []string{"品牌", "brand"}
	discountAliases = []string{"优惠价格", "折扣价", "discount", "discount price"}
	distribAliases  = []string{"经销商", "distributor"}
	regionAliases   = []string{"区域", "省份", "region", "province"}
	districtAliases = []string{"区县", "district"}
	addressAliases  = []string{"地址", "address"}
	dateAliases     = []string{"日期", "时间", "date"}
	volumeAliases   = []string{"销量", "volume"}
	poiAliases      = []string{"地理位置", "位置", "坐标", "经纬度", "location"}
)

// Outcome is the tagged result of transforming one raw record: exactly
// one of Record and Rejection is set.
type Outcome struct {
	Record    *models.CustomerRecord
	Rejection *models.Rejection
}

// Transformer maps raw upstream rows into canonical customer records.
// Transform is pure and deterministic; the struct only carries the logger
// and the debug-preview switch.
type Transformer struct {
	logger       *utils.Logger
	debugPreview bool
}

// NewTransformer creates a Transformer. When debugPreview is set,
// rejections carry a bounded preview of the raw field values.
func NewTransformer(logger *utils.Logger, debugPreview bool) *Transformer {
	return &Transformer{logger: logger, debugPreview: debugPreview}
}

// Transform maps one raw record into a canonical record or a structured
// rejection. It never returns both, and it never fails any other way.
func (t *Transformer) Transform(raw *models.RawRecord, index int) Outcome {
	name := readAliases(raw.Fields, nameAliases)
	if name == "" {
		return t.reject(raw, index, models.ReasonMissingName)
	}

	coordRaw, address, found := resolveCoordinate(raw.Fields)
	if !found {
		return t.reject(raw, index, models.ReasonMissingCoordinate)
	}

	lng, lat, reason := t.parseLngLat(coordRaw)
	if reason != "" {
		return t.reject(raw, index, reason)
	}

	if address == "" {
		address = readAliases(raw.Fields, addressAliases)
	}

	product := readAliases(raw.Fields, productAliases)
	if product == "" {
		product = models.Unknown
	}

	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = fmt.Sprintf("customer-%d", index)
	}

	return Outcome{Record: &models.CustomerRecord{
		ID:            id,
		Name:          name,
		Longitude:     lng,
		Latitude:      lat,
		ProductName:   product,
		Brand:         readAliases(raw.Fields, brandAliases),
		DiscountPrice: readAliases(raw.Fields, discountAliases),
		Distributor:   readAliases(raw.Fields, distribAliases),
		Region:        readAliases(raw.Fields, regionAliases),
		District:      readAliases(raw.Fields, districtAliases),
		Address:       address,
		RecordDate:    normalizeDate(fieldValue(raw.Fields, dateAliases)),
		Volume:        readVolume(raw.Fields),
	}}
}

func (t *Transformer) reject(raw *models.RawRecord, index int, reason string) Outcome {
	rej := &models.Rejection{
		Index:      index,
		UpstreamID: raw.ID,
		Reason:     reason,
	}
	if t.debugPreview {
		rej.RawPreview = previewFields(raw.Fields)
	}
	t.logger.Debug("[transform] record %d rejected: %s", index, reason)
	return Outcome{Rejection: rej}
}

// TransformResult is the assembled output of a full transformation run.
type TransformResult struct {
	Accepted []*models.CustomerRecord
	Rejected []*models.Rejection
	Total    int
}

// TransformAll runs Transform over every fetched raw record and partitions
// the outcomes. Transformation is pure, so the work fans out over a worker
// pool; outcomes land in an index-addressed slice to keep fetch order.
// One malformed record never blocks the rest of the batch.
func (t *Transformer) TransformAll(raws []*models.RawRecord) *TransformResult {
	outcomes := make([]Outcome, len(raws))

	pool := utils.NewWorkerPool(4, 0)
	for i := range raws {
		i := i
		pool.Submit(func() {
			outcomes[i] = t.Transform(raws[i], i)
		})
	}
	pool.Wait()

	result := &TransformResult{Total: len(raws)}
	for _, o := range outcomes {
		if o.Record != nil {
			result.Accepted = append(result.Accepted, o.Record)
		} else {
			result.Rejected = append(result.Rejected, o.Rejection)
		}
	}

	t.logger.Info("[transform] %d raw records → %d accepted, %d rejected",
		result.Total, len(result.Accepted), len(result.Rejected))
	return result
}

// readText extracts a scalar text value from an upstream field of unknown
// shape. Empty string is the universal "absent" signal; readText never fails.
func readText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, frag := range v {
			var s string
			if m, ok := frag.(map[string]any); ok {
				if s = readText(m["text"]); s == "" {
					s = readText(frag)
				}
			} else {
				s = readText(frag)
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case map[string]any:
		if s := readText(v["name"]); s != "" {
			return s
		}
		return readText(v["text"])
	default:
		return ""
	}
}

// fieldValue looks a field up by its alias list: exact label match first,
// then case-insensitive.
func fieldValue(fields map[string]any, aliases []string) any {
	for _, alias := range aliases {
		if v, ok := fields[alias]; ok {
			return v
		}
	}
	for _, alias := range aliases {
		for label, v := range fields {
			if strings.EqualFold(strings.TrimSpace(label), alias) {
				return v
			}
		}
	}
	return nil
}

func readAliases(fields map[string]any, aliases []string) string {
	return readText(fieldValue(fields, aliases))
}

func readVolume(fields map[string]any) float64 {
	s := readText(fieldValue(fields, volumeAliases))
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0
	}
	return n
}

// resolveCoordinate locates a coordinate source among the encodings the
// upstream has been seen to use, first hit wins:
//
//  1. a nested point-of-interest object's "location" string
//  2. a location field that is itself a string, a two-element numeric
//     array, or an object exposing location / lng+lat / longitude+latitude
//  3. a pair of columns whose labels match latitude/longitude naming
//
// When the point-of-interest object also carries an address, that address
// is resolved as a side effect.
func resolveCoordinate(fields map[string]any) (raw string, address string, found bool) {
	for _, alias := range poiAliases {
		v, ok := fields[alias]
		if !ok {
			continue
		}
		if poi, ok := v.(map[string]any); ok {
			if loc, ok := poi["location"].(string); ok && strings.TrimSpace(loc) != "" {
				return loc, poiAddress(poi), true
			}
		}
	}

	if v := fieldValue(fields, poiAliases); v != nil {
		if raw, ok := encodeLocation(v); ok {
			return raw, "", true
		}
	}

	if raw, ok := pairedColumns(fields); ok {
		return raw, "", true
	}
	return "", "", false
}

func poiAddress(poi map[string]any) string {
	for _, key := range []string{"fullAddress", "full_address", "address"} {
		if s, ok := poi[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// encodeLocation turns the supported location field shapes into a raw
// "number, number" candidate string.
func encodeLocation(v any) (string, bool) {
	switch loc := v.(type) {
	case string:
		if strings.TrimSpace(loc) == "" {
			return "", false
		}
		return loc, true
	case []any:
		if len(loc) == 2 {
			a, aok := toFloat(loc[0])
			b, bok := toFloat(loc[1])
			if aok && bok {
				return fmt.Sprintf("%v,%v", a, b), true
			}
		}
	case map[string]any:
		if s, ok := loc["location"].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
		if lng, lok := toFloat(loc["lng"]); lok {
			if lat, aok := toFloat(loc["lat"]); aok {
				return fmt.Sprintf("%v,%v", lng, lat), true
			}
		}
		if lng, lok := toFloat(loc["longitude"]); lok {
			if lat, aok := toFloat(loc["latitude"]); aok {
				return fmt.Sprintf("%v,%v", lng, lat), true
			}
		}
	}
	return "", false
}

// pairedColumns scans for a latitude-named and a longitude-named column
// whose values both parse as finite numbers. Labels are visited in sorted
// order so the same record always picks the same columns.
func pairedColumns(fields map[string]any) (string, bool) {
	labels := make([]string, 0, len(fields))
	for label := range fields {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var lat, lng float64
	var latOK, lngOK bool

	for _, label := range labels {
		n, ok := toFloat(fields[label])
		if !ok {
			continue
		}
		switch {
		case !latOK && latColumnRegexp.MatchString(label) && !lngColumnRegexp.MatchString(label):
			lat, latOK = n, true
		case !lngOK && lngColumnRegexp.MatchString(label):
			lng, lngOK = n, true
		}
	}
	if latOK && lngOK {
		return fmt.Sprintf("%v,%v", lng, lat), true
	}
	return "", false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsInf(n, 0) && !math.IsNaN(n)
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// parseLngLat extracts two numbers from a raw coordinate string and
// decides which is the longitude. Within the plausible national bounds
// the range heuristic settles axis order; when neither ordering fits,
// the original order passes through and the record is flagged, since the
// heuristic being inconclusive usually means the point lands far outside
// any real location.
func (t *Transformer) parseLngLat(raw string) (lng, lat float64, failReason string) {
	matches := numberRegexp.FindAllString(raw, -1)
	if len(matches) < 2 {
		return 0, 0, models.ReasonUnparseableCoordinate
	}

	// Out-of-range literals still parse (to ±Inf) and are reported by
	// the finite check below as their own rejection reason.
	a, errA := strconv.ParseFloat(matches[0], 64)
	if errA != nil && !errors.Is(errA, strconv.ErrRange) {
		return 0, 0, models.ReasonUnparseableCoordinate
	}
	b, errB := strconv.ParseFloat(matches[1], 64)
	if errB != nil && !errors.Is(errB, strconv.ErrRange) {
		return 0, 0, models.ReasonUnparseableCoordinate
	}

	switch {
	case inLatRange(a) && inLngRange(b):
		lng, lat = b, a
	case inLngRange(a) && inLatRange(b):
		lng, lat = a, b
	default:
		lng, lat = a, b
		t.logger.Warn("[transform] ambiguous coordinate %q: neither ordering fits plausible bounds, keeping original order", raw)
	}

	if math.IsInf(lng, 0) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsNaN(lat) {
		return 0, 0, models.ReasonNonFiniteCoordinate
	}
	return lng, lat, ""
}

func inLatRange(v float64) bool { return v >= latMin && v <= latMax }
func inLngRange(v float64) bool { return v >= lngMin && v <= lngMax }

// normalizeDate converts a loosely-typed date field into a "2006-01-02"
// string. Absence of a valid date degrades to "" rather than rejecting
// the record. Integers below 1e11 are epoch seconds, above are epoch
// milliseconds; dates render in UTC so output does not depend on the
// host timezone.
func normalizeDate(value any) string {
	if arr, ok := value.([]any); ok {
		if len(arr) == 0 {
			return ""
		}
		value = arr[0]
	}

	s := readText(value)
	if s == "" {
		return ""
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return ""
		}
		if n < 1e11 {
			return time.Unix(n, 0).UTC().Format("2006-01-02")
		}
		return time.UnixMilli(n).UTC().Format("2006-01-02")
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006/01/02",
		"2006.01.02",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC().Format("2006-01-02")
		}
	}
	return ""
}

const (
	previewMaxFields = 5
	previewMaxLen    = 80
)

// previewFields captures a bounded snapshot of raw field values for the
// debug channel.
func previewFields(fields map[string]any) map[string]string {
	preview := make(map[string]string, previewMaxFields)
	for label, v := range fields {
		if len(preview) >= previewMaxFields {
			break
		}
		s := readText(v)
		if s == "" {
			s = fmt.Sprintf("%v", v)
		}
		if r := []rune(s); len(r) > previewMaxLen {
			s = string(r[:previewMaxLen-3]) + "..."
		}
		preview[label] = s
	}
	return preview
}
