package mapview

import (
	"sync"

	"customer-map/models"
)

// MarkerHandle is the on-map visual object representing one visible
// record. Handles are owned exclusively by the session that created them.
type MarkerHandle interface {
	Remove()
}

// Surface is the capability interface over the mapping SDK: create the
// map view, draw region polygons, place markers. The session never talks
// to the SDK directly, so the whole render path is testable in-process.
type Surface interface {
	Init(centerLng, centerLat float64, zoom int) error
	DrawPolygon(points [][2]float64) error
	PlaceMarker(rec *models.CustomerRecord, onClick func()) (MarkerHandle, error)
}

// MarkerOp is one marker lifecycle change, reported to the HTTP client so
// it can mirror the diff on its own map instance.
type MarkerOp struct {
	Op     string                 `json:"op"` // "add" or "remove"
	ID     string                 `json:"id"`
	Record *models.CustomerRecord `json:"record,omitempty"`
}

// RecordingSurface is the Surface implementation behind the HTTP API: it
// records marker lifecycle operations instead of driving a real SDK, and
// hands the accumulated ops to the client on each sync.
type RecordingSurface struct {
	mu  sync.Mutex
	ops []MarkerOp
}

// NewRecordingSurface creates an empty RecordingSurface.
func NewRecordingSurface() *RecordingSurface {
	return &RecordingSurface{}
}

func (s *RecordingSurface) Init(centerLng, centerLat float64, zoom int) error { return nil }

func (s *RecordingSurface) DrawPolygon(points [][2]float64) error { return nil }

func (s *RecordingSurface) PlaceMarker(rec *models.CustomerRecord, onClick func()) (MarkerHandle, error) {
	s.mu.Lock()
	s.ops = append(s.ops, MarkerOp{Op: "add", ID: rec.ID, Record: rec})
	s.mu.Unlock()
	return &recordedMarker{surface: s, id: rec.ID}, nil
}

// Drain returns the ops accumulated since the last call and resets the log.
func (s *RecordingSurface) Drain() []MarkerOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := s.ops
	s.ops = nil
	return ops
}

type recordedMarker struct {
	surface *RecordingSurface
	id      string
}

func (m *recordedMarker) Remove() {
	m.surface.mu.Lock()
	m.surface.ops = append(m.surface.ops, MarkerOp{Op: "remove", ID: m.id})
	m.surface.mu.Unlock()
}
