package mapview

import (
	"testing"

	"customer-map/models"
	"customer-map/utils"
)

// stubSurface counts marker lifecycle calls and lets tests trigger clicks.
type stubSurface struct {
	placed   int
	removed  int
	handles  map[string]*stubMarker
	polygons [][][2]float64
}

type stubMarker struct {
	surface *stubSurface
	id      string
	onClick func()
	dead    bool
}

func newStubSurface() *stubSurface {
	return &stubSurface{handles: make(map[string]*stubMarker)}
}

func (s *stubSurface) Init(lng, lat float64, zoom int) error { return nil }

func (s *stubSurface) DrawPolygon(points [][2]float64) error {
	s.polygons = append(s.polygons, points)
	return nil
}
func (s *stubSurface) PlaceMarker(rec *models.CustomerRecord, onClick func()) (MarkerHandle, error) {
	s.placed++
	m := &stubMarker{surface: s, id: rec.ID, onClick: onClick}
	s.handles[rec.ID] = m
	return m, nil
}

func (m *stubMarker) Remove() {
	m.dead = true
	m.surface.removed++
	delete(m.surface.handles, m.id)
}

func sessionRecords() []*models.CustomerRecord {
	return []*models.CustomerRecord{
		{ID: "1", Name: "郑州一号店", Brand: "长城", Region: "河南"},
		{ID: "2", Name: "洛阳二号店", Brand: "张裕", Region: "河南"},
		{ID: "3", Name: "武汉三号店", Brand: "长城", Region: "湖北"},
	}
}

func newTestSession(t *testing.T, surface Surface) *Session {
	t.Helper()
	s, err := NewSession(surface, sessionRecords(), utils.NewLogger(false))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestSessionDrawsDatasetOutline(t *testing.T) {
	surface := newStubSurface()
	records := []*models.CustomerRecord{
		{ID: "1", Longitude: 113.65, Latitude: 34.76},
		{ID: "2", Longitude: 114.31, Latitude: 30.59},
	}
	if _, err := NewSession(surface, records, utils.NewLogger(false)); err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if len(surface.polygons) != 1 {
		t.Fatalf("polygons drawn: got %d, want 1", len(surface.polygons))
	}
	corners := surface.polygons[0]
	if len(corners) != 4 {
		t.Fatalf("outline corners: got %d, want 4", len(corners))
	}
	if corners[0] != [2]float64{113.65, 30.59} || corners[2] != [2]float64{114.31, 34.76} {
		t.Errorf("outline bounds wrong: %v", corners)
	}
}

func TestSessionPlacesAllMarkersInitially(t *testing.T) {
	surface := newStubSurface()
	s := newTestSession(t, surface)

	if surface.placed != 3 {
		t.Errorf("initial markers: got %d, want 3", surface.placed)
	}
	if s.MarkerCount() != 3 {
		t.Errorf("marker count: got %d, want 3", s.MarkerCount())
	}
}

func TestSessionDiffKeepsSurvivingHandles(t *testing.T) {
	surface := newStubSurface()
	s := newTestSession(t, surface)

	before := surface.handles["1"]

	if err := s.SetFilter(models.FilterState{RegionFilter: []string{"河南"}}); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}

	// Record 3 left the visible set; records 1 and 2 stayed.
	if surface.removed != 1 {
		t.Errorf("removed: got %d, want 1", surface.removed)
	}
	if surface.placed != 3 {
		t.Errorf("no re-placement for surviving records: placed %d, want 3", surface.placed)
	}
	if after := surface.handles["1"]; after != before {
		t.Error("surviving record must keep the same marker handle")
	}
	if before.dead {
		t.Error("surviving handle was removed")
	}
}

func TestSessionDiffAddsReturningRecords(t *testing.T) {
	surface := newStubSurface()
	s := newTestSession(t, surface)

	if err := s.SetFilter(models.FilterState{BrandFilter: []string{"张裕"}}); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	if s.MarkerCount() != 1 {
		t.Fatalf("after narrow filter: got %d markers, want 1", s.MarkerCount())
	}

	if err := s.SetFilter(models.FilterState{}); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	if s.MarkerCount() != 3 {
		t.Errorf("after clearing filter: got %d markers, want 3", s.MarkerCount())
	}
	// 3 initial + 2 re-added after the filter was cleared.
	if surface.placed != 5 {
		t.Errorf("placed total: got %d, want 5", surface.placed)
	}
}

func TestSessionVisibleOrderMatchesRecordOrder(t *testing.T) {
	s := newTestSession(t, newStubSurface())

	if err := s.SetFilter(models.FilterState{RegionFilter: []string{"湖北", "河南"}}); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	visible := s.Visible()
	want := []string{"1", "2", "3"}
	if len(visible) != len(want) {
		t.Fatalf("visible: got %d, want %d", len(visible), len(want))
	}
	for i, id := range want {
		if visible[i].ID != id {
			t.Errorf("visible[%d]: got %s, want %s", i, visible[i].ID, id)
		}
	}
}

func TestSessionClickSurfacesRecord(t *testing.T) {
	surface := newStubSurface()
	s := newTestSession(t, surface)

	surface.handles["2"].onClick()
	if sel := s.Selected(); sel == nil || sel.ID != "2" {
		t.Errorf("selected: got %+v, want record 2", sel)
	}
}

func TestSessionCloseRemovesEverything(t *testing.T) {
	surface := newStubSurface()
	s := newTestSession(t, surface)

	s.Close()
	if surface.removed != 3 {
		t.Errorf("close must remove all markers: removed %d", surface.removed)
	}
	if err := s.SetFilter(models.FilterState{}); err == nil {
		t.Error("mutating a closed session must fail")
	}
}

func TestRecordingSurfaceOps(t *testing.T) {
	surface := NewRecordingSurface()
	s, err := NewSession(surface, sessionRecords(), utils.NewLogger(false))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	ops := surface.Drain()
	if len(ops) != 3 {
		t.Fatalf("initial ops: got %d, want 3 adds", len(ops))
	}
	for _, op := range ops {
		if op.Op != "add" || op.Record == nil {
			t.Errorf("initial op should be an add with record payload, got %+v", op)
		}
	}

	if err := s.SetFilter(models.FilterState{RegionFilter: []string{"湖北"}}); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	ops = surface.Drain()
	removes := 0
	for _, op := range ops {
		if op.Op == "remove" {
			removes++
		}
	}
	if removes != 2 {
		t.Errorf("narrowing to 湖北 should remove 2 markers, got %d removes in %+v", removes, ops)
	}

	if extra := surface.Drain(); len(extra) != 0 {
		t.Errorf("drain must reset the op log, got %d leftover ops", len(extra))
	}
}

func TestStoreLifecycle(t *testing.T) {
	store := NewStore()
	surface := newStubSurface()
	s := newTestSession(t, surface)

	store.Put(s)
	if store.Get(s.ID) != s {
		t.Fatal("store should return the registered session")
	}

	store.Remove(s.ID)
	if store.Get(s.ID) != nil {
		t.Error("removed session still retrievable")
	}
	if surface.removed != 3 {
		t.Errorf("store removal must close the session, removed %d markers", surface.removed)
	}
}
