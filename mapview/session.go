package mapview

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"customer-map/models"
	"customer-map/services"
	"customer-map/utils"
)

// Session owns everything one map view needs: the surface, the accepted
// record set, the active filter state, and the marker handles keyed by
// record id. It replaces what used to be module-scoped map globals with
// an explicit create/destroy lifecycle.
type Session struct {
	ID string

	mu       sync.Mutex
	surface  Surface
	records  []*models.CustomerRecord
	filter   models.FilterState
	markers  map[string]MarkerHandle
	visible  []*models.CustomerRecord
	selected *models.CustomerRecord
	logger   *utils.Logger
	closed   bool
}

// NewSession creates a session over the given surface and record set and
// places the initial markers (empty filter state shows everything).
func NewSession(surface Surface, records []*models.CustomerRecord, logger *utils.Logger) (*Session, error) {
	if err := surface.Init(defaultCenterLng, defaultCenterLat, defaultZoom); err != nil {
		return nil, fmt.Errorf("mapview: init surface: %w", err)
	}

	s := &Session{
		ID:      uuid.New().String(),
		surface: surface,
		records: records,
		markers: make(map[string]MarkerHandle),
		logger:  logger,
	}

	if len(records) > 0 {
		if err := surface.DrawPolygon(boundingBox(records)); err != nil {
			return nil, fmt.Errorf("mapview: draw bounds: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// boundingBox returns the corners of the smallest rectangle containing
// every record, drawn as the dataset outline when the map opens.
func boundingBox(records []*models.CustomerRecord) [][2]float64 {
	minLng, maxLng := records[0].Longitude, records[0].Longitude
	minLat, maxLat := records[0].Latitude, records[0].Latitude
	for _, rec := range records[1:] {
		if rec.Longitude < minLng {
			minLng = rec.Longitude
		}
		if rec.Longitude > maxLng {
			maxLng = rec.Longitude
		}
		if rec.Latitude < minLat {
			minLat = rec.Latitude
		}
		if rec.Latitude > maxLat {
			maxLat = rec.Latitude
		}
	}
	return [][2]float64{
		{minLng, minLat}, {maxLng, minLat}, {maxLng, maxLat}, {minLng, maxLat},
	}
}

const (
	defaultCenterLng = 113.65
	defaultCenterLat = 34.76
	defaultZoom      = 7
)

// SetFilter atomically replaces the whole filter state and recomputes the
// visible set; the pipeline never observes a half-applied state.
func (s *Session) SetFilter(state models.FilterState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mapview: session %s is closed", s.ID)
	}
	s.filter = state
	return s.refresh()
}

// SetRecords replaces the backing record set (a refetch happened) and
// recomputes under the current filters.
func (s *Session) SetRecords(records []*models.CustomerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mapview: session %s is closed", s.ID)
	}
	s.records = records
	return s.refresh()
}

// refresh recomputes the visible set and diffs markers against it:
// handles for records that left the set are removed, records that entered
// get a new handle, and persisting ids keep their existing handle so the
// map does not flicker. Callers hold s.mu.
func (s *Session) refresh() error {
	s.visible = services.ApplyFilters(s.records, s.filter)

	wanted := make(map[string]*models.CustomerRecord, len(s.visible))
	for _, rec := range s.visible {
		wanted[rec.ID] = rec
	}

	for id, handle := range s.markers {
		if _, keep := wanted[id]; !keep {
			handle.Remove()
			delete(s.markers, id)
		}
	}

	for _, rec := range s.visible {
		if _, exists := s.markers[rec.ID]; exists {
			continue
		}
		rec := rec
		handle, err := s.surface.PlaceMarker(rec, func() { s.setSelected(rec) })
		if err != nil {
			return fmt.Errorf("mapview: place marker %s: %w", rec.ID, err)
		}
		s.markers[rec.ID] = handle
	}

	s.logger.Debug("[mapview] session %s: %d visible, %d markers", s.ID, len(s.visible), len(s.markers))
	return nil
}

func (s *Session) setSelected(rec *models.CustomerRecord) {
	s.mu.Lock()
	s.selected = rec
	s.mu.Unlock()
}

// Visible returns the current visible set in accepted-record order.
func (s *Session) Visible() []*models.CustomerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.CustomerRecord, len(s.visible))
	copy(out, s.visible)
	return out
}

// Filter returns the current filter state.
func (s *Session) Filter() models.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Selected returns the record last surfaced by a marker click, if any.
func (s *Session) Selected() *models.CustomerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// MarkerCount returns the number of markers currently on the surface.
func (s *Session) MarkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}

// Close removes every marker and tears the session down. Further
// mutations fail.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, handle := range s.markers {
		handle.Remove()
		delete(s.markers, id)
	}
	s.closed = true
}

// Store holds live sessions keyed by id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Put registers a session.
func (st *Store) Put(s *Session) {
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
}

// Get returns the session with the given id, or nil.
func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

// Remove closes and drops the session with the given id.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	s := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if s != nil {
		s.Close()
	}
}
