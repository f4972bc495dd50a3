package shapes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshapes/internal/geo"
	"github.com/woozymasta/geoshapes/internal/ingest"
	"github.com/woozymasta/geoshapes/internal/metrics"
	"github.com/woozymasta/geoshapes/internal/store"
)

// Markers owns the marker collection.
type Markers struct {
	deps Deps

	mu      sync.RWMutex
	markers []Marker
}

// NewMarkers returns an empty controller. Call Load to hydrate it.
func NewMarkers(d Deps) *Markers {
	return &Markers{deps: d.withDefaults()}
}

// Load hydrates from the store when it holds any marker. Otherwise the Point
// features of the cached collection are extracted, numbered by their position
// and persisted one by one. Once a marker was stored the cache is never
// consulted again.
func (m *Markers) Load(ctx context.Context) error {
	stored, err := store.LoadAll[Marker](ctx, m.deps.Store, store.Markers)
	if err != nil {
		return fmt.Errorf("load markers: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(stored) > 0 {
		sort.SliceStable(stored, func(i, j int) bool { return stored[i].ID < stored[j].ID })
		for _, mk := range stored {
			m.deps.IDs.Observe(mk.ID)
		}
		m.markers = stored
		m.gauge()
		log.Info().Int("count", len(stored)).Msg("Markers loaded from store")
		return nil
	}

	m.markers = nil
	if m.deps.Cache == nil {
		m.gauge()
		return nil
	}

	fc, err := m.deps.Cache.Cached(ctx)
	if errors.Is(err, ingest.ErrNoCache) {
		m.gauge()
		log.Info().Msg("No markers stored and nothing ingested")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load markers: %w", err)
	}

	for idx, f := range geo.FilterType(fc, geo.TypePoint) {
		mk := markerFromFeature(f, idx)
		m.markers = append(m.markers, mk)
		m.persist(mk)
	}
	m.gauge()

	log.Info().Int("count", len(m.markers)).Msg("Markers extracted from ingested collection")
	return nil
}

func markerFromFeature(f *geojson.Feature, idx int) Marker {
	pt, _ := f.Geometry.(orb.Point)
	return Marker{
		ID:          int64(idx),
		Position:    geo.LatLngFromPoint(pt),
		Title:       geo.PropertyString(f, "name", fmt.Sprintf("Marker %d", idx+1)),
		Description: geo.PropertyString(f, "description", ""),
	}
}

// List returns a copy of the markers in creation order.
func (m *Markers) List() []Marker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]Marker(nil), m.markers...)
}

// Get returns the marker with the given id.
func (m *Markers) Get(id int64) (Marker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.index(id); i >= 0 {
		return m.markers[i], true
	}
	return Marker{}, false
}

// Create appends a new marker with a fresh id and persists it. A blank title
// declines the creation without writing anything.
func (m *Markers) Create(_ context.Context, in CreateMarker) (Marker, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Marker{}, ErrTitleRequired
	}
	if !in.Position.Valid() {
		return Marker{}, fmt.Errorf("%w: %s", ErrInvalidPosition, in.Position)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mk := Marker{
		ID:          m.deps.IDs.Next(),
		Position:    in.Position,
		Title:       title,
		Description: in.Description,
	}
	m.markers = append(m.markers, mk)
	m.persist(mk)
	m.gauge()

	log.Debug().Int64("id", mk.ID).Str("title", mk.Title).Msg("Marker created")
	return mk, nil
}

// Move updates a marker position in place and persists it.
func (m *Markers) Move(_ context.Context, id int64, pos geo.LatLng) (Marker, error) {
	if !pos.Valid() {
		return Marker{}, fmt.Errorf("%w: %s", ErrInvalidPosition, pos)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.index(id)
	if i < 0 {
		log.Warn().Int64("id", id).Msg("Move of unknown marker ignored")
		return Marker{}, ErrNotFound
	}

	m.markers[i].Position = pos
	m.persist(m.markers[i])
	return m.markers[i], nil
}

// Remove drops a marker from the in-memory list only. The stored record is
// kept and reappears on the next Load.
func (m *Markers) Remove(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.index(id)
	if i < 0 {
		return false
	}
	m.markers = append(m.markers[:i], m.markers[i+1:]...)
	m.gauge()
	return true
}

// FeatureCollection returns the markers as Point features.
func (m *Markers) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, mk := range m.List() {
		fc.Append(mk.Feature())
	}
	return fc
}

func (m *Markers) index(id int64) int {
	for i := range m.markers {
		if m.markers[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Markers) persist(mk Marker) {
	if err := m.deps.Writer.PutRecord(store.Markers, mk); err != nil {
		log.Error().Err(err).Int64("id", mk.ID).Msg("Queue marker write")
	}
}

func (m *Markers) gauge() {
	metrics.ShapesGauge.WithLabelValues("marker").Set(float64(len(m.markers)))
}
