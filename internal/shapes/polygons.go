package shapes

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshapes/internal/geo"
	"github.com/woozymasta/geoshapes/internal/metrics"
	"github.com/woozymasta/geoshapes/internal/store"
)

// Polygons owns the polygon collection. Polygons only come from drawing;
// the ingested collection is never consulted.
type Polygons struct {
	deps Deps
	selector
	attachment

	mu       sync.RWMutex
	polygons []Polygon
}

// NewPolygons returns an empty controller. Call Load to hydrate it.
func NewPolygons(d Deps) *Polygons {
	return &Polygons{deps: d.withDefaults()}
}

// Load hydrates from the store.
func (p *Polygons) Load(ctx context.Context) error {
	stored, err := store.LoadAll[Polygon](ctx, p.deps.Store, store.Polygons)
	if err != nil {
		return fmt.Errorf("load polygons: %w", err)
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].ID < stored[j].ID })

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pg := range stored {
		p.deps.IDs.Observe(pg.ID)
	}
	p.polygons = stored
	p.gauge()

	log.Info().Int("count", len(stored)).Msg("Polygons loaded from store")
	return nil
}

// List returns a copy of the polygons in creation order.
func (p *Polygons) List() []Polygon {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Polygon, len(p.polygons))
	for i, pg := range p.polygons {
		pg.Path = pg.Path.Clone()
		out[i] = pg
	}
	return out
}

// Get returns the polygon with the given id.
func (p *Polygons) Get(id int64) (Polygon, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if i := p.index(id); i >= 0 {
		pg := p.polygons[i]
		pg.Path = pg.Path.Clone()
		return pg, true
	}
	return Polygon{}, false
}

func validRing(path geo.Path) error {
	if err := path.Validate(3); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if n := len(path.Ring()); n < 3 {
		return fmt.Errorf("%w: ring has %d distinct points, need at least 3", ErrInvalidPath, n)
	}
	return nil
}

// CompleteDraw creates a polygon from a finished drawing. The advisory is
// non-nil when the area is over the limit; the polygon is created and
// persisted either way.
func (p *Polygons) CompleteDraw(_ context.Context, path geo.Path) (Polygon, *Advisory, error) {
	if err := validRing(path); err != nil {
		return Polygon{}, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pg := Polygon{
		ID:   p.deps.IDs.Next(),
		Path: path.Clone(),
		Area: geo.Area(path),
	}
	p.polygons = append(p.polygons, pg)
	p.persist(pg)
	p.gauge()

	adv := advise(p.deps.Advisor, KindArea, pg.ID, pg.Area, p.deps.Limits.PolygonArea)
	log.Debug().Int64("id", pg.ID).Float64("area", pg.Area).Msg("Polygon drawn")

	pg.Path = pg.Path.Clone()
	return pg, adv, nil
}

// Edit replaces the path of a polygon, recomputes its area and persists that
// single record.
func (p *Polygons) Edit(_ context.Context, id int64, path geo.Path) (Polygon, *Advisory, error) {
	if err := validRing(path); err != nil {
		return Polygon{}, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.index(id)
	if i < 0 {
		return Polygon{}, nil, ErrNotFound
	}

	pg := Polygon{ID: id, Path: path.Clone(), Area: geo.Area(path)}
	p.polygons[i] = pg
	p.persist(pg)

	adv := advise(p.deps.Advisor, KindArea, pg.ID, pg.Area, p.deps.Limits.PolygonArea)

	pg.Path = pg.Path.Clone()
	return pg, adv, nil
}

// Select makes id the active polygon with its popup at anchor. Selecting
// another polygon replaces the previous selection.
func (p *Polygons) Select(id int64, anchor geo.LatLng) error {
	if _, ok := p.Get(id); !ok {
		return ErrNotFound
	}
	p.set(Selection{ID: id, Anchor: anchor})
	return nil
}

// Attach subscribes the controller to path changes from feed, replacing any
// previous subscription. Events for unknown ids or invalid rings are logged
// and dropped.
func (p *Polygons) Attach(feed *EditFeed) {
	p.attach(feed, func(ev PathChange) {
		if _, _, err := p.Edit(context.Background(), ev.ShapeID, ev.Path); err != nil {
			log.Warn().Err(err).Int64("id", ev.ShapeID).Msg("Polygon edit event ignored")
		}
	})
}

// FeatureCollection returns the polygons as Polygon features with closed rings.
func (p *Polygons) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, pg := range p.List() {
		fc.Append(pg.Feature())
	}
	return fc
}

func (p *Polygons) index(id int64) int {
	for i := range p.polygons {
		if p.polygons[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *Polygons) persist(pg Polygon) {
	if err := p.deps.Writer.PutRecord(store.Polygons, pg); err != nil {
		log.Error().Err(err).Int64("id", pg.ID).Msg("Queue polygon write")
	}
}

func (p *Polygons) gauge() {
	metrics.ShapesGauge.WithLabelValues("polygon").Set(float64(len(p.polygons)))
}
