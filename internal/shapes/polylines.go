package shapes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshapes/internal/geo"
	"github.com/woozymasta/geoshapes/internal/ingest"
	"github.com/woozymasta/geoshapes/internal/metrics"
	"github.com/woozymasta/geoshapes/internal/store"
)

// Polylines owns the polyline collection.
type Polylines struct {
	deps Deps
	selector
	attachment

	mu    sync.RWMutex
	lines []Polyline
}

// NewPolylines returns an empty controller. Call Load to hydrate it.
func NewPolylines(d Deps) *Polylines {
	return &Polylines{deps: d.withDefaults()}
}

// Load hydrates from the store when it holds any polyline. Otherwise the
// LineString features of the cached collection become polylines with fresh
// ids and length 0; their length is computed on the first edit. Each derived
// polyline is persisted individually.
func (p *Polylines) Load(ctx context.Context) error {
	stored, err := store.LoadAll[Polyline](ctx, p.deps.Store, store.Polylines)
	if err != nil {
		return fmt.Errorf("load polylines: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(stored) > 0 {
		sort.SliceStable(stored, func(i, j int) bool { return stored[i].ID < stored[j].ID })
		for _, pl := range stored {
			p.deps.IDs.Observe(pl.ID)
		}
		p.lines = stored
		p.gauge()
		log.Info().Int("count", len(stored)).Msg("Polylines loaded from store")
		return nil
	}

	p.lines = nil
	if p.deps.Cache == nil {
		p.gauge()
		return nil
	}

	fc, err := p.deps.Cache.Cached(ctx)
	if errors.Is(err, ingest.ErrNoCache) {
		p.gauge()
		return nil
	}
	if err != nil {
		return fmt.Errorf("load polylines: %w", err)
	}

	for _, f := range geo.FilterType(fc, geo.TypeLineString) {
		pl, ok := PolylineFromFeature(f)
		if !ok || len(pl.Path) < 2 {
			continue
		}
		pl.ID = p.deps.IDs.Next()
		p.lines = append(p.lines, pl)
		p.persist(pl)
	}
	p.gauge()

	log.Info().Int("count", len(p.lines)).Msg("Polylines extracted from ingested collection")
	return nil
}

// List returns a copy of the polylines in creation order.
func (p *Polylines) List() []Polyline {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Polyline, len(p.lines))
	for i, pl := range p.lines {
		pl.Path = pl.Path.Clone()
		out[i] = pl
	}
	return out
}

// Get returns the polyline with the given id.
func (p *Polylines) Get(id int64) (Polyline, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if i := p.index(id); i >= 0 {
		pl := p.lines[i]
		pl.Path = pl.Path.Clone()
		return pl, true
	}
	return Polyline{}, false
}

// CompleteDraw creates a polyline from a finished drawing. The advisory is
// non-nil when the length is over the limit; the polyline is created and
// persisted either way.
func (p *Polylines) CompleteDraw(_ context.Context, path geo.Path) (Polyline, *Advisory, error) {
	if err := path.Validate(2); err != nil {
		return Polyline{}, nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pl := Polyline{
		ID:     p.deps.IDs.Next(),
		Path:   path.Clone(),
		Length: geo.Length(path),
	}
	p.lines = append(p.lines, pl)
	p.persist(pl)
	p.gauge()

	adv := advise(p.deps.Advisor, KindLength, pl.ID, pl.Length, p.deps.Limits.PolylineLength)
	log.Debug().Int64("id", pl.ID).Float64("length", pl.Length).Msg("Polyline drawn")

	pl.Path = pl.Path.Clone()
	return pl, adv, nil
}

// Edit replaces the path of a polyline, recomputes its length and persists
// that single record.
func (p *Polylines) Edit(_ context.Context, id int64, path geo.Path) (Polyline, *Advisory, error) {
	if err := path.Validate(2); err != nil {
		return Polyline{}, nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.index(id)
	if i < 0 {
		return Polyline{}, nil, ErrNotFound
	}

	p.lines[i].Path = path.Clone()
	p.lines[i].Length = geo.Length(path)
	pl := p.lines[i]
	p.persist(pl)

	adv := advise(p.deps.Advisor, KindLength, pl.ID, pl.Length, p.deps.Limits.PolylineLength)

	pl.Path = pl.Path.Clone()
	return pl, adv, nil
}

// Select makes id the active polyline with its popup at anchor.
func (p *Polylines) Select(id int64, anchor geo.LatLng) error {
	if _, ok := p.Get(id); !ok {
		return ErrNotFound
	}
	p.set(Selection{ID: id, Anchor: anchor})
	return nil
}

// Attach subscribes the controller to path changes from feed, replacing any
// previous subscription. Events for unknown ids or invalid paths are logged
// and dropped.
func (p *Polylines) Attach(feed *EditFeed) {
	p.attach(feed, func(ev PathChange) {
		if _, _, err := p.Edit(context.Background(), ev.ShapeID, ev.Path); err != nil {
			log.Warn().Err(err).Int64("id", ev.ShapeID).Msg("Polyline edit event ignored")
		}
	})
}

// FeatureCollection returns the polylines as LineString features.
func (p *Polylines) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, pl := range p.List() {
		fc.Append(pl.Feature())
	}
	return fc
}

func (p *Polylines) index(id int64) int {
	for i := range p.lines {
		if p.lines[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *Polylines) persist(pl Polyline) {
	if err := p.deps.Writer.PutRecord(store.Polylines, pl); err != nil {
		log.Error().Err(err).Int64("id", pl.ID).Msg("Queue polyline write")
	}
}

func (p *Polylines) gauge() {
	metrics.ShapesGauge.WithLabelValues("polyline").Set(float64(len(p.lines)))
}
