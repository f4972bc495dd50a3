// Package app wires the store, the write queue, ingestion and the shape
// controllers into one process-wide lifecycle object.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshapes/internal/config"
	"github.com/woozymasta/geoshapes/internal/ingest"
	"github.com/woozymasta/geoshapes/internal/persist"
	"github.com/woozymasta/geoshapes/internal/shapes"
	"github.com/woozymasta/geoshapes/internal/store"
)

// Collection kinds accepted by Collection.
const (
	KindMarkers   = "markers"
	KindPolylines = "polylines"
	KindPolygons  = "polygons"
	KindAll       = "all"
)

// App owns the single store connection for the life of the process.
type App struct {
	Config   *config.Config
	Store    store.Store
	Writer   *persist.Writer
	Ingester *ingest.Ingester

	Markers   *shapes.Markers
	Polylines *shapes.Polylines
	Polygons  *shapes.Polygons

	// Edit feeds the rendering side emits path changes on.
	PolylineEdits *shapes.EditFeed
	PolygonEdits  *shapes.EditFeed

	failures  atomic.Int64
	lastError atomic.Value // string
	drained   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Status summarizes the in-memory collections and persistence health.
type Status struct {
	Markers       int    `json:"markers"`
	Polylines     int    `json:"polylines"`
	Polygons      int    `json:"polygons"`
	WriteFailures int64  `json:"write_failures"`
	LastError     string `json:"last_error,omitempty"`
}

// Open connects the configured store, initializes its collections and wires
// the controllers. Controllers are empty until Load.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	s, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	a, err := New(ctx, cfg, s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return a, nil
}

// New wires an App around an already opened store and takes ownership of it.
func New(ctx context.Context, cfg *config.Config, s store.Store) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := s.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	a := &App{
		Config:        cfg,
		Store:         s,
		Writer:        persist.NewWriter(s, cfg.Writer.Queue, cfg.Writer.RetryDelay),
		Ingester:      ingest.New(s),
		PolylineEdits: shapes.NewEditFeed(),
		PolygonEdits:  shapes.NewEditFeed(),
	}

	deps := shapes.Deps{
		Store:   s,
		Writer:  a.Writer,
		Cache:   a.Ingester,
		IDs:     shapes.NewIDGenerator(),
		Advisor: shapes.LogAdvisor{},
		Limits: shapes.Limits{
			PolylineLength: cfg.Limits.PolylineLength,
			PolygonArea:    cfg.Limits.PolygonArea,
		},
	}
	a.Markers = shapes.NewMarkers(deps)
	a.Polylines = shapes.NewPolylines(deps)
	a.Polygons = shapes.NewPolygons(deps)
	a.Polylines.Attach(a.PolylineEdits)
	a.Polygons.Attach(a.PolygonEdits)

	a.drained.Add(1)
	go a.drainErrors()

	log.Info().
		Str("driver", cfg.Store.Driver).
		Float64("polyline_limit", cfg.Limits.PolylineLength).
		Float64("polygon_limit", cfg.Limits.PolygonArea).
		Msg("Application opened")

	return a, nil
}

func (a *App) drainErrors() {
	defer a.drained.Done()
	for err := range a.Writer.Errors() {
		a.failures.Add(1)
		a.lastError.Store(err.Error())
	}
}

// Seed ingests raw once. A parse error is logged and returned but leaves
// the application usable with empty collections.
func (a *App) Seed(ctx context.Context, raw []byte) (*geojson.FeatureCollection, error) {
	fc, err := a.Ingester.IngestOnce(ctx, raw)
	var perr *ingest.ParseError
	if errors.As(err, &perr) {
		log.Warn().Err(err).Msg("Seed document not usable, starting without ingested shapes")
	}
	return fc, err
}

// SeedFrom reads source only when nothing is cached yet, unless force is set,
// in which case the cache is replaced.
func (a *App) SeedFrom(ctx context.Context, source string, force bool) (*geojson.FeatureCollection, error) {
	if !force {
		if fc, err := a.Ingester.Cached(ctx); err == nil {
			log.Debug().Str("source", source).Msg("Cache present, seed source skipped")
			return fc, nil
		} else if !errors.Is(err, ingest.ErrNoCache) {
			return nil, err
		}
	}

	client := &http.Client{Timeout: 60 * time.Second}
	raw, err := ingest.ReadSource(ctx, client, source)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", source, err)
	}

	if force {
		return a.Ingester.Reingest(ctx, raw)
	}
	return a.Seed(ctx, raw)
}

// Load hydrates all three controllers.
func (a *App) Load(ctx context.Context) error {
	if err := a.Markers.Load(ctx); err != nil {
		return err
	}
	if err := a.Polylines.Load(ctx); err != nil {
		return err
	}
	return a.Polygons.Load(ctx)
}

// Collection returns the features of one shape kind: markers (the default
// for an empty kind), polylines, polygons or all. The second result names
// the collection for documents and file names.
func (a *App) Collection(kind string) (*geojson.FeatureCollection, string, error) {
	switch kind {
	case "", KindMarkers:
		return a.Markers.FeatureCollection(), KindMarkers, nil
	case KindPolylines:
		return a.Polylines.FeatureCollection(), kind, nil
	case KindPolygons:
		return a.Polygons.FeatureCollection(), kind, nil
	case KindAll:
		fc := a.Markers.FeatureCollection()
		fc.Features = append(fc.Features, a.Polylines.FeatureCollection().Features...)
		fc.Features = append(fc.Features, a.Polygons.FeatureCollection().Features...)
		return fc, "shapes", nil
	default:
		return nil, "", fmt.Errorf("%w: unknown kind %q", shapes.ErrNotFound, kind)
	}
}

// Status reports collection sizes and write failures seen so far.
func (a *App) Status() Status {
	st := Status{
		Markers:       len(a.Markers.List()),
		Polylines:     len(a.Polylines.List()),
		Polygons:      len(a.Polygons.List()),
		WriteFailures: a.failures.Load(),
	}
	if s, ok := a.lastError.Load().(string); ok {
		st.LastError = s
	}
	return st
}

// Flush waits for queued writes.
func (a *App) Flush(ctx context.Context) error {
	return a.Writer.Flush(ctx)
}

// Close drains pending writes and closes the store. It is safe to call more
// than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.Polylines.Detach()
		a.Polygons.Detach()

		_ = a.Writer.Close()
		a.drained.Wait()

		a.closeErr = a.Store.Close()
		log.Info().Int64("write_failures", a.failures.Load()).Msg("Application closed")
	})
	return a.closeErr
}
