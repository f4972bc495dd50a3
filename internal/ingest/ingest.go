// Package ingest converts a seed markup document into the canonical feature
// collection and caches it in the store exactly once.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshapes/internal/geo"
	"github.com/woozymasta/geoshapes/internal/kml"
	"github.com/woozymasta/geoshapes/internal/metrics"
	"github.com/woozymasta/geoshapes/internal/store"
)

// ErrNoCache is returned by Cached before anything was ingested.
var ErrNoCache = errors.New("ingest: no cached feature collection")

// ParseError reports markup that is malformed, empty or has no usable
// geometry. It is never fatal: callers log it and continue with empty
// collections.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "ingest: parse: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse converts raw markup into a feature collection. GeoJSON is detected by
// a leading '{'; anything else is read as KML. Only Point, LineString and
// Polygon features are kept.
func Parse(raw []byte) (*geojson.FeatureCollection, error) {
	body := bytes.TrimSpace(bytes.TrimPrefix(raw, utf8BOM))
	if len(body) == 0 {
		return nil, &ParseError{Err: errors.New("empty document")}
	}

	var (
		fc  *geojson.FeatureCollection
		err error
	)
	if body[0] == '{' {
		fc, err = geojson.UnmarshalFeatureCollection(body)
	} else {
		fc, err = kml.DecodeBytes(body)
	}
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	usable := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		switch f.Geometry.GeoJSONType() {
		case geo.TypePoint, geo.TypeLineString, geo.TypePolygon:
			usable.Append(f)
		}
	}
	if len(usable.Features) == 0 {
		return nil, &ParseError{Err: kml.ErrNoGeometry}
	}
	return usable, nil
}

// Ingester owns the cached feature collection in the store.
type Ingester struct {
	store store.Store
	mu    sync.Mutex
}

// New returns an ingester caching into s.
func New(s store.Store) *Ingester {
	return &Ingester{store: s}
}

// Cached returns the cached collection or ErrNoCache.
func (i *Ingester) Cached(ctx context.Context) (*geojson.FeatureCollection, error) {
	fc, err := store.GetCache(ctx, i.store)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoCache
	}
	return fc, err
}

// IngestOnce returns the cached collection when present without looking at
// raw. Otherwise it parses raw, caches the result and returns it.
func (i *Ingester) IngestOnce(ctx context.Context, raw []byte) (*geojson.FeatureCollection, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	fc, err := i.Cached(ctx)
	if err == nil {
		metrics.IngestTotal.WithLabelValues("cached").Inc()
		log.Debug().Int("features", len(fc.Features)).Msg("Using cached feature collection")
		return fc, nil
	}
	if !errors.Is(err, ErrNoCache) {
		return nil, err
	}

	return i.ingest(ctx, raw)
}

// Reingest parses raw and replaces the cached collection unconditionally.
// Shapes already hydrated into the store are not touched.
func (i *Ingester) Reingest(ctx context.Context, raw []byte) (*geojson.FeatureCollection, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.ingest(ctx, raw)
}

func (i *Ingester) ingest(ctx context.Context, raw []byte) (*geojson.FeatureCollection, error) {
	fc, err := Parse(raw)
	if err != nil {
		metrics.IngestTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	if err := store.PutCache(ctx, i.store, fc); err != nil {
		metrics.IngestTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("ingest: cache: %w", err)
	}

	metrics.IngestTotal.WithLabelValues("parsed").Inc()
	log.Info().
		Int("features", len(fc.Features)).
		Int("points", len(geo.FilterType(fc, geo.TypePoint))).
		Int("lines", len(geo.FilterType(fc, geo.TypeLineString))).
		Int("polygons", len(geo.FilterType(fc, geo.TypePolygon))).
		Msg("Feature collection ingested")

	return fc, nil
}
