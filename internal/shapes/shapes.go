// Package shapes holds the in-memory marker, polyline and polygon collections,
// recomputes their derived metrics on every geometry change and writes each
// mutation through to the store.
package shapes

import (
	"context"
	"errors"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/geoshapes/internal/geo"
	"github.com/woozymasta/geoshapes/internal/store"
)

var (
	// ErrTitleRequired is returned by marker creation without a title.
	ErrTitleRequired = errors.New("shapes: title is required")
	// ErrNotFound is returned for operations on unknown ids.
	ErrNotFound = errors.New("shapes: not found")
	// ErrInvalidPath is returned for paths that are too short or out of range.
	ErrInvalidPath = errors.New("shapes: invalid path")
	// ErrInvalidPosition is returned for marker positions outside WGS84 ranges.
	ErrInvalidPosition = errors.New("shapes: invalid position")
)

// Marker is a titled point.
type Marker struct {
	ID          int64      `json:"id"`
	Position    geo.LatLng `json:"position"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
}

// StoreKey implements store.Record.
func (m Marker) StoreKey() string { return strconv.FormatInt(m.ID, 10) }

// Polyline is an open path with its great-circle length in meters.
type Polyline struct {
	ID     int64    `json:"id"`
	Path   geo.Path `json:"path"`
	Length float64  `json:"length"`
}

// StoreKey implements store.Record.
func (p Polyline) StoreKey() string { return strconv.FormatInt(p.ID, 10) }

// Polygon is a ring with its spherical area in square meters.
type Polygon struct {
	ID   int64    `json:"id"`
	Path geo.Path `json:"path"`
	Area float64  `json:"area"`
}

// StoreKey implements store.Record.
func (p Polygon) StoreKey() string { return strconv.FormatInt(p.ID, 10) }

// CreateMarker is the input of a marker creation.
type CreateMarker struct {
	Position    geo.LatLng `json:"position"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
}

// Persister accepts per-record writes without waiting for them to land.
type Persister interface {
	PutRecord(c store.Collection, r store.Record) error
}

// CacheSource provides the ingested feature collection.
type CacheSource interface {
	Cached(ctx context.Context) (*geojson.FeatureCollection, error)
}

// Deps are the collaborators shared by all controllers.
type Deps struct {
	Store   store.Store // hydration reads
	Writer  Persister
	Cache   CacheSource // optional
	IDs     *IDGenerator
	Advisor Advisor
	Limits  Limits
}

func (d Deps) withDefaults() Deps {
	if d.IDs == nil {
		d.IDs = NewIDGenerator()
	}
	if d.Advisor == nil {
		d.Advisor = LogAdvisor{}
	}
	if d.Limits == (Limits{}) {
		d.Limits = DefaultLimits()
	}
	return d
}

// Feature returns the marker as a Point feature.
func (m Marker) Feature() *geojson.Feature {
	return geo.NewFeature(geo.PointFromLatLng(m.Position), map[string]interface{}{
		"id":          m.ID,
		"name":        m.Title,
		"description": m.Description,
	})
}

// Feature returns the polyline as a LineString feature.
func (p Polyline) Feature() *geojson.Feature {
	return geo.NewFeature(geo.LineStringFromPath(p.Path), map[string]interface{}{
		"id":     p.ID,
		"length": p.Length,
	})
}

// Feature returns the polygon as a Polygon feature with a closed ring.
func (p Polygon) Feature() *geojson.Feature {
	return geo.NewFeature(geo.PolygonFromPath(p.Path), map[string]interface{}{
		"id":   p.ID,
		"area": p.Area,
	})
}

// PolylineFromFeature converts a LineString feature into a polyline with
// length 0. The caller assigns the id.
func PolylineFromFeature(f *geojson.Feature) (Polyline, bool) {
	if f == nil || f.Geometry == nil || f.Geometry.GeoJSONType() != geo.TypeLineString {
		return Polyline{}, false
	}
	ls, ok := f.Geometry.(orb.LineString)
	if !ok {
		return Polyline{}, false
	}
	return Polyline{Path: geo.PathFromLineString(ls)}, true
}
