package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoJSON geometry type names.
const (
	TypePoint      = "Point"
	TypeLineString = "LineString"
	TypePolygon    = "Polygon"
)

// PointFromLatLng converts a position into a [lon, lat] point.
func PointFromLatLng(p LatLng) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// LatLngFromPoint converts a [lon, lat] point into a position.
func LatLngFromPoint(p orb.Point) LatLng {
	return LatLng{Lat: p.Lat(), Lng: p.Lon()}
}

// LineStringFromPath converts a path, preserving point order and count.
func LineStringFromPath(path Path) orb.LineString {
	ls := make(orb.LineString, len(path))
	for i, p := range path {
		ls[i] = PointFromLatLng(p)
	}
	return ls
}

// PathFromLineString converts a line string, preserving point order and count.
func PathFromLineString(ls orb.LineString) Path {
	path := make(Path, len(ls))
	for i, p := range ls {
		path[i] = LatLngFromPoint(p)
	}
	return path
}

// PolygonFromPath builds a single-ring polygon, closing the ring if needed.
func PolygonFromPath(path Path) orb.Polygon {
	ring := make(orb.Ring, 0, len(path)+1)
	for _, p := range path {
		ring = append(ring, PointFromLatLng(p))
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}
}

// PathFromPolygon returns the outer ring of the polygon as an open path.
func PathFromPolygon(poly orb.Polygon) Path {
	if len(poly) == 0 {
		return nil
	}
	path := make(Path, len(poly[0]))
	for i, p := range poly[0] {
		path[i] = LatLngFromPoint(p)
	}
	return path.Ring()
}

// NewFeature wraps a geometry into a feature with the given properties.
func NewFeature(g orb.Geometry, props map[string]interface{}) *geojson.Feature {
	f := geojson.NewFeature(g)
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

// FilterType returns the features whose geometry has the given GeoJSON type,
// keeping their order.
func FilterType(fc *geojson.FeatureCollection, geometryType string) []*geojson.Feature {
	if fc == nil {
		return nil
	}
	out := make([]*geojson.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if f.Geometry.GeoJSONType() == geometryType {
			out = append(out, f)
		}
	}
	return out
}

// PropertyString returns a string property, or def when absent or not a string.
func PropertyString(f *geojson.Feature, key, def string) string {
	if f == nil || f.Properties == nil {
		return def
	}
	if s, ok := f.Properties[key].(string); ok && s != "" {
		return s
	}
	return def
}
