// Package export turns feature collections into downloadable documents.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tdewolff/minify/v2"
	minjson "github.com/tdewolff/minify/v2/json"
	minxml "github.com/tdewolff/minify/v2/xml"
	"github.com/twpayne/go-kml"
)

// Media types of the produced documents.
const (
	MediaTypeKML     = "application/vnd.google-earth.kml+xml"
	MediaTypeGeoJSON = "application/geo+json"
)

// ErrNilCollection is returned when there is nothing to convert.
var ErrNilCollection = errors.New("export: nil feature collection")

// ConversionError reports a feature that cannot be expressed in the target format.
type ConversionError struct {
	Index int
	Type  string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("export: feature %d: unsupported geometry %q", e.Index, e.Type)
}

// Options control document generation.
type Options struct {
	Name   string // document name
	Minify bool
}

var minifier = newMinifier()

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/xml", minxml.Minify)
	m.AddFunc("application/json", minjson.Minify)
	return m
}

// ToMarkup converts a feature collection to a KML document. Points,
// line strings and polygons become placemarks carrying the name and
// description properties.
func ToMarkup(fc *geojson.FeatureCollection, opts Options) ([]byte, error) {
	if fc == nil {
		return nil, ErrNilCollection
	}

	doc := kml.Document()
	if opts.Name != "" {
		doc.Add(kml.Name(opts.Name))
	}

	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			return nil, &ConversionError{Index: i, Type: "null"}
		}
		geom, err := geometryElement(f.Geometry)
		if err != nil {
			return nil, &ConversionError{Index: i, Type: f.Geometry.GeoJSONType()}
		}

		children := []kml.Element{}
		if name, ok := f.Properties["name"].(string); ok && name != "" {
			children = append(children, kml.Name(name))
		}
		if desc, ok := f.Properties["description"].(string); ok && desc != "" {
			children = append(children, kml.Description(desc))
		}
		children = append(children, geom)
		doc.Add(kml.Placemark(children...))
	}

	var buf bytes.Buffer
	if err := kml.KML(doc).WriteIndent(&buf, "", "  "); err != nil {
		return nil, fmt.Errorf("export: write kml: %w", err)
	}

	if !opts.Minify {
		return buf.Bytes(), nil
	}
	return minifier.Bytes("text/xml", buf.Bytes())
}

// ToGeoJSON marshals a feature collection, optionally minified.
func ToGeoJSON(fc *geojson.FeatureCollection, opts Options) ([]byte, error) {
	if fc == nil {
		return nil, ErrNilCollection
	}

	if opts.Minify {
		data, err := json.Marshal(fc)
		if err != nil {
			return nil, err
		}
		return minifier.Bytes("application/json", data)
	}
	return json.MarshalIndent(fc, "", "  ")
}

func geometryElement(g orb.Geometry) (kml.Element, error) {
	switch g := g.(type) {
	case orb.Point:
		return kml.Point(kml.Coordinates(coordinate(g))), nil
	case orb.LineString:
		return kml.LineString(kml.Coordinates(coordinates(g)...)), nil
	case orb.Polygon:
		if len(g) == 0 {
			return nil, errors.New("empty polygon")
		}
		children := []kml.Element{
			kml.OuterBoundaryIs(kml.LinearRing(kml.Coordinates(coordinates(closed(g[0]))...))),
		}
		for _, inner := range g[1:] {
			children = append(children, kml.InnerBoundaryIs(kml.LinearRing(kml.Coordinates(coordinates(closed(inner))...))))
		}
		return kml.Polygon(children...), nil
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
}

func coordinate(p orb.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p.Lon(), Lat: p.Lat()}
}

func coordinates(points []orb.Point) []kml.Coordinate {
	out := make([]kml.Coordinate, len(points))
	for i, p := range points {
		out[i] = coordinate(p)
	}
	return out
}

func closed(r orb.Ring) orb.Ring {
	if len(r) > 0 && !r.Closed() {
		return append(r[:len(r):len(r)], r[0])
	}
	return r
}
