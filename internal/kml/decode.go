// Package kml decodes KML documents into GeoJSON feature collections.
package kml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
)

// ErrNoGeometry is returned when a document holds no usable Point, LineString
// or Polygon placemark.
var ErrNoGeometry = errors.New("kml: no usable geometry")

// Internal structures for XML parsing. Tags carry no namespace so that both
// plain and namespaced (kml 2.2, gx) documents match.
type placemark struct {
	Name         string       `xml:"name"`
	Description  string       `xml:"description"`
	ExtendedData extendedData `xml:"ExtendedData"`

	Points        []coordinatesHolder `xml:"Point"`
	LineStrings   []coordinatesHolder `xml:"LineString"`
	Polygons      []polygon           `xml:"Polygon"`
	MultiGeometry []geometries        `xml:"MultiGeometry"`
}

type extendedData struct {
	Data []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value"`
	} `xml:"Data"`
}

type geometries struct {
	Points        []coordinatesHolder `xml:"Point"`
	LineStrings   []coordinatesHolder `xml:"LineString"`
	Polygons      []polygon           `xml:"Polygon"`
	MultiGeometry []geometries        `xml:"MultiGeometry"`
}

type coordinatesHolder struct {
	Coordinates string `xml:"coordinates"`
}

type polygon struct {
	Outer coordinatesHolder   `xml:"outerBoundaryIs>LinearRing"`
	Inner []coordinatesHolder `xml:"innerBoundaryIs>LinearRing"`
}

// Decode reads a KML document and returns one feature per placemark geometry,
// in document order. MultiGeometry members become separate features sharing
// the placemark properties.
func Decode(r io.Reader) (*geojson.FeatureCollection, error) {
	dec := xml.NewDecoder(r)

	fc := geojson.NewFeatureCollection()
	sawRoot := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("kml: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true
		if start.Name.Local != "Placemark" {
			continue
		}

		var pm placemark
		if err := dec.DecodeElement(&pm, &start); err != nil {
			return nil, fmt.Errorf("kml: placemark: %w", err)
		}
		for _, f := range pm.features() {
			fc.Append(f)
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("kml: empty document")
	}
	if len(fc.Features) == 0 {
		return nil, ErrNoGeometry
	}

	return fc, nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(data []byte) (*geojson.FeatureCollection, error) {
	return Decode(bytes.NewReader(data))
}

func (pm placemark) properties() geojson.Properties {
	props := geojson.Properties{}
	if name := strings.TrimSpace(pm.Name); name != "" {
		props["name"] = name
	}
	if desc := strings.TrimSpace(pm.Description); desc != "" {
		props["description"] = desc
	}
	for _, d := range pm.ExtendedData.Data {
		if d.Name == "" {
			continue
		}
		if _, taken := props[d.Name]; taken {
			continue
		}
		props[d.Name] = strings.TrimSpace(d.Value)
	}
	return props
}

func (pm placemark) features() []*geojson.Feature {
	g := geometries{
		Points:        pm.Points,
		LineStrings:   pm.LineStrings,
		Polygons:      pm.Polygons,
		MultiGeometry: pm.MultiGeometry,
	}
	props := pm.properties()

	var out []*geojson.Feature
	for _, geom := range g.flatten(pm.Name) {
		f := geojson.NewFeature(geom)
		for k, v := range props {
			f.Properties[k] = v
		}
		out = append(out, f)
	}
	return out
}

// flatten returns the usable geometries of g, recursing into MultiGeometry.
// Geometries with unparsable coordinates are skipped.
func (g geometries) flatten(name string) []orb.Geometry {
	var out []orb.Geometry

	for _, p := range g.Points {
		coords, err := parseCoordinates(p.Coordinates)
		if err != nil || len(coords) != 1 {
			log.Debug().Str("placemark", name).Err(err).Msg("Skipping point with invalid coordinates")
			continue
		}
		out = append(out, coords[0])
	}

	for _, ls := range g.LineStrings {
		coords, err := parseCoordinates(ls.Coordinates)
		if err != nil || len(coords) < 2 {
			log.Debug().Str("placemark", name).Err(err).Msg("Skipping line string with invalid coordinates")
			continue
		}
		out = append(out, orb.LineString(coords))
	}

	for _, pg := range g.Polygons {
		outer, err := parseCoordinates(pg.Outer.Coordinates)
		if err != nil || len(outer) < 3 {
			log.Debug().Str("placemark", name).Err(err).Msg("Skipping polygon with invalid outer ring")
			continue
		}
		poly := orb.Polygon{closeRing(outer)}
		for _, in := range pg.Inner {
			inner, err := parseCoordinates(in.Coordinates)
			if err != nil || len(inner) < 3 {
				continue
			}
			poly = append(poly, closeRing(inner))
		}
		out = append(out, poly)
	}

	for _, mg := range g.MultiGeometry {
		out = append(out, mg.flatten(name)...)
	}

	return out
}

func closeRing(points []orb.Point) orb.Ring {
	ring := orb.Ring(points)
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}

// parseCoordinates parses a KML coordinates string: whitespace separated
// "lon,lat[,alt]" tuples. Altitude is dropped.
func parseCoordinates(s string) ([]orb.Point, error) {
	fields := strings.Fields(s)
	points := make([]orb.Point, 0, len(fields))

	for _, tuple := range fields {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("coordinate %q: want lon,lat[,alt]", tuple)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("coordinate %q: %w", tuple, err)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("coordinate %q: %w", tuple, err)
		}
		if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("coordinate %q: out of range", tuple)
		}
		points = append(points, orb.Point{lon, lat})
	}

	return points, nil
}
