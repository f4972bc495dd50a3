// Package geo handles geographic data structures, GeoJSON conversions and
// spherical measurements.
package geo

import (
	"fmt"
	"math"
)

// LatLng is a WGS84 position in degrees.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Path is an ordered sequence of positions.
type Path []LatLng

// Valid reports whether the position lies within the WGS84 ranges.
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p LatLng) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Validate checks that every point is valid and that the path has at least min points.
func (p Path) Validate(min int) error {
	if len(p) < min {
		return fmt.Errorf("path has %d points, need at least %d", len(p), min)
	}
	for i, pt := range p {
		if !pt.Valid() {
			return fmt.Errorf("point %d (%s) is out of range", i, pt)
		}
	}
	return nil
}

// Clone returns a copy that shares no memory with p.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Closed reports whether the first and last points coincide.
func (p Path) Closed() bool {
	return len(p) > 1 && p[0] == p[len(p)-1]
}

// Ring returns the distinct vertices of p as an open ring: consecutive
// duplicates and the closing point are dropped.
func (p Path) Ring() Path {
	out := make(Path, 0, len(p))
	for _, pt := range p {
		if len(out) > 0 && out[len(out)-1] == pt {
			continue
		}
		out = append(out, pt)
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}
