package geo

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadius is the mean earth radius in meters used for all measurements.
const EarthRadius = 6371008.8

func (p LatLng) s2LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lng)
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b LatLng) float64 {
	return a.s2LatLng().Distance(b.s2LatLng()).Radians() * EarthRadius
}

// Length returns the cumulative great-circle length of the path in meters.
func Length(path Path) float64 {
	var total s1.Angle
	for i := 1; i < len(path); i++ {
		total += path[i-1].s2LatLng().Distance(path[i].s2LatLng())
	}
	return total.Radians() * EarthRadius
}

// Area returns the spherical area enclosed by the ring in square meters.
//
// The ring may be open or closed and in either orientation; the smaller of
// the two regions bounded by the ring is measured.
func Area(path Path) float64 {
	ring := path.Ring()
	if len(ring) < 3 {
		return 0
	}

	points := make([]s2.Point, len(ring))
	for i, p := range ring {
		points[i] = s2.PointFromLatLng(p.s2LatLng())
	}

	// Loop.Area measures the region left of the edges; a clockwise ring
	// yields the complement.
	steradians := s2.LoopFromPoints(points).Area()
	if steradians > 2*math.Pi {
		steradians = 4*math.Pi - steradians
	}

	return steradians * EarthRadius * EarthRadius
}
