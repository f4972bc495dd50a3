package shapes

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshapes/internal/metrics"
)

// Kind names the metric an advisory is about.
type Kind string

// Advisory kinds.
const (
	KindLength Kind = "polyline_length"
	KindArea   Kind = "polygon_area"
)

// Advisory reports a derived metric above its limit. It never blocks the
// operation that produced it.
type Advisory struct {
	Kind     Kind    `json:"kind"`
	ShapeID  int64   `json:"shape_id"`
	Measured float64 `json:"measured"`
	Limit    float64 `json:"limit"`
}

func (a Advisory) String() string {
	switch a.Kind {
	case KindLength:
		return fmt.Sprintf("polyline %d is %.1f m long, over the %.0f m limit", a.ShapeID, a.Measured, a.Limit)
	case KindArea:
		return fmt.Sprintf("polygon %d covers %.1f m², over the %.0f m² limit", a.ShapeID, a.Measured, a.Limit)
	default:
		return fmt.Sprintf("%s %d: %.1f over %.1f", a.Kind, a.ShapeID, a.Measured, a.Limit)
	}
}

// Advisor receives advisories as they are raised.
type Advisor interface {
	Advise(Advisory)
}

// AdvisorFunc adapts a function to Advisor.
type AdvisorFunc func(Advisory)

// Advise calls f(a).
func (f AdvisorFunc) Advise(a Advisory) { f(a) }

// LogAdvisor logs advisories as warnings and counts them.
type LogAdvisor struct{}

// Advise implements Advisor.
func (LogAdvisor) Advise(a Advisory) {
	metrics.AdvisoriesTotal.WithLabelValues(string(a.Kind)).Inc()
	log.Warn().
		Str("kind", string(a.Kind)).
		Int64("id", a.ShapeID).
		Float64("measured", a.Measured).
		Float64("limit", a.Limit).
		Msg(a.String())
}

// Limits are the advisory thresholds.
type Limits struct {
	PolylineLength float64 // meters
	PolygonArea    float64 // square meters
}

// DefaultLimits returns 2 km for polylines and 1 km² for polygons.
func DefaultLimits() Limits {
	return Limits{PolylineLength: 2000, PolygonArea: 1_000_000}
}

// Exceeds reports whether measured is strictly above limit. A value equal to
// the limit is allowed.
func Exceeds(measured, limit float64) bool {
	return measured > limit
}

func advise(advisor Advisor, kind Kind, id int64, measured, limit float64) *Advisory {
	if !Exceeds(measured, limit) {
		return nil
	}
	a := Advisory{Kind: kind, ShapeID: id, Measured: measured, Limit: limit}
	advisor.Advise(a)
	return &a
}
