// Package metrics registers the prometheus collectors shared by all packages.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoshapes_http_requests_total",
		Help: "Total HTTP requests by method and status code",
	}, []string{"method", "code"})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geoshapes_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	StoreWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoshapes_store_writes_total",
		Help: "Store writes by collection and result",
	}, []string{"collection", "result"})
	StoreRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geoshapes_store_retries_total",
		Help: "Store writes retried after an unavailable backend",
	})
	WriteQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geoshapes_write_queue_depth",
		Help: "Writes waiting in the persistence queue",
	})
	IngestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoshapes_ingest_total",
		Help: "Ingest attempts by result (cached, parsed, failed)",
	}, []string{"result"})
	AdvisoriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geoshapes_advisories_total",
		Help: "Advisories raised by kind",
	}, []string{"kind"})
	ShapesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "geoshapes_shapes",
		Help: "Shapes held in memory by kind",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(StoreWritesTotal)
	prometheus.MustRegister(StoreRetriesTotal)
	prometheus.MustRegister(WriteQueueDepth)
	prometheus.MustRegister(IngestTotal)
	prometheus.MustRegister(AdvisoriesTotal)
	prometheus.MustRegister(ShapesGauge)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler { return promhttp.Handler() }
