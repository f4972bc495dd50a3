package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshapes/internal/app"
	"github.com/woozymasta/geoshapes/internal/metrics"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	App *app.App
}

// NewServerContext wraps an opened application.
func NewServerContext(a *app.App) *ServerContext {
	st := a.Status()
	log.Info().
		Int("markers", st.Markers).
		Int("polylines", st.Polylines).
		Int("polygons", st.Polygons).
		Msg("Server context initialized")

	return &ServerContext{App: a}
}

// Routes registers every endpoint and wraps the mux with request logging.
func (s *ServerContext) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/markers", s.HandleMarkersList)
	mux.HandleFunc("POST /api/markers", s.HandleMarkerCreate)
	mux.HandleFunc("PATCH /api/markers/{id}/position", s.HandleMarkerMove)
	mux.HandleFunc("DELETE /api/markers/{id}", s.HandleMarkerRemove)

	mux.HandleFunc("GET /api/polylines", s.HandlePolylinesList)
	mux.HandleFunc("POST /api/polylines", s.HandlePolylineDraw)
	mux.HandleFunc("PUT /api/polylines/{id}/path", s.HandlePolylineEdit)
	mux.HandleFunc("POST /api/polylines/{id}/select", s.HandlePolylineSelect)
	mux.HandleFunc("GET /api/polylines/selection", s.HandlePolylineSelection)
	mux.HandleFunc("DELETE /api/polylines/selection", s.HandlePolylineClearSelection)

	mux.HandleFunc("GET /api/polygons", s.HandlePolygonsList)
	mux.HandleFunc("POST /api/polygons", s.HandlePolygonDraw)
	mux.HandleFunc("PUT /api/polygons/{id}/path", s.HandlePolygonEdit)
	mux.HandleFunc("POST /api/polygons/{id}/select", s.HandlePolygonSelect)
	mux.HandleFunc("GET /api/polygons/selection", s.HandlePolygonSelection)
	mux.HandleFunc("DELETE /api/polygons/selection", s.HandlePolygonClearSelection)

	mux.HandleFunc("GET /api/geojson", s.HandleCachedGeoJSON)
	mux.HandleFunc("GET /api/export.kml", s.HandleExportKML)
	mux.HandleFunc("GET /api/export.geojson", s.HandleExportGeoJSON)
	mux.HandleFunc("GET /api/status", s.HandleStatus)
	mux.Handle("GET /metrics", metrics.Handler())

	return RequestLogger(mux)
}
