// Package server exposes the shape controllers over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshapes/internal/export"
	"github.com/woozymasta/geoshapes/internal/geo"
	"github.com/woozymasta/geoshapes/internal/ingest"
	"github.com/woozymasta/geoshapes/internal/shapes"
)

// maxBody caps request bodies; paths are small.
const maxBody = 1 << 20

type pathRequest struct {
	Path geo.Path `json:"path"`
}

type selectRequest struct {
	Anchor geo.LatLng `json:"anchor"`
}

type polylineResponse struct {
	Polyline shapes.Polyline  `json:"polyline"`
	Advisory *shapes.Advisory `json:"advisory,omitempty"`
}

type polygonResponse struct {
	Polygon  shapes.Polygon   `json:"polygon"`
	Advisory *shapes.Advisory `json:"advisory,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shapes.ErrNotFound), errors.Is(err, ingest.ErrNoCache):
		status = http.StatusNotFound
	case errors.Is(err, shapes.ErrTitleRequired),
		errors.Is(err, shapes.ErrInvalidPath),
		errors.Is(err, shapes.ErrInvalidPosition):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// HandleMarkersList serves all markers.
func (s *ServerContext) HandleMarkersList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.App.Markers.List())
}

// HandleMarkerCreate creates a marker from a CreateMarker body.
func (s *ServerContext) HandleMarkerCreate(w http.ResponseWriter, r *http.Request) {
	var in shapes.CreateMarker
	if !decode(w, r, &in) {
		return
	}
	mk, err := s.App.Markers.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mk)
}

// HandleMarkerMove moves a marker to the position in the body.
func (s *ServerContext) HandleMarkerMove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var pos geo.LatLng
	if !decode(w, r, &pos) {
		return
	}
	mk, err := s.App.Markers.Move(r.Context(), id, pos)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mk)
}

// HandleMarkerRemove hides a marker for the rest of the process lifetime.
func (s *ServerContext) HandleMarkerRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !s.App.Markers.Remove(id) {
		writeError(w, shapes.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePolylinesList serves all polylines.
func (s *ServerContext) HandlePolylinesList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.App.Polylines.List())
}

// HandlePolylineDraw completes a drawn polyline.
func (s *ServerContext) HandlePolylineDraw(w http.ResponseWriter, r *http.Request) {
	var in pathRequest
	if !decode(w, r, &in) {
		return
	}
	pl, adv, err := s.App.Polylines.CompleteDraw(r.Context(), in.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, polylineResponse{Polyline: pl, Advisory: adv})
}

// HandlePolylineEdit replaces a polyline path.
func (s *ServerContext) HandlePolylineEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in pathRequest
	if !decode(w, r, &in) {
		return
	}
	pl, adv, err := s.App.Polylines.Edit(r.Context(), id, in.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, polylineResponse{Polyline: pl, Advisory: adv})
}

// HandlePolylineSelect marks a polyline active.
func (s *ServerContext) HandlePolylineSelect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in selectRequest
	if !decode(w, r, &in) {
		return
	}
	if err := s.App.Polylines.Select(id, in.Anchor); err != nil {
		writeError(w, err)
		return
	}
	sel, _ := s.App.Polylines.Selection()
	writeJSON(w, http.StatusOK, sel)
}

// HandlePolylineSelection serves the active polyline.
func (s *ServerContext) HandlePolylineSelection(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.App.Polylines.Selection()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// HandlePolylineClearSelection clears the active polyline.
func (s *ServerContext) HandlePolylineClearSelection(w http.ResponseWriter, r *http.Request) {
	s.App.Polylines.ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

// HandlePolygonsList serves all polygons.
func (s *ServerContext) HandlePolygonsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.App.Polygons.List())
}

// HandlePolygonDraw completes a drawn polygon.
func (s *ServerContext) HandlePolygonDraw(w http.ResponseWriter, r *http.Request) {
	var in pathRequest
	if !decode(w, r, &in) {
		return
	}
	pg, adv, err := s.App.Polygons.CompleteDraw(r.Context(), in.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, polygonResponse{Polygon: pg, Advisory: adv})
}

// HandlePolygonEdit replaces a polygon ring.
func (s *ServerContext) HandlePolygonEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in pathRequest
	if !decode(w, r, &in) {
		return
	}
	pg, adv, err := s.App.Polygons.Edit(r.Context(), id, in.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, polygonResponse{Polygon: pg, Advisory: adv})
}

// HandlePolygonSelect marks a polygon active.
func (s *ServerContext) HandlePolygonSelect(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in selectRequest
	if !decode(w, r, &in) {
		return
	}
	if err := s.App.Polygons.Select(id, in.Anchor); err != nil {
		writeError(w, err)
		return
	}
	sel, _ := s.App.Polygons.Selection()
	writeJSON(w, http.StatusOK, sel)
}

// HandlePolygonSelection serves the active polygon.
func (s *ServerContext) HandlePolygonSelection(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.App.Polygons.Selection()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// HandlePolygonClearSelection clears the active polygon.
func (s *ServerContext) HandlePolygonClearSelection(w http.ResponseWriter, r *http.Request) {
	s.App.Polygons.ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

// HandleCachedGeoJSON serves the ingested feature collection.
func (s *ServerContext) HandleCachedGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc, err := s.App.Ingester.Cached(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := export.ToGeoJSON(fc, export.Options{Minify: true})
	if err != nil {
		writeError(w, err)
		return
	}
	serveBytes(w, r, data, export.MediaTypeGeoJSON, "")
}

// HandleExportKML serves the selected shapes as a KML download.
func (s *ServerContext) HandleExportKML(w http.ResponseWriter, r *http.Request) {
	fc, name, err := s.exportCollection(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := export.ToMarkup(fc, exportOptions(r, name))
	if err != nil {
		writeError(w, err)
		return
	}
	serveBytes(w, r, data, export.MediaTypeKML, name+".kml")
}

// HandleExportGeoJSON serves the selected shapes as a GeoJSON download.
func (s *ServerContext) HandleExportGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc, name, err := s.exportCollection(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := export.ToGeoJSON(fc, exportOptions(r, name))
	if err != nil {
		writeError(w, err)
		return
	}
	serveBytes(w, r, data, export.MediaTypeGeoJSON, name+".geojson")
}

// HandleStatus serves collection sizes and persistence failures.
func (s *ServerContext) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.App.Status())
}

// exportCollection picks the collection named by ?kind=, markers by default.
func (s *ServerContext) exportCollection(r *http.Request) (*geojson.FeatureCollection, string, error) {
	return s.App.Collection(r.URL.Query().Get("kind"))
}

func exportOptions(r *http.Request, name string) export.Options {
	minify, _ := strconv.ParseBool(r.URL.Query().Get("minify"))
	return export.Options{Name: name, Minify: minify}
}

// serveBytes writes data with a content hash ETag and answers conditional
// requests with 304.
func serveBytes(w http.ResponseWriter, r *http.Request, data []byte, contentType, filename string) {
	h := fnv.New64a()
	_, _ = h.Write(data)
	etag := fmt.Sprintf(`"%x-%x"`, len(data), h.Sum64())

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	_, _ = w.Write(data)
}
