package shapes

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/woozymasta/geoshapes/internal/geo"
	"github.com/woozymasta/geoshapes/internal/ingest"
	"github.com/woozymasta/geoshapes/internal/persist"
	"github.com/woozymasta/geoshapes/internal/store"
)

const seedKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <name>Alpha</name>
      <description>camp</description>
      <Point><coordinates>20,10</coordinates></Point>
    </Placemark>
    <Placemark>
      <Point><coordinates>21,11</coordinates></Point>
    </Placemark>
    <Placemark>
      <name>Trail</name>
      <LineString><coordinates>0,0 0.01,0 0.02,0</coordinates></LineString>
    </Placemark>
  </Document>
</kml>`

type harness struct {
	t      *testing.T
	store  *store.Memory
	writer *persist.Writer
	ingest *ingest.Ingester

	mu         sync.Mutex
	advisories []Advisory
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{t: t, store: store.NewMemory()}
	if err := h.store.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.writer = persist.NewWriter(h.store, 64, time.Millisecond)
	h.ingest = ingest.New(h.store)
	t.Cleanup(func() { _ = h.writer.Close() })
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Store:  h.store,
		Writer: h.writer,
		Cache:  h.ingest,
		Advisor: AdvisorFunc(func(a Advisory) {
			h.mu.Lock()
			h.advisories = append(h.advisories, a)
			h.mu.Unlock()
		}),
		Limits: DefaultLimits(),
	}
}

func (h *harness) flush() {
	h.t.Helper()
	if err := h.writer.Flush(context.Background()); err != nil {
		h.t.Fatalf("Flush: %v", err)
	}
}

func (h *harness) advised() []Advisory {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Advisory(nil), h.advisories...)
}

func (h *harness) seed() {
	h.t.Helper()
	if _, err := h.ingest.IngestOnce(context.Background(), []byte(seedKML)); err != nil {
		h.t.Fatalf("IngestOnce: %v", err)
	}
}

func metersToDegrees(m float64) float64 {
	return m / geo.EarthRadius * 180 / math.Pi
}

func TestMarkersLoadFromIngestThenStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed()

	markers := NewMarkers(h.deps())
	if err := markers.Load(ctx); err != nil {
		t.Fatal(err)
	}

	got := markers.List()
	if len(got) != 2 {
		t.Fatalf("got %d markers; want 2", len(got))
	}
	want := Marker{ID: 0, Position: geo.LatLng{Lat: 10, Lng: 20}, Title: "Alpha", Description: "camp"}
	if got[0] != want {
		t.Fatalf("first marker = %+v; want %+v", got[0], want)
	}
	if got[1].ID != 1 || got[1].Title != "Marker 2" {
		t.Fatalf("second marker = %+v; want id 1 titled \"Marker 2\"", got[1])
	}

	h.flush()
	stored, err := store.LoadAll[Marker](ctx, h.store, store.Markers)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored %d markers; want 2", len(stored))
	}

	// A later ingestion must not be reconsidered once markers are stored.
	if _, err := h.ingest.Reingest(ctx, []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[1,1]},"properties":{}}]}`)); err != nil {
		t.Fatal(err)
	}

	restarted := NewMarkers(h.deps())
	if err := restarted.Load(ctx); err != nil {
		t.Fatal(err)
	}
	again := restarted.List()
	if len(again) != 2 || again[0] != want {
		t.Fatalf("reloaded markers = %+v", again)
	}
}

func TestMarkersLoadWithoutCache(t *testing.T) {
	h := newHarness(t)
	markers := NewMarkers(h.deps())
	if err := markers.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(markers.List()); n != 0 {
		t.Fatalf("got %d markers; want 0", n)
	}
}

func TestMarkersCreate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	markers := NewMarkers(h.deps())

	if _, err := markers.Create(ctx, CreateMarker{Position: geo.LatLng{Lat: 1, Lng: 2}, Title: "  "}); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("blank title err = %v; want ErrTitleRequired", err)
	}
	if _, err := markers.Create(ctx, CreateMarker{Position: geo.LatLng{Lat: 95}, Title: "x"}); !errors.Is(err, ErrInvalidPosition) {
		t.Fatalf("bad position err = %v; want ErrInvalidPosition", err)
	}
	h.flush()
	if all, _ := h.store.GetAll(ctx, store.Markers); len(all) != 0 {
		t.Fatalf("declined creations wrote %d records", len(all))
	}

	a, err := markers.Create(ctx, CreateMarker{Position: geo.LatLng{Lat: 1, Lng: 2}, Title: "Camp", Description: "tents"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := markers.Create(ctx, CreateMarker{Position: geo.LatLng{Lat: 3, Lng: 4}, Title: "Well"})
	if err != nil {
		t.Fatal(err)
	}
	if b.ID <= a.ID {
		t.Fatalf("ids not increasing: %d then %d", a.ID, b.ID)
	}

	h.flush()
	got, err := store.GetRecord[Marker](ctx, h.store, store.Markers, a.StoreKey())
	if err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Fatalf("stored %+v; want %+v", got, a)
	}
}

func TestMarkersMoveAndRemove(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	markers := NewMarkers(h.deps())

	mk, err := markers.Create(ctx, CreateMarker{Position: geo.LatLng{Lat: 1, Lng: 1}, Title: "A"})
	if err != nil {
		t.Fatal(err)
	}

	moved, err := markers.Move(ctx, mk.ID, geo.LatLng{Lat: 5, Lng: 6})
	if err != nil {
		t.Fatal(err)
	}
	if moved.Position != (geo.LatLng{Lat: 5, Lng: 6}) {
		t.Fatalf("moved position = %v", moved.Position)
	}
	if _, err := markers.Move(ctx, 424242, geo.LatLng{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("move unknown err = %v; want ErrNotFound", err)
	}

	h.flush()
	stored, err := store.GetRecord[Marker](ctx, h.store, store.Markers, mk.StoreKey())
	if err != nil {
		t.Fatal(err)
	}
	if stored.Position != moved.Position {
		t.Fatalf("stored position = %v; want %v", stored.Position, moved.Position)
	}

	if !markers.Remove(mk.ID) {
		t.Fatal("Remove returned false")
	}
	if markers.Remove(mk.ID) {
		t.Fatal("second Remove returned true")
	}
	if _, ok := markers.Get(mk.ID); ok {
		t.Fatal("removed marker still listed")
	}

	// Removal is not written through.
	reloaded := NewMarkers(h.deps())
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := reloaded.Get(mk.ID); !ok {
		t.Fatal("removed marker missing from store after reload")
	}
}

func TestPolylinesLoadFromIngest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed()

	lines := NewPolylines(h.deps())
	if err := lines.Load(ctx); err != nil {
		t.Fatal(err)
	}

	got := lines.List()
	if len(got) != 1 {
		t.Fatalf("got %d polylines; want 1", len(got))
	}
	pl := got[0]
	if pl.Length != 0 {
		t.Fatalf("ingested length = %f; want 0 until edited", pl.Length)
	}
	wantPath := geo.Path{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}, {Lat: 0, Lng: 0.02}}
	if len(pl.Path) != len(wantPath) {
		t.Fatalf("path = %v; want %v", pl.Path, wantPath)
	}
	for i := range wantPath {
		if pl.Path[i] != wantPath[i] {
			t.Fatalf("path = %v; want %v", pl.Path, wantPath)
		}
	}

	h.flush()
	reloaded := NewPolylines(h.deps())
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if again := reloaded.List(); len(again) != 1 || again[0].ID != pl.ID {
		t.Fatalf("reloaded polylines = %+v; want id %d", again, pl.ID)
	}

	edited, _, err := reloaded.Edit(ctx, pl.ID, pl.Path)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(edited.Length-2223.9) > 1 {
		t.Fatalf("length after edit = %f; want ≈2223.9", edited.Length)
	}
}

func TestPolylineCompleteDrawScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lines := NewPolylines(h.deps())

	pl, adv, err := lines.CompleteDraw(ctx, geo.Path{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.02}})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pl.Length-2223.9) > 1 {
		t.Fatalf("length = %f; want ≈2223.9", pl.Length)
	}
	if adv == nil || adv.Kind != KindLength || adv.ShapeID != pl.ID {
		t.Fatalf("advisory = %+v; want length advisory for %d", adv, pl.ID)
	}
	if n := len(h.advised()); n != 1 {
		t.Fatalf("advisor called %d times; want 1", n)
	}

	h.flush()
	stored, err := store.GetRecord[Polyline](ctx, h.store, store.Polylines, pl.StoreKey())
	if err != nil {
		t.Fatalf("polyline not persisted per record: %v", err)
	}
	if stored.Length != pl.Length {
		t.Fatalf("stored length = %f; want %f", stored.Length, pl.Length)
	}
	if _, err := h.store.Get(ctx, store.Cache, store.CacheKey); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("drawing touched the cache collection: %v", err)
	}
}

func TestPolylineThreshold(t *testing.T) {
	cases := []struct {
		name   string
		meters float64
		advise bool
	}{
		{"short", 500, false},
		{"just under", 1999.9, false},
		{"just over", 2000.1, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			lines := NewPolylines(h.deps())
			path := geo.Path{{Lat: 0, Lng: 0}, {Lat: 0, Lng: metersToDegrees(tc.meters)}}

			pl, adv, err := lines.CompleteDraw(context.Background(), path)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(pl.Length-tc.meters) > 0.01 {
				t.Fatalf("length = %f; want %f", pl.Length, tc.meters)
			}
			if (adv != nil) != tc.advise {
				t.Fatalf("advisory = %+v; want advise=%v", adv, tc.advise)
			}
			if _, ok := lines.Get(pl.ID); !ok {
				t.Fatal("polyline not created")
			}
		})
	}

	if Exceeds(2000, 2000) {
		t.Fatal("a value equal to the limit must not be a violation")
	}
	if !Exceeds(2000.1, 2000) {
		t.Fatal("2000.1 over 2000 must be a violation")
	}
}

func TestPolylineValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	lines := NewPolylines(h.deps())

	if _, _, err := lines.CompleteDraw(ctx, geo.Path{{Lat: 1, Lng: 1}}); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("single point err = %v; want ErrInvalidPath", err)
	}
	if _, _, err := lines.Edit(ctx, 1, geo.Path{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("edit unknown err = %v; want ErrNotFound", err)
	}
}

func TestPolylineRoundTrip(t *testing.T) {
	pl := Polyline{ID: 3, Path: geo.Path{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}, {Lat: 5, Lng: 6}, {Lat: 1, Lng: 2}}}

	back, ok := PolylineFromFeature(pl.Feature())
	if !ok {
		t.Fatal("feature not recognised as LineString")
	}
	if len(back.Path) != len(pl.Path) {
		t.Fatalf("point count %d; want %d", len(back.Path), len(pl.Path))
	}
	for i := range pl.Path {
		if back.Path[i] != pl.Path[i] {
			t.Fatalf("point %d = %v; want %v", i, back.Path[i], pl.Path[i])
		}
	}
}

func kmSquare(side float64) geo.Path {
	d := metersToDegrees(side)
	return geo.Path{{Lat: 0, Lng: 0}, {Lat: 0, Lng: d}, {Lat: d, Lng: d}, {Lat: d, Lng: 0}}
}

func TestPolygonCompleteDrawScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	polygons := NewPolygons(h.deps())

	pg, adv, err := polygons.CompleteDraw(ctx, kmSquare(1002))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pg.Area-1_000_000) > 10_000 {
		t.Fatalf("area = %f; want 1e6 ± 1%%", pg.Area)
	}
	if adv == nil || adv.Kind != KindArea {
		t.Fatalf("advisory = %+v; want area advisory", adv)
	}

	_, adv, err = polygons.CompleteDraw(ctx, kmSquare(990))
	if err != nil {
		t.Fatal(err)
	}
	if adv != nil {
		t.Fatalf("advisory under the limit: %+v", adv)
	}

	h.flush()
	if all, _ := h.store.GetAll(ctx, store.Polygons); len(all) != 2 {
		t.Fatalf("stored %d polygons; want 2", len(all))
	}
}

func TestPolygonSequentialEdits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	polygons := NewPolygons(h.deps())

	pg, _, err := polygons.CompleteDraw(ctx, kmSquare(100))
	if err != nil {
		t.Fatal(err)
	}

	first := kmSquare(200)
	second := kmSquare(300)
	if _, _, err := polygons.Edit(ctx, pg.ID, first); err != nil {
		t.Fatal(err)
	}
	edited, _, err := polygons.Edit(ctx, pg.ID, second)
	if err != nil {
		t.Fatal(err)
	}
	if edited.Area != geo.Area(second) {
		t.Fatalf("area = %f; want %f", edited.Area, geo.Area(second))
	}

	h.flush()
	stored, err := store.GetRecord[Polygon](ctx, h.store, store.Polygons, pg.StoreKey())
	if err != nil {
		t.Fatal(err)
	}
	mem, _ := polygons.Get(pg.ID)
	for _, got := range []Polygon{stored, mem} {
		if got.Area != edited.Area || len(got.Path) != len(second) || got.Path[2] != second[2] {
			t.Fatalf("state = %+v; want second edit %+v", got, edited)
		}
	}

	again, _, err := polygons.Edit(ctx, pg.ID, second)
	if err != nil {
		t.Fatal(err)
	}
	if again.Area != edited.Area {
		t.Fatalf("area not deterministic: %f then %f", edited.Area, again.Area)
	}
}

func TestPolygonValidationAndLoad(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed()
	polygons := NewPolygons(h.deps())

	cases := []geo.Path{
		{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}},
		{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}, {Lat: 0, Lng: 0}},
		{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 0, Lng: 0}},
	}
	for _, path := range cases {
		if _, _, err := polygons.CompleteDraw(ctx, path); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("path %v err = %v; want ErrInvalidPath", path, err)
		}
	}

	pg, _, err := polygons.CompleteDraw(ctx, kmSquare(50))
	if err != nil {
		t.Fatal(err)
	}
	h.flush()

	reloaded := NewPolygons(h.deps())
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	got := reloaded.List()
	if len(got) != 1 || got[0].ID != pg.ID {
		t.Fatalf("reloaded polygons = %+v; want only %d", got, pg.ID)
	}
}

func TestSelection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	polygons := NewPolygons(h.deps())

	a, _, _ := polygons.CompleteDraw(ctx, kmSquare(10))
	b, _, _ := polygons.CompleteDraw(ctx, kmSquare(20))

	if _, ok := polygons.Selection(); ok {
		t.Fatal("selection before Select")
	}
	if err := polygons.Select(a.ID, geo.LatLng{Lat: 1}); err != nil {
		t.Fatal(err)
	}
	if err := polygons.Select(b.ID, geo.LatLng{Lat: 2}); err != nil {
		t.Fatal(err)
	}
	sel, ok := polygons.Selection()
	if !ok || sel.ID != b.ID || sel.Anchor.Lat != 2 {
		t.Fatalf("selection = %+v, %v; want %d", sel, ok, b.ID)
	}
	if err := polygons.Select(999, geo.LatLng{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("select unknown err = %v", err)
	}

	polygons.ClearSelection()
	if _, ok := polygons.Selection(); ok {
		t.Fatal("selection after ClearSelection")
	}
}

type countingWriter struct {
	mu   sync.Mutex
	puts []string
}

func (c *countingWriter) PutRecord(col store.Collection, r store.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts = append(c.puts, string(col)+"/"+r.StoreKey())
	return nil
}

func TestAttachEditFeed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	w := &countingWriter{}
	d := h.deps()
	d.Writer = w

	polygons := NewPolygons(d)
	lines := NewPolylines(d)
	pg, _, _ := polygons.CompleteDraw(ctx, kmSquare(10))
	pl, _, _ := lines.CompleteDraw(ctx, geo.Path{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.001}})

	polyFeed := NewEditFeed()
	lineFeed := NewEditFeed()
	polygons.Attach(polyFeed)
	polygons.Attach(polyFeed)
	lines.Attach(lineFeed)

	before := len(w.puts)
	polyFeed.Emit(PathChange{ShapeID: pg.ID, Path: kmSquare(20)})
	if got := len(w.puts) - before; got != 1 {
		t.Fatalf("one event produced %d writes; want 1", got)
	}
	if got, _ := polygons.Get(pg.ID); got.Area != geo.Area(kmSquare(20)) {
		t.Fatalf("area after event = %f", got.Area)
	}

	before = len(w.puts)
	polyFeed.Emit(PathChange{ShapeID: 12345, Path: kmSquare(20)})
	polyFeed.Emit(PathChange{ShapeID: pg.ID, Path: geo.Path{{Lat: 0, Lng: 0}}})
	lineFeed.Emit(PathChange{ShapeID: pl.ID, Path: nil})
	if got := len(w.puts) - before; got != 0 {
		t.Fatalf("invalid events produced %d writes", got)
	}

	lineFeed.Emit(PathChange{ShapeID: pl.ID, Path: geo.Path{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.02}}})
	if got, _ := lines.Get(pl.ID); math.Abs(got.Length-2223.9) > 1 {
		t.Fatalf("length after event = %f", got.Length)
	}

	polygons.Detach()
	before = len(w.puts)
	polyFeed.Emit(PathChange{ShapeID: pg.ID, Path: kmSquare(30)})
	if len(w.puts) != before {
		t.Fatal("detached controller still receives events")
	}
}

func TestFeatureCollections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.deps()

	markers := NewMarkers(d)
	polygons := NewPolygons(d)
	_, _ = markers.Create(ctx, CreateMarker{Position: geo.LatLng{Lat: 10, Lng: 20}, Title: "Alpha"})
	_, _, _ = polygons.CompleteDraw(ctx, kmSquare(10))

	fc := markers.FeatureCollection()
	if len(fc.Features) != 1 || fc.Features[0].Properties["name"] != "Alpha" {
		t.Fatalf("marker features = %+v", fc.Features)
	}

	pfc := polygons.FeatureCollection()
	poly := pfc.Features[0].Geometry.(orb.Polygon)
	if !poly[0].Closed() {
		t.Fatal("exported polygon ring is not closed")
	}
	if ring := geo.PathFromPolygon(poly); len(ring) != 4 {
		t.Fatalf("polygon ring = %v; want 4 distinct points", ring)
	}
}

func TestIDGenerator(t *testing.T) {
	fixed := time.UnixMilli(1_000)
	g := &IDGenerator{now: func() time.Time { return fixed }}

	if id := g.Next(); id != 1_000 {
		t.Fatalf("first id = %d; want 1000", id)
	}
	if id := g.Next(); id != 1_001 {
		t.Fatalf("same-tick id = %d; want 1001", id)
	}

	g.Observe(5_000)
	if id := g.Next(); id != 5_001 {
		t.Fatalf("id after Observe = %d; want 5001", id)
	}
	g.Observe(10)
	if id := g.Next(); id != 5_002 {
		t.Fatalf("Observe of an older id moved the generator back: %d", id)
	}

	seen := make(map[int64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := g.Next()
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate id %d", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}
