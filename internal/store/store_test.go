package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/woozymasta/geoshapes/internal/config"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (i item) StoreKey() string { return i.ID }

// exercise runs the behavior every backend must share.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}

	t.Run("missing key", func(t *testing.T) {
		if _, err := s.Get(ctx, Markers, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Get missing = %v; want ErrNotFound", err)
		}
	})

	t.Run("empty collection", func(t *testing.T) {
		all, err := s.GetAll(ctx, Polygons)
		if err != nil {
			t.Fatalf("GetAll: %v", err)
		}
		if len(all) != 0 {
			t.Fatalf("GetAll on empty collection returned %d values", len(all))
		}
	})

	t.Run("last write wins", func(t *testing.T) {
		if err := s.Put(ctx, Markers, "1", []byte(`{"id":"1","name":"a"}`)); err != nil {
			t.Fatal(err)
		}
		if err := s.Put(ctx, Markers, "1", []byte(`{"id":"1","name":"b"}`)); err != nil {
			t.Fatal(err)
		}
		got, err := GetRecord[item](ctx, s, Markers, "1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "b" {
			t.Fatalf("name = %q; want b", got.Name)
		}
	})

	t.Run("get all ordered", func(t *testing.T) {
		for _, it := range []item{{"3", "c"}, {"2", "b"}} {
			if err := PutRecord(ctx, s, Markers, it); err != nil {
				t.Fatal(err)
			}
		}
		all, err := LoadAll[item](ctx, s, Markers)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 {
			t.Fatalf("got %d records; want 3", len(all))
		}
		for i, want := range []string{"1", "2", "3"} {
			if all[i].ID != want {
				t.Fatalf("record %d id = %q; want %q", i, all[i].ID, want)
			}
		}
	})

	t.Run("collections are separate", func(t *testing.T) {
		all, err := s.GetAll(ctx, Polylines)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 0 {
			t.Fatalf("polylines sees %d marker records", len(all))
		}
	})

	t.Run("cache", func(t *testing.T) {
		if _, err := GetCache(ctx, s); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetCache before put = %v", err)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(orb.Point{1, 2}))
		if err := PutCache(ctx, s, fc); err != nil {
			t.Fatal(err)
		}
		back, err := GetCache(ctx, s)
		if err != nil {
			t.Fatal(err)
		}
		if len(back.Features) != 1 || back.Features[0].Geometry.(orb.Point) != (orb.Point{1, 2}) {
			t.Fatalf("cache round trip = %+v", back.Features)
		}
	})

	t.Run("validation", func(t *testing.T) {
		if err := s.Put(ctx, Collection("bogus"), "1", []byte(`{}`)); !errors.Is(err, ErrUnknownCollection) {
			t.Fatalf("unknown collection err = %v", err)
		}
		for _, key := range []string{"", "../x", "a/b"} {
			if err := s.Put(ctx, Markers, key, []byte(`{}`)); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("key %q err = %v; want ErrInvalidKey", key, err)
			}
		}
	})
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	exercise(t, NewFile(dir))

	for _, c := range Collections {
		if st, err := os.Stat(filepath.Join(dir, string(c))); err != nil || !st.IsDir() {
			t.Fatalf("collection dir %s missing: %v", c, err)
		}
	}

	// Data survives a new handle on the same directory.
	again := NewFile(dir)
	got, err := GetRecord[item](context.Background(), again, Markers, "2")
	if err != nil || got.Name != "b" {
		t.Fatalf("reopen: %+v, %v", got, err)
	}
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(mr.Addr(), "", 0, "test")
	defer s.Close()

	exercise(t, s)

	if !mr.Exists("test:markers") {
		t.Fatal("expected hash test:markers")
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(mr.Addr(), "", 0, "test")
	defer s.Close()
	mr.Close()

	err := s.Put(context.Background(), Markers, "1", []byte(`{}`))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v; want ErrUnavailable", err)
	}
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}

	ctx := context.Background()
	s, err := NewPostgres(ctx, dsn, "geoshapes_test_records")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS geoshapes_test_records"); err != nil {
		t.Fatal(err)
	}
	exercise(t, s)
}

func TestS3(t *testing.T) {
	endpoint := os.Getenv("S3_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("S3_TEST_ENDPOINT not set")
	}

	s, err := NewS3(config.S3{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("S3_TEST_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_TEST_SECRET_KEY"),
		Bucket:    "geoshapes-test",
		Prefix:    fmt.Sprintf("run-%d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatal(err)
	}
	exercise(t, s)
}

func TestInitializeConcurrent(t *testing.T) {
	s := NewFile(t.TempDir())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Initialize(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Initialize: %v", err)
		}
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.Store{Driver: config.DriverMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("memory driver gave %T", s)
	}

	s, err = Open(ctx, config.Store{Driver: config.DriverFile, Path: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*File); !ok {
		t.Fatalf("file driver gave %T", s)
	}

	if _, err := Open(ctx, config.Store{Driver: "etcd"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
