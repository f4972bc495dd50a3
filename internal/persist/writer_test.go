package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/woozymasta/geoshapes/internal/store"
)

// flaky wraps a memory store and fails the first n puts with err.
type flaky struct {
	*store.Memory
	mu    sync.Mutex
	n     int
	err   error
	calls int
}

func (f *flaky) Put(ctx context.Context, c store.Collection, key string, value []byte) error {
	f.mu.Lock()
	f.calls++
	if f.n > 0 {
		f.n--
		f.mu.Unlock()
		return f.err
	}
	f.mu.Unlock()
	return f.Memory.Put(ctx, c, key, value)
}

type rec struct {
	ID  string `json:"id"`
	Seq int    `json:"seq"`
}

func (r rec) StoreKey() string { return r.ID }

func TestWriterOrderPerKey(t *testing.T) {
	mem := store.NewMemory()
	w := NewWriter(mem, 4, 0)
	defer w.Close()

	for i := 0; i < 50; i++ {
		if err := w.PutRecord(store.Polylines, rec{ID: "7", Seq: i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRecord[rec](context.Background(), mem, store.Polylines, "7")
	if err != nil {
		t.Fatal(err)
	}
	if got.Seq != 49 {
		t.Fatalf("final seq = %d; want 49", got.Seq)
	}
}

func TestWriterRetriesUnavailableOnce(t *testing.T) {
	f := &flaky{Memory: store.NewMemory(), n: 1, err: fmt.Errorf("dial: %w", store.ErrUnavailable)}
	w := NewWriter(f, 4, time.Millisecond)

	if err := w.Put(store.Markers, "1", []byte(`{"id":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if f.calls != 2 {
		t.Fatalf("store called %d times; want 2", f.calls)
	}
	if _, err := f.Get(context.Background(), store.Markers, "1"); err != nil {
		t.Fatalf("record not written after retry: %v", err)
	}
	for err := range w.Errors() {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWriterReportsPersistenceError(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		fails int
		calls int
	}{
		{"permanent", errors.New("disk full"), 1, 1},
		{"unavailable twice", store.ErrUnavailable, 2, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &flaky{Memory: store.NewMemory(), n: tc.fails, err: tc.err}
			w := NewWriter(f, 4, time.Millisecond)

			if err := w.Put(store.Polygons, "9", []byte(`{}`)); err != nil {
				t.Fatal(err)
			}

			select {
			case err := <-w.Errors():
				var perr *PersistenceError
				if !errors.As(err, &perr) {
					t.Fatalf("err = %T; want *PersistenceError", err)
				}
				if perr.Collection != store.Polygons || perr.Key != "9" {
					t.Fatalf("persistence error = %+v", perr)
				}
				if !errors.Is(err, tc.err) {
					t.Fatalf("err does not wrap %v", tc.err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("no persistence error reported")
			}

			_ = w.Close()
			if f.calls != tc.calls {
				t.Fatalf("store called %d times; want %d", f.calls, tc.calls)
			}
		})
	}
}

func TestWriterClosed(t *testing.T) {
	w := NewWriter(store.NewMemory(), 1, 0)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := w.Put(store.Markers, "1", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Put after Close = %v; want ErrClosed", err)
	}
	if err := w.Flush(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Flush after Close = %v; want ErrClosed", err)
	}
}

func TestWriterCloseDrains(t *testing.T) {
	mem := store.NewMemory()
	w := NewWriter(mem, 100, 0)

	for i := 0; i < 20; i++ {
		if err := w.PutRecord(store.Markers, rec{ID: fmt.Sprint(i), Seq: i}); err != nil {
			t.Fatal(err)
		}
	}
	_ = w.Close()

	all, err := mem.GetAll(context.Background(), store.Markers)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 20 {
		t.Fatalf("stored %d records after Close; want 20", len(all))
	}
}
