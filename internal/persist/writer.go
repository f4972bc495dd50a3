// Package persist serializes store writes on a single background queue so
// callers never block on storage and writes to one key keep their order.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoshapes/internal/metrics"
	"github.com/woozymasta/geoshapes/internal/store"
)

// ErrClosed is returned by writes submitted after Close.
var ErrClosed = errors.New("persist: writer closed")

// PersistenceError reports a write that failed after its retry budget.
type PersistenceError struct {
	Collection store.Collection
	Key        string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s/%s: %v", e.Collection, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type job struct {
	collection store.Collection
	key        string
	value      []byte
	done       chan struct{} // barrier when non-nil
}

// Writer drains a FIFO queue of writes with one goroutine. Writes are
// applied in submission order; a failed write is retried once when the
// backend reports it was unavailable and is then surfaced on Errors.
type Writer struct {
	store      store.Store
	retryDelay time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	errs   chan error
	wg     sync.WaitGroup
}

// NewWriter starts the worker. queue bounds the number of pending writes;
// submitters block when it is full.
func NewWriter(s store.Store, queue int, retryDelay time.Duration) *Writer {
	if queue <= 0 {
		queue = 1
	}

	w := &Writer{
		store:      s,
		retryDelay: retryDelay,
		jobs:       make(chan job, queue),
		errs:       make(chan error, queue),
	}

	w.wg.Add(1)
	go w.loop()
	return w
}

// Errors delivers write failures. The channel is closed by Close.
func (w *Writer) Errors() <-chan error { return w.errs }

// Put enqueues a raw value.
func (w *Writer) Put(c store.Collection, key string, value []byte) error {
	return w.submit(job{collection: c, key: key, value: value})
}

// PutRecord encodes r and enqueues it under r.StoreKey().
func (w *Writer) PutRecord(c store.Collection, r store.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("persist: encode %s/%s: %w", c, r.StoreKey(), err)
	}
	return w.Put(c, r.StoreKey(), data)
}

func (w *Writer) submit(j job) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrClosed
	}
	w.jobs <- j
	metrics.WriteQueueDepth.Inc()
	return nil
}

// Flush waits until every write submitted before the call was applied.
func (w *Writer) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := w.submit(job{done: done}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting writes, drains the queue and waits for the worker.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()

	w.wg.Wait()
	close(w.errs)
	return nil
}

func (w *Writer) loop() {
	defer w.wg.Done()

	for j := range w.jobs {
		metrics.WriteQueueDepth.Dec()
		if j.done != nil {
			close(j.done)
			continue
		}
		w.apply(j)
	}
	log.Debug().Msg("Write queue drained")
}

func (w *Writer) apply(j job) {
	ctx := context.Background()
	err := w.store.Put(ctx, j.collection, j.key, j.value)

	if errors.Is(err, store.ErrUnavailable) {
		metrics.StoreRetriesTotal.Inc()
		log.Debug().Err(err).
			Str("collection", j.collection.String()).
			Str("key", j.key).
			Msg("Store unavailable, retrying write")
		time.Sleep(w.retryDelay)
		err = w.store.Put(ctx, j.collection, j.key, j.value)
	}

	if err == nil {
		metrics.StoreWritesTotal.WithLabelValues(j.collection.String(), "ok").Inc()
		return
	}

	metrics.StoreWritesTotal.WithLabelValues(j.collection.String(), "error").Inc()
	perr := &PersistenceError{Collection: j.collection, Key: j.key, Err: err}
	log.Error().Err(err).
		Str("collection", j.collection.String()).
		Str("key", j.key).
		Msg("Persisting record failed")

	select {
	case w.errs <- perr:
	default:
		log.Warn().Str("key", j.key).Msg("Persistence error channel full, dropping error")
	}
}
