// Package store provides the durable key-value persistence shared by the
// shape controllers: four named collections of JSON documents behind
// interchangeable backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Collection names a partition of the store.
type Collection string

// The four collections. The cache holds a single FeatureCollection under CacheKey.
const (
	Cache     Collection = "geojson"
	Markers   Collection = "markers"
	Polylines Collection = "polylines"
	Polygons  Collection = "polygons"
)

// CacheKey is the fixed key of the cached feature collection.
const CacheKey = "data"

// Collections lists every collection Initialize must create.
var Collections = []Collection{Cache, Markers, Polylines, Polygons}

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("store: not found")
	// ErrUnknownCollection is returned for collection names outside Collections.
	ErrUnknownCollection = errors.New("store: unknown collection")
	// ErrInvalidKey is returned for empty keys or keys that could escape a namespace.
	ErrInvalidKey = errors.New("store: invalid key")
	// ErrUnavailable marks connection-level failures that may succeed on retry.
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is a durable key-value store over the four collections.
//
// Put is last-write-wins per key. There are no transactions across
// collections and no delete operation.
type Store interface {
	// Initialize ensures all collections exist. It is idempotent and safe to
	// call concurrently.
	Initialize(ctx context.Context) error
	Get(ctx context.Context, c Collection, key string) ([]byte, error)
	// GetAll returns every value of the collection ordered by key.
	GetAll(ctx context.Context, c Collection) ([][]byte, error)
	Put(ctx context.Context, c Collection, key string, value []byte) error
	Close() error
}

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

func (c Collection) String() string { return string(c) }

func check(c Collection, key string) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	return checkKey(key)
}

func checkKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func checkCollection(c Collection) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	return nil
}

// unavailable wraps connection-level errors with ErrUnavailable so the write
// queue can tell them apart from permanent failures.
func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
