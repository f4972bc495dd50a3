package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Record is a value stored under its own identity.
type Record interface {
	StoreKey() string
}

// PutRecord encodes r as JSON and stores it under r.StoreKey().
func PutRecord(ctx context.Context, s Store, c Collection, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encode %s/%s: %w", c, r.StoreKey(), err)
	}
	return s.Put(ctx, c, r.StoreKey(), data)
}

// GetRecord loads and decodes a single record.
func GetRecord[T any](ctx context.Context, s Store, c Collection, key string) (T, error) {
	var out T
	data, err := s.Get(ctx, c, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("store: decode %s/%s: %w", c, key, err)
	}
	return out, nil
}

// LoadAll loads and decodes every record of a collection.
func LoadAll[T any](ctx context.Context, s Store, c Collection) ([]T, error) {
	values, err := s.GetAll(ctx, c)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(values))
	for _, data := range values {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("store: decode %s: %w", c, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// PutCache stores the feature collection under the fixed cache key.
func PutCache(ctx context.Context, s Store, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("store: encode cache: %w", err)
	}
	return s.Put(ctx, Cache, CacheKey, data)
}

// GetCache loads the cached feature collection; ErrNotFound when absent.
func GetCache(ctx context.Context, s Store) (*geojson.FeatureCollection, error) {
	data, err := s.Get(ctx, Cache, CacheKey)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("store: decode cache: %w", err)
	}
	return fc, nil
}
