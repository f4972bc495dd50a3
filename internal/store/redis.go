package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Redis keeps each collection in a hash named <prefix>:<collection>.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis opens a client for addr. The connection is established lazily.
func NewRedis(addr, password string, db int, prefix string) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		prefix: prefix,
	}
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) hash(c Collection) string {
	if r.prefix == "" {
		return string(c)
	}
	return r.prefix + ":" + string(c)
}

// Initialize checks connectivity. Hashes are created on first write.
func (r *Redis) Initialize(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store: redis ping: %w", unavailable(err))
	}
	return nil
}

// Get reads one hash field.
func (r *Redis) Get(ctx context.Context, c Collection, key string) ([]byte, error) {
	if err := check(c, key); err != nil {
		return nil, err
	}

	data, err := r.client.HGet(ctx, r.hash(c), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: redis get %s/%s: %w", c, key, unavailable(err))
	}
	return data, nil
}

// GetAll reads the whole hash ordered by field name.
func (r *Redis) GetAll(ctx context.Context, c Collection) ([][]byte, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}

	all, err := r.client.HGetAll(ctx, r.hash(c)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis list %s: %w", c, unavailable(err))
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, []byte(all[k]))
	}
	return out, nil
}

// Put sets one hash field.
func (r *Redis) Put(ctx context.Context, c Collection, key string, value []byte) error {
	if err := check(c, key); err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.hash(c), key, value).Err(); err != nil {
		return fmt.Errorf("store: redis put %s/%s: %w", c, key, unavailable(err))
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error { return r.client.Close() }
