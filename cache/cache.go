package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coti-io/coti-explorer-api-sub000/metrics"
)

var (
	ErrNotFound     = errors.New("key not found")
	ErrEncodeFailed = errors.New("failed to encode value")
	ErrDecodeFailed = errors.New("failed to decode value")
)

type Encoder[T any] func(value T) ([]byte, error)

type Decoder[T any] func(data []byte) (T, error)

// Cache stores values of one type under a common key prefix.
type Cache[T any] struct {
	client  *redis.Client
	encoder Encoder[T]
	decoder Decoder[T]
	prefix  string
	ttl     time.Duration
}

type Options[T any] struct {
	Client  *redis.Client
	Encoder Encoder[T]
	Decoder Decoder[T]
	Prefix  string
	// TTL applied by Set and MSet, zero keeps keys forever
	TTL time.Duration
}

func New[T any](opts Options[T]) *Cache[T] {
	return &Cache[T]{
		client:  opts.Client,
		encoder: opts.Encoder,
		decoder: opts.Decoder,
		prefix:  opts.Prefix,
		ttl:     opts.TTL,
	}
}

func (c *Cache[T]) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *Cache[T]) Set(ctx context.Context, key string, value T) error {
	data, err := c.encoder(value)
	if err != nil {
		return errors.Join(ErrEncodeFailed, err)
	}
	return c.client.Set(ctx, c.key(key), data, c.ttl).Err()
}

// Get returns ErrNotFound if the key does not exist.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, ErrNotFound
		}
		return zero, err
	}
	value, err := c.decoder(data)
	if err != nil {
		return zero, errors.Join(ErrDecodeFailed, err)
	}
	return value, nil
}

// GetOrLoad reads key and falls back to load when the entry cannot be read.
// A loaded value is written back; write-back failures are counted, not returned.
func (c *Cache[T]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if value, err := c.Get(ctx, key); err == nil {
		return value, nil
	}
	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if err := c.Set(ctx, key, value); err != nil {
		metrics.CacheWriteFailures.WithLabelValues(c.prefix).Inc()
	}
	return value, nil
}

// MGet returns the values of the keys that exist. Entries that fail to
// decode are skipped.
func (c *Cache[T]) MGet(ctx context.Context, keys ...string) (map[string]T, error) {
	values := make(map[string]T)
	if len(keys) == 0 {
		return values, nil
	}
	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = c.key(k)
	}
	results, err := c.client.MGet(ctx, fullKeys...).Result()
	if err != nil {
		return nil, err
	}
	for i, result := range results {
		var data []byte
		switch v := result.(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}
		value, err := c.decoder(data)
		if err != nil {
			continue
		}
		values[keys[i]] = value
	}
	return values, nil
}

// MSet writes all items in one pipeline.
func (c *Cache[T]) MSet(ctx context.Context, items map[string]T) error {
	if len(items) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for k, v := range items {
		data, err := c.encoder(v)
		if err != nil {
			return errors.Join(ErrEncodeFailed, err)
		}
		pipe.Set(ctx, c.key(k), data, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
