package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoData indicates neither the primary nor the fallback loader produced a value.
	ErrNoData = errors.New("no data: remote and local snapshot both unavailable")

	// ErrInvalidCapacity indicates a non-positive capacity.
	ErrInvalidCapacity = errors.New("cache capacity must be greater than 0")
)

// Loader produces a value for a cache miss.
type Loader[V any] func(ctx context.Context) (V, error)

type settings struct {
	capacity int64
	ttl      time.Duration
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*settings) error

// WithCapacity sets the maximum number of entries. Default is 1000.
func WithCapacity(n int64) Option {
	return func(s *settings) error {
		if n <= 0 {
			return ErrInvalidCapacity
		}
		s.capacity = n
		return nil
	}
}

// WithTTL sets how long entries live. Zero means entries never expire.
// Default is one hour.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) error {
		if ttl < 0 {
			return fmt.Errorf("negative ttl %s", ttl)
		}
		s.ttl = ttl
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// Cache is a bounded TTL cache. It is safe for concurrent use.
type Cache[K ristretto.Key, V any] struct {
	store  *ristretto.Cache[K, V]
	group  singleflight.Group
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Cache.
func New[K ristretto.Key, V any](opts ...Option) (*Cache[K, V], error) {
	s := settings{
		capacity: 1000,
		ttl:      time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, err
		}
	}

	store, err := ristretto.NewCache(&ristretto.Config[K, V]{
		NumCounters: s.capacity * 10,
		MaxCost:     s.capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &Cache[K, V]{
		store:  store,
		ttl:    s.ttl,
		logger: s.logger.With("component", "cache"),
	}, nil
}

// Get returns the cached value for key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.store.Get(key)
}

// Set stores value under key and waits until it is visible to Get.
func (c *Cache[K, V]) Set(key K, value V) {
	c.store.SetWithTTL(key, value, 1, c.ttl)
	c.store.Wait()
}

// GetOrLoad returns the cached value for key, loading it on a miss.
//
// load is tried first; if it is nil or fails, fallback is tried. The first
// value produced is cached. If both are nil or fail, the returned error wraps
// ErrNoData together with the loader errors.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, load, fallback Loader[V]) (V, error) {
	if v, ok := c.store.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(fmt.Sprint(key), func() (any, error) {
		if v, ok := c.store.Get(key); ok {
			return v, nil
		}

		var errs []error
		for _, source := range []struct {
			name string
			load Loader[V]
		}{{"primary", load}, {"fallback", fallback}} {
			if source.load == nil {
				continue
			}
			v, err := source.load(ctx)
			if err != nil {
				c.logger.Warn("cache loader failed", "key", key, "loader", source.name, "err", err)
				errs = append(errs, fmt.Errorf("%s: %w", source.name, err))
				continue
			}
			c.Set(key, v)
			c.logger.Debug("cache loaded", "key", key, "loader", source.name)
			return v, nil
		}

		return nil, errors.Join(append([]error{ErrNoData}, errs...)...)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Close stops the cache's background goroutines.
func (c *Cache[K, V]) Close() {
	c.store.Close()
}
