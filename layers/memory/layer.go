// Package memory implements cachetower.CacheLayer over an in-process store,
// the fast near-tier of a stack.
package memory

import (
	"context"
	"time"

	"github.com/cachetower/cachetower"
	"github.com/cachetower/cachetower/internal/observability"
	"github.com/cachetower/cachetower/layers/localstore"
)

// Layer is the local, in-process cache layer (component C). It stores one
// *cachetower.CacheSetEntry[T] per hash-table key in an underlying
// localstore.Store, so every hash-table key carries its own independent
// TTL even when other keys in the same layer never expire.
type Layer[T any] struct {
	store   *localstore.Store
	metrics *observability.LayerMetrics
}

// Option configures a Layer at construction.
type Option[T any] func(*Layer[T])

// WithMetricsLabel wires Prometheus hit/miss/eviction counters under the
// given label, mirroring the teacher's instrumentedCache decorator but as a
// field the layer owns directly.
func WithMetricsLabel[T any](label string) Option[T] {
	return func(l *Layer[T]) { l.metrics = observability.NewLayerMetrics(label) }
}

// New builds a memory layer over store.
func New[T any](store *localstore.Store, opts ...Option[T]) *Layer[T] {
	l := &Layer[T]{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Layer[T]) getBucket(hashTableKey string) (*cachetower.CacheSetEntry[T], bool) {
	v, ok := l.store.Get(hashTableKey)
	if !ok {
		return nil, false
	}
	bucket, ok := v.(*cachetower.CacheSetEntry[T])
	return bucket, ok
}

func (l *Layer[T]) ttlFor(expiry *time.Time) time.Duration {
	if expiry == nil {
		return 0
	}
	ttl := time.Until(*expiry)
	if ttl < 0 {
		return 0
	}
	return ttl
}

func (l *Layer[T]) GetValue(ctx context.Context, hashTableKey, elementKey string) (*cachetower.CacheEntry[T], error) {
	bucket, ok := l.getBucket(hashTableKey)
	if !ok {
		l.metrics.Miss()
		return nil, nil
	}
	val, ok := bucket.Get(elementKey)
	if !ok {
		l.metrics.Miss()
		return nil, nil
	}
	l.metrics.Hit()
	return cachetower.NewCacheEntry(val, bucket.Expiry()), nil
}

func (l *Layer[T]) SetValue(ctx context.Context, hashTableKey, elementKey string, value T) error {
	bucket, ok := l.getBucket(hashTableKey)
	if !ok {
		bucket = cachetower.NewCacheSetEntry[T](nil, nil)
		bucket.Set(elementKey, value)
		l.store.Set(hashTableKey, bucket, 0)
		return nil
	}
	bucket.Set(elementKey, value)
	return nil
}

func (l *Layer[T]) EvictValue(ctx context.Context, hashTableKey, elementKey string) error {
	bucket, ok := l.getBucket(hashTableKey)
	if !ok {
		return nil
	}
	if bucket.TryRemove(elementKey) {
		l.metrics.Eviction()
	}
	return nil
}

func (l *Layer[T]) GetHash(ctx context.Context, hashTableKey string) (*cachetower.CacheSetEntry[T], error) {
	bucket, ok := l.getBucket(hashTableKey)
	if !ok {
		l.metrics.Miss()
		return nil, nil
	}
	l.metrics.Hit()
	return bucket, nil
}

func (l *Layer[T]) SetHash(ctx context.Context, hashTableKey string, entry *cachetower.CacheSetEntry[T]) error {
	expiry := entry.Expiry()
	if expiry != nil && !time.Now().Before(*expiry) {
		l.store.Remove(hashTableKey)
		return nil
	}
	l.store.Set(hashTableKey, entry, l.ttlFor(expiry))
	return nil
}

func (l *Layer[T]) EvictHash(ctx context.Context, hashTableKey string) error {
	l.store.Remove(hashTableKey)
	l.metrics.Eviction()
	return nil
}

func (l *Layer[T]) GetHashSubset(ctx context.Context, hashTableKey string, elementKeys []string) (map[string]T, error) {
	bucket, ok := l.getBucket(hashTableKey)
	if !ok {
		l.metrics.Miss()
		return nil, nil
	}
	result := make(map[string]T)
	for _, k := range elementKeys {
		if v, ok := bucket.Get(k); ok {
			result[k] = v
		}
	}
	if len(result) > 0 {
		l.metrics.Hit()
	} else {
		l.metrics.Miss()
	}
	return result, nil
}

func (l *Layer[T]) SetHashSubset(ctx context.Context, hashTableKey string, subset map[string]T) error {
	bucket, ok := l.getBucket(hashTableKey)
	if !ok {
		bucket = cachetower.NewCacheSetEntry[T](subset, nil)
		l.store.Set(hashTableKey, bucket, 0)
		return nil
	}
	for k, v := range subset {
		bucket.Set(k, v)
	}
	return nil
}

func (l *Layer[T]) EvictHashSubset(ctx context.Context, hashTableKey string, elementKeys []string) error {
	bucket, ok := l.getBucket(hashTableKey)
	if !ok {
		return nil
	}
	bucket.RemoveAll(elementKeys)
	l.metrics.Eviction()
	return nil
}

func (l *Layer[T]) SetHashExpiry(ctx context.Context, hashTableKey string, expiry time.Time) error {
	bucket, ok := l.getBucket(hashTableKey)
	if !ok {
		return nil
	}
	bucket.SetExpiry(&expiry)
	if !time.Now().Before(expiry) {
		l.store.Remove(hashTableKey)
		return nil
	}
	l.store.Set(hashTableKey, bucket, time.Until(expiry))
	return nil
}

func (l *Layer[T]) Cleanup(ctx context.Context) error {
	l.store.CompactExpired()
	return nil
}

// Flush implements cachetower.Flusher.
func (l *Layer[T]) Flush(ctx context.Context) error {
	l.store.Flush()
	return nil
}

func (l *Layer[T]) IsAvailable(ctx context.Context) bool { return true }

// Dispose implements cachetower.Disposer.
func (l *Layer[T]) Dispose() error {
	l.store.Close()
	return nil
}
