package cachetower

import (
	"context"
	"time"
)

// CacheLayer is the storage capability the stack composes into its ordered
// array: one tier (fast local, slower shared) able to serve single-value and
// hash-table reads/writes. A single logical "value" is addressed as one
// element within a named hash bucket throughout this package, so the same
// addressing scheme backs both the plain get/set/evict operations and the
// hash operations.
//
// GetValue/GetHash/GetHashSubset return (nil, nil) when the key is absent at
// this layer; a non-nil error means the layer itself failed (a transport
// error, a decode failure), which the stack treats as "this layer could not
// answer" on the read path and propagates on the write path.
//
// Flush is deliberately not part of this interface; see Flusher.
type CacheLayer[T any] interface {
	GetValue(ctx context.Context, hashTableKey, elementKey string) (*CacheEntry[T], error)
	SetValue(ctx context.Context, hashTableKey, elementKey string, value T) error
	EvictValue(ctx context.Context, hashTableKey, elementKey string) error

	GetHash(ctx context.Context, hashTableKey string) (*CacheSetEntry[T], error)
	SetHash(ctx context.Context, hashTableKey string, entry *CacheSetEntry[T]) error
	EvictHash(ctx context.Context, hashTableKey string) error

	// GetHashSubset returns (nil, nil) when hashTableKey is absent at this
	// layer entirely. When the key is present it returns a map containing
	// only the requested element keys that are resident, which may be
	// empty but is never nil. A layer that cannot tell an absent key from a
	// present one lacking every requested element (layers/redisstore)
	// returns (nil, nil) in both cases; the stack skips nil and empty
	// results alike.
	GetHashSubset(ctx context.Context, hashTableKey string, elementKeys []string) (map[string]T, error)
	SetHashSubset(ctx context.Context, hashTableKey string, subset map[string]T) error
	EvictHashSubset(ctx context.Context, hashTableKey string, elementKeys []string) error

	SetHashExpiry(ctx context.Context, hashTableKey string, expiry time.Time) error

	// Cleanup performs whatever passive-expiry compaction this layer needs;
	// layers that expire entries natively (Redis TTLs) may make this a
	// no-op.
	Cleanup(ctx context.Context) error

	// IsAvailable reports whether this layer can currently serve reads. The
	// stack consults it before every read but never before a write; writes
	// always attempt every layer and surface failures to the caller.
	IsAvailable(ctx context.Context) bool
}

// Flusher is implemented by layers that support a destructive full flush.
// It is kept separate from CacheLayer so a layer type can decline to expose
// it and so a bare CacheLayer reference never carries a flush footgun.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Disposer is implemented by layers and extensions holding resources
// (network connections, background goroutines) that must be released when
// the owning stack is disposed.
type Disposer interface {
	Dispose() error
}
