// Package redisstore implements cachetower.CacheLayer over Redis (component
// D), the shared, furthest tier of a stack. For a logical hash-table key K
// it persists two physical Redis keys: "K:hash", a Redis hash of
// element-key to encoded value, and "K:info", a single-field record holding
// the logical expiry. Both carry the same TTL and are written/read/evicted
// together under redis/go-redis/v9's transactional pipeline, adapted from
// the teacher's internal/cache/redis.go (go-redis client construction,
// Ping-based liveness, key-prefix convention) and the TxPipeline-per-call
// shape encoredev-encore's runtimes/go/storage/cache/cache.go uses for its
// own Redis-backed cache client.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cachetower/cachetower"
	"github.com/cachetower/cachetower/codec"
	"github.com/cachetower/cachetower/internal/observability"
	"github.com/cachetower/cachetower/internal/resilience"
)

// Layer is the Redis-backed cache layer (component D).
type Layer[T any] struct {
	client  *redis.Client
	codec   codec.Codec
	policy  *resilience.Policy
	metrics *observability.LayerMetrics
}

// Option configures a Layer at construction.
type Option[T any] func(*Layer[T])

// WithCodec overrides the default JSON codec used to encode values and the
// info record.
func WithCodec[T any](c codec.Codec) Option[T] {
	return func(l *Layer[T]) { l.codec = c }
}

// WithMetricsLabel wires Prometheus hit/miss/eviction counters under the
// given label.
func WithMetricsLabel[T any](label string) Option[T] {
	return func(l *Layer[T]) { l.metrics = observability.NewLayerMetrics(label) }
}

// New builds a Redis layer over client, guarded by a retry+circuit-breaker
// policy instead of the teacher's bare synchronous Ping.
func New[T any](client *redis.Client, opts ...Option[T]) *Layer[T] {
	l := &Layer[T]{client: client, codec: codec.NewJSONCodec(), policy: resilience.NewPolicy()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Client returns the underlying go-redis client so extensions/remoteeviction
// can borrow its pub/sub capability, per the base spec's ownership note that
// the remote-eviction extension "borrows the pub/sub capability from the
// Redis client" rather than the layer re-exposing its own narrower surface.
func (l *Layer[T]) Client() *redis.Client { return l.client }

func hashKey(hashTableKey string) string { return hashTableKey + ":hash" }
func infoKey(hashTableKey string) string { return hashTableKey + ":info" }

type infoRecord struct {
	Expiry *time.Time `json:"expiry"`
}

func (l *Layer[T]) encodeInfo(expiry *time.Time) ([]byte, error) {
	return codec.EncodeStruct(l.codec, infoRecord{Expiry: expiry})
}

func (l *Layer[T]) decodeInfo(data []byte) (*time.Time, error) {
	var rec infoRecord
	if err := codec.DecodeInto(l.codec, data, &rec); err != nil {
		return nil, err
	}
	return rec.Expiry, nil
}

func (l *Layer[T]) encodeValue(value T) ([]byte, error) {
	return codec.EncodeValue(l.codec, value)
}

func (l *Layer[T]) decodeValue(data []byte) (T, error) {
	return codec.DecodeValue[T](l.codec, data)
}

// GetValue reads a single hash field off K:hash directly; no TTL or info
// lookup is involved. A miss is suppressed inside the policy closure (like
// GetHash does for redis.Nil on its info read) so an absent field is never
// treated as a retryable failure: a field miss otherwise trips the circuit
// breaker and blocks writes for every caller sharing this layer.
func (l *Layer[T]) GetValue(ctx context.Context, hashTableKey, elementKey string) (*cachetower.CacheEntry[T], error) {
	var raw string
	var missing bool
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		var cmdErr error
		raw, cmdErr = l.client.HGet(ctx, hashKey(hashTableKey), elementKey).Result()
		if errors.Is(cmdErr, redis.Nil) {
			missing = true
			return nil
		}
		return cmdErr
	})
	if err != nil {
		return nil, cachetower.NewRemoteUnavailableError("redis", err)
	}
	if missing {
		l.metrics.Miss()
		return nil, nil
	}
	value, err := l.decodeValue([]byte(raw))
	if err != nil {
		return nil, err
	}
	l.metrics.Hit()
	return cachetower.NewCacheEntry(value, nil), nil
}

// SetValue sets a single hash field on K:hash. No TTL is touched here; a
// bare SetValue against a key that no prior SetHash ever established
// creates an entry with no expiry at the remote layer, per the base spec's
// §9 open question resolved in favor of "no expiry is an accepted outcome",
// not a rejected usage error -- a hierarchical cache's whole point is that
// a closer layer may legitimately hold element-level writes the remote tier
// never saw a full SetHash for yet.
func (l *Layer[T]) SetValue(ctx context.Context, hashTableKey, elementKey string, value T) error {
	encoded, err := l.encodeValue(value)
	if err != nil {
		return err
	}
	err = l.policy.Do(ctx, func(ctx context.Context) error {
		return l.client.HSet(ctx, hashKey(hashTableKey), elementKey, encoded).Err()
	})
	if err != nil {
		return cachetower.NewRemoteUnavailableError("redis", err)
	}
	return nil
}

// EvictValue removes a single hash field from K:hash.
func (l *Layer[T]) EvictValue(ctx context.Context, hashTableKey, elementKey string) error {
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		return l.client.HDel(ctx, hashKey(hashTableKey), elementKey).Err()
	})
	if err != nil {
		return cachetower.NewRemoteUnavailableError("redis", err)
	}
	return nil
}

// GetHash reads K:hash and K:info in one transactional pipeline. An empty
// or missing hash is reported absent; a hash with no K:info record (one
// built only through SetValue/SetHashSubset) is returned with a nil expiry.
func (l *Layer[T]) GetHash(ctx context.Context, hashTableKey string) (*cachetower.CacheSetEntry[T], error) {
	var fields map[string]string
	var info []byte
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		cmds, txErr := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HGetAll(ctx, hashKey(hashTableKey))
			pipe.Get(ctx, infoKey(hashTableKey))
			return nil
		})
		if txErr != nil && !errors.Is(txErr, redis.Nil) {
			return cachetower.NewRemoteTransactionRejectedError(hashTableKey, txErr)
		}
		hashCmd := cmds[0].(*redis.MapStringStringCmd)
		fields, _ = hashCmd.Result()
		if infoCmd, ok := cmds[1].(*redis.StringCmd); ok {
			if raw, infoErr := infoCmd.Result(); infoErr == nil {
				info = []byte(raw)
			}
		}
		return nil
	})
	if err != nil {
		var rejected *cachetower.RemoteTransactionRejectedError
		if errors.As(err, &rejected) {
			return nil, err
		}
		return nil, cachetower.NewRemoteUnavailableError("redis", err)
	}
	if len(fields) == 0 {
		l.metrics.Miss()
		return nil, nil
	}

	var expiry *time.Time
	if info != nil {
		expiry, err = l.decodeInfo(info)
		if err != nil {
			return nil, err
		}
	}

	elements := make(map[string]T, len(fields))
	for k, raw := range fields {
		v, decErr := l.decodeValue([]byte(raw))
		if decErr != nil {
			return nil, decErr
		}
		elements[k] = v
	}
	l.metrics.Hit()
	return cachetower.NewCacheSetEntry(elements, expiry), nil
}

// SetHash replaces K:hash and K:info wholesale, atomically, with a fresh TTL
// derived from entry's expiry. An already-past expiry is a no-op: the entry
// is already expired, so there is nothing useful to write.
func (l *Layer[T]) SetHash(ctx context.Context, hashTableKey string, entry *cachetower.CacheSetEntry[T]) error {
	expiry := entry.Expiry()
	offset := ttlUntil(expiry)
	if expiry != nil && offset <= 0 {
		return nil
	}

	encodedFields := make(map[string]any, entry.Len())
	for k, v := range entry.Snapshot() {
		encoded, err := l.encodeValue(v)
		if err != nil {
			return err
		}
		encodedFields[k] = encoded
	}
	info, err := l.encodeInfo(expiry)
	if err != nil {
		return err
	}

	err = l.policy.Do(ctx, func(ctx context.Context) error {
		_, txErr := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, hashKey(hashTableKey))
			if offset > 0 {
				pipe.Set(ctx, infoKey(hashTableKey), info, offset)
			} else {
				pipe.Set(ctx, infoKey(hashTableKey), info, 0)
			}
			if len(encodedFields) > 0 {
				pipe.HSet(ctx, hashKey(hashTableKey), encodedFields)
			}
			if offset > 0 {
				pipe.Expire(ctx, hashKey(hashTableKey), offset)
			}
			return nil
		})
		return txErr
	})
	if err != nil {
		return cachetower.NewRemoteTransactionRejectedError(hashTableKey, err)
	}
	return nil
}

// EvictHash transactionally deletes both K:hash and K:info.
func (l *Layer[T]) EvictHash(ctx context.Context, hashTableKey string) error {
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		_, txErr := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, hashKey(hashTableKey), infoKey(hashTableKey))
			return nil
		})
		return txErr
	})
	if err != nil {
		return cachetower.NewRemoteTransactionRejectedError(hashTableKey, err)
	}
	l.metrics.Eviction()
	return nil
}

// GetHashSubset bulk-reads elementKeys off K:hash with HMGET and no info
// lookup. A requested key Redis has no field for decodes to the language's
// absent sentinel and is simply omitted from the result rather than
// included with a zero value; if every requested key comes back absent this
// way the layer reports the whole key as not-present-here so the stack
// keeps searching deeper layers, since a lone HMGET result cannot otherwise
// distinguish "the hash doesn't exist" from "none of these fields are set".
func (l *Layer[T]) GetHashSubset(ctx context.Context, hashTableKey string, elementKeys []string) (map[string]T, error) {
	var raws []any
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		var cmdErr error
		raws, cmdErr = l.client.HMGet(ctx, hashKey(hashTableKey), elementKeys...).Result()
		return cmdErr
	})
	if err != nil {
		return nil, cachetower.NewRemoteUnavailableError("redis", err)
	}

	result := make(map[string]T, len(elementKeys))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		v, decErr := l.decodeValue([]byte(s))
		if decErr != nil {
			return nil, decErr
		}
		result[elementKeys[i]] = v
	}
	if len(result) == 0 {
		l.metrics.Miss()
		return nil, nil
	}
	l.metrics.Hit()
	return result, nil
}

// SetHashSubset writes every element of subset onto K:hash in one
// transactional pipeline, touching no TTL.
func (l *Layer[T]) SetHashSubset(ctx context.Context, hashTableKey string, subset map[string]T) error {
	encoded := make(map[string]any, len(subset))
	for k, v := range subset {
		enc, err := l.encodeValue(v)
		if err != nil {
			return err
		}
		encoded[k] = enc
	}
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		_, txErr := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hashKey(hashTableKey), encoded)
			return nil
		})
		return txErr
	})
	if err != nil {
		return cachetower.NewRemoteTransactionRejectedError(hashTableKey, err)
	}
	return nil
}

// EvictHashSubset deletes elementKeys off K:hash in one transactional
// pipeline.
func (l *Layer[T]) EvictHashSubset(ctx context.Context, hashTableKey string, elementKeys []string) error {
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		_, txErr := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, hashKey(hashTableKey), elementKeys...)
			return nil
		})
		return txErr
	})
	if err != nil {
		return cachetower.NewRemoteTransactionRejectedError(hashTableKey, err)
	}
	l.metrics.Eviction()
	return nil
}

// SetHashExpiry overwrites K:info's expiry and both keys' TTL in one
// transaction. A hash that doesn't exist is left alone; an expiry that has
// already passed deletes both keys.
func (l *Layer[T]) SetHashExpiry(ctx context.Context, hashTableKey string, expiry time.Time) error {
	var exists int64
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		var cmdErr error
		exists, cmdErr = l.client.Exists(ctx, hashKey(hashTableKey)).Result()
		return cmdErr
	})
	if err != nil {
		return cachetower.NewRemoteUnavailableError("redis", err)
	}
	if exists == 0 {
		return nil
	}

	floored := cachetower.FloorToSecond(expiry)
	info, err := l.encodeInfo(&floored)
	if err != nil {
		return err
	}
	ttl := ttlUntil(&floored)
	if ttl < 0 {
		ttl = 0
	}

	err = l.policy.Do(ctx, func(ctx context.Context) error {
		_, txErr := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl <= 0 {
				pipe.Del(ctx, hashKey(hashTableKey), infoKey(hashTableKey))
				return nil
			}
			pipe.Set(ctx, infoKey(hashTableKey), info, ttl)
			pipe.Expire(ctx, hashKey(hashTableKey), ttl)
			return nil
		})
		return txErr
	})
	if err != nil {
		return cachetower.NewRemoteTransactionRejectedError(hashTableKey, err)
	}
	return nil
}

// Cleanup is a no-op: Redis expires K:hash/K:info on its own via the TTLs
// SetHash/SetHashExpiry attach.
func (l *Layer[T]) Cleanup(ctx context.Context) error { return nil }

// Flush issues a database-wide FLUSHDB against the layer's configured
// database index.
func (l *Layer[T]) Flush(ctx context.Context) error {
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		return l.client.FlushDB(ctx).Err()
	})
	if err != nil {
		return cachetower.NewRemoteUnavailableError("redis", err)
	}
	return nil
}

// IsAvailable reports whether the circuit breaker currently allows calls
// and, if so, confirms the connection with a policy-guarded Ping.
func (l *Layer[T]) IsAvailable(ctx context.Context) bool {
	if !l.policy.Available() {
		return false
	}
	err := l.policy.Do(ctx, func(ctx context.Context) error {
		return l.client.Ping(ctx).Err()
	})
	return err == nil
}

// Dispose closes the underlying Redis client connection.
func (l *Layer[T]) Dispose() error { return l.client.Close() }

func ttlUntil(expiry *time.Time) time.Duration {
	if expiry == nil {
		return 0
	}
	return time.Until(*expiry)
}
