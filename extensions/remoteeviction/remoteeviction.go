// Package remoteeviction implements component G: a stack extension that
// bridges local mutations onto a Redis pub/sub bus so that peer processes
// sharing the same Redis tier evict their own local-layer copies instead of
// serving stale data. A node's own publish is flagged before it goes out,
// so when the broker echoes it back to the same subscriber the flag is
// found and the message is suppressed rather than re-applied.
package remoteeviction

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/cachetower/cachetower"
	"github.com/cachetower/cachetower/codec"
	"github.com/cachetower/cachetower/internal/observability"
)

// DefaultChannelPrefix matches the base spec's default ("CacheTower"),
// kept for a Go idiom under this module's own name.
const DefaultChannelPrefix = "CacheTower"

// defaultFlagTTL bounds how long a self-published flag survives before
// being evicted from the flag set on its own, implementing the base spec's
// §9 suggestion ("consider a timeout on stale flags") as a real mechanism:
// a lost or delayed echo no longer leaks a flag forever.
const defaultFlagTTL = 10 * time.Second

const defaultFlagCapacity = 4096

// Extension bridges a CacheStack's mutation events onto Redis pub/sub.
// Registration is one-to-one: a single Extension instance binds to exactly
// one stack, and a second Register call fails.
type Extension[T any] struct {
	client *redis.Client
	codec  codec.Codec
	prefix string
	layers []cachetower.CacheLayer[T]

	mu                      sync.Mutex
	flaggedEvictions        *lru.LRU[string, struct{}]
	flaggedEvictionMessages *lru.LRU[string, struct{}]
	hasFlushTriggered       bool

	registered bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Option configures an Extension at construction.
type Option[T any] func(*Extension[T])

// WithChannelPrefix overrides the default "CacheTower" channel prefix.
func WithChannelPrefix[T any](prefix string) Option[T] {
	return func(e *Extension[T]) { e.prefix = prefix }
}

// WithCodec overrides the default JSON codec used to encode
// HashKeyEvictionMessage payloads.
func WithCodec[T any](c codec.Codec) Option[T] {
	return func(e *Extension[T]) { e.codec = c }
}

// WithFlagTTL overrides how long a self-published flag is kept before
// expiring on its own.
func WithFlagTTL[T any](ttl time.Duration) Option[T] {
	return func(e *Extension[T]) {
		e.flaggedEvictions = lru.NewLRU[string, struct{}](defaultFlagCapacity, nil, ttl)
		e.flaggedEvictionMessages = lru.NewLRU[string, struct{}](defaultFlagCapacity, nil, ttl)
	}
}

// New builds a remote-eviction extension publishing/subscribing on client
// and applying received peer events to layers, in order.
func New[T any](client *redis.Client, layers []cachetower.CacheLayer[T], opts ...Option[T]) *Extension[T] {
	e := &Extension[T]{
		client: client,
		codec:  codec.NewJSONCodec(),
		prefix: DefaultChannelPrefix,
		layers: layers,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.flaggedEvictions == nil {
		e.flaggedEvictions = lru.NewLRU[string, struct{}](defaultFlagCapacity, nil, defaultFlagTTL)
	}
	if e.flaggedEvictionMessages == nil {
		e.flaggedEvictionMessages = lru.NewLRU[string, struct{}](defaultFlagCapacity, nil, defaultFlagTTL)
	}
	return e
}

func (e *Extension[T]) evictionChannel() string       { return e.prefix + ".RemoteEviction" }
func (e *Extension[T]) flushChannel() string           { return e.prefix + ".RemoteFlush" }
func (e *Extension[T]) hashKeyEvictionChannel() string { return e.prefix + ".RemoteHashKeyEviction" }

// Register binds this extension to stack and starts one pub/sub
// subscription covering its three channels. A second call on the same
// instance fails; only this instance's own registration is tracked, so a
// stack is not prevented from binding several distinct instances.
func (e *Extension[T]) Register(stack *cachetower.CacheStack[T]) error {
	e.mu.Lock()
	if e.registered {
		e.mu.Unlock()
		return cachetower.NewUsageError("remoteeviction: extension already registered to a stack")
	}
	e.registered = true
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	sub := e.client.Subscribe(ctx, e.evictionChannel(), e.flushChannel(), e.hashKeyEvictionChannel())
	e.wg.Add(1)
	go e.listen(ctx, sub)
	return nil
}

// Dispose stops the extension's subscription goroutine.
func (e *Extension[T]) Dispose() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	return nil
}

func (e *Extension[T]) listen(ctx context.Context, sub *redis.PubSub) {
	defer e.wg.Done()
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			e.handle(ctx, msg)
		}
	}
}

func (e *Extension[T]) handle(ctx context.Context, msg *redis.Message) {
	switch msg.Channel {
	case e.evictionChannel():
		e.receiveEviction(ctx, msg.Payload)
	case e.hashKeyEvictionChannel():
		e.receiveHashKeyEviction(ctx, []byte(msg.Payload))
	case e.flushChannel():
		e.receiveFlush(ctx)
	}
}

func (e *Extension[T]) receiveEviction(ctx context.Context, key string) {
	e.mu.Lock()
	suppressed := e.flaggedEvictions.Remove(key)
	e.mu.Unlock()

	if suppressed {
		observability.RemoteEchoSuppressedTotal.WithLabelValues(e.evictionChannel()).Inc()
		return
	}
	for _, layer := range e.layers {
		if err := layer.EvictHash(ctx, key); err != nil {
			observability.Logger().Warn().Err(err).Str("hashTableKey", key).
				Msg("remoteeviction: applying peer eviction failed")
		}
	}
	observability.RemoteAppliedTotal.WithLabelValues(e.evictionChannel()).Inc()
}

func (e *Extension[T]) receiveHashKeyEviction(ctx context.Context, payload []byte) {
	var msg cachetower.HashKeyEvictionMessage
	if err := codec.DecodeInto(e.codec, payload, &msg); err != nil {
		observability.Logger().Warn().Err(err).Msg("remoteeviction: decoding hash-key eviction message failed")
		return
	}

	e.mu.Lock()
	suppressed := e.flaggedEvictionMessages.Remove(msg.DedupeKey())
	e.mu.Unlock()

	if suppressed {
		observability.RemoteEchoSuppressedTotal.WithLabelValues(e.hashKeyEvictionChannel()).Inc()
		return
	}
	for _, layer := range e.layers {
		if err := layer.EvictHashSubset(ctx, msg.HashTableKey, msg.ElementKeys); err != nil {
			observability.Logger().Warn().Err(err).Str("hashTableKey", msg.HashTableKey).
				Msg("remoteeviction: applying peer hash-subset eviction failed")
		}
	}
	observability.RemoteAppliedTotal.WithLabelValues(e.hashKeyEvictionChannel()).Inc()
}

func (e *Extension[T]) receiveFlush(ctx context.Context) {
	e.mu.Lock()
	ours := e.hasFlushTriggered
	e.hasFlushTriggered = false
	e.mu.Unlock()

	if ours {
		observability.RemoteEchoSuppressedTotal.WithLabelValues(e.flushChannel()).Inc()
		return
	}
	for _, layer := range e.layers {
		flusher, ok := layer.(cachetower.Flusher)
		if !ok {
			continue
		}
		if err := flusher.Flush(ctx); err != nil {
			observability.Logger().Warn().Err(err).Msg("remoteeviction: applying peer flush failed")
		}
	}
	observability.RemoteAppliedTotal.WithLabelValues(e.flushChannel()).Inc()
}

func (e *Extension[T]) publishEviction(ctx context.Context, key string) {
	e.mu.Lock()
	e.flaggedEvictions.Add(key, struct{}{})
	e.mu.Unlock()
	if err := e.client.Publish(ctx, e.evictionChannel(), key).Err(); err != nil {
		observability.Logger().Warn().Err(err).Str("hashTableKey", key).
			Msg("remoteeviction: publishing eviction failed")
	}
}

func (e *Extension[T]) publishHashKeyEviction(ctx context.Context, key string, elementKeys []string) {
	msg := cachetower.NewHashKeyEvictionMessage(key, elementKeys)
	e.mu.Lock()
	e.flaggedEvictionMessages.Add(msg.DedupeKey(), struct{}{})
	e.mu.Unlock()

	payload, err := codec.EncodeStruct(e.codec, msg)
	if err != nil {
		observability.Logger().Warn().Err(err).Str("hashTableKey", key).
			Msg("remoteeviction: encoding hash-key eviction message failed")
		return
	}
	if err := e.client.Publish(ctx, e.hashKeyEvictionChannel(), payload).Err(); err != nil {
		observability.Logger().Warn().Err(err).Str("hashTableKey", key).
			Msg("remoteeviction: publishing hash-key eviction failed")
	}
}

func (e *Extension[T]) publishFlush(ctx context.Context) {
	e.mu.Lock()
	e.hasFlushTriggered = true
	e.mu.Unlock()
	if err := e.client.Publish(ctx, e.flushChannel(), "").Err(); err != nil {
		observability.Logger().Warn().Err(err).Msg("remoteeviction: publishing flush failed")
	}
}

// OnCacheUpdate publishes a whole-key invalidation: peers evict their own
// copy of hashTableKey entirely rather than receiving the new value, since
// the remote-eviction protocol broadcasts invalidation, not data.
func (e *Extension[T]) OnCacheUpdate(ctx context.Context, hashTableKey string, expiry *time.Time, updateType cachetower.CacheUpdateType) error {
	if updateType == cachetower.AddOrUpdateEntry {
		e.publishEviction(ctx, hashTableKey)
	}
	return nil
}

// OnHashUpdateElement publishes the same whole-key invalidation as
// OnCacheUpdate: the eviction channel is single-key granularity only (§4.G),
// so a single-element SetValue still invalidates the peer's whole hash.
func (e *Extension[T]) OnHashUpdateElement(ctx context.Context, hashTableKey, elementKey string, expiry *time.Time, updateType cachetower.CacheUpdateType) error {
	if updateType == cachetower.AddOrUpdateEntry {
		e.publishEviction(ctx, hashTableKey)
	}
	return nil
}

// OnHashSubsetUpdate publishes the same whole-key invalidation as
// OnCacheUpdate.
func (e *Extension[T]) OnHashSubsetUpdate(ctx context.Context, hashTableKey string, elementKeys []string, expiry *time.Time, updateType cachetower.CacheUpdateType) error {
	if updateType == cachetower.AddOrUpdateEntry {
		e.publishEviction(ctx, hashTableKey)
	}
	return nil
}

// OnCacheEviction publishes a whole-key invalidation.
func (e *Extension[T]) OnCacheEviction(ctx context.Context, hashTableKey string) error {
	e.publishEviction(ctx, hashTableKey)
	return nil
}

// OnHashElementEviction publishes an element-grain invalidation so peers
// evict only elementKey, preserving the rest of their cached hash.
func (e *Extension[T]) OnHashElementEviction(ctx context.Context, hashTableKey, elementKey string) error {
	e.publishHashKeyEviction(ctx, hashTableKey, []string{elementKey})
	return nil
}

// OnHashSubsetEviction publishes an element-grain invalidation covering
// every evicted element key.
func (e *Extension[T]) OnHashSubsetEviction(ctx context.Context, hashTableKey string, elementKeys []string) error {
	e.publishHashKeyEviction(ctx, hashTableKey, elementKeys)
	return nil
}

// OnCacheFlush publishes a flush invalidation.
func (e *Extension[T]) OnCacheFlush(ctx context.Context) error {
	e.publishFlush(ctx)
	return nil
}
