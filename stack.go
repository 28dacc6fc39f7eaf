package cachetower

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cachetower/cachetower/internal/observability"
)

// CacheStack is the read-through/write-through facade over an ordered array
// of layers, nearest (fastest) first. Reads descend the layers until one
// produces a non-expired hit, then back-populate every closer layer; writes
// apply to every layer in order and then notify registered extensions.
type CacheStack[T any] struct {
	layers    []CacheLayer[T]
	container *extensionContainer[T]
	clock     Clock
	disposed  atomic.Bool
}

// Option configures a CacheStack at construction time.
type Option[T any] func(*stackConfig[T])

type stackConfig[T any] struct {
	extensions []Extension[T]
	clock      Clock
}

// WithExtensions registers extensions with the stack being built, in the
// order given. Extensions that also implement ChangeObserver are notified
// of every mutation in this same order.
func WithExtensions[T any](extensions ...Extension[T]) Option[T] {
	return func(c *stackConfig[T]) { c.extensions = append(c.extensions, extensions...) }
}

// WithClock overrides the stack's notion of "now", primarily for tests.
func WithClock[T any](clock Clock) Option[T] {
	return func(c *stackConfig[T]) { c.clock = clock }
}

// NewStack builds a stack over layers (nearest first) and registers opts'
// extensions against it.
func NewStack[T any](layers []CacheLayer[T], opts ...Option[T]) (*CacheStack[T], error) {
	if len(layers) == 0 {
		return nil, NewUsageError("at least one layer is required")
	}
	cfg := &stackConfig[T]{clock: systemClock{}}
	for _, opt := range opts {
		opt(cfg)
	}
	stack := &CacheStack[T]{
		layers:    layers,
		container: newExtensionContainer(cfg.extensions),
		clock:     cfg.clock,
	}
	if err := stack.container.registerAll(stack); err != nil {
		return nil, err
	}
	return stack, nil
}

func (s *CacheStack[T]) checkDisposed() error {
	if s.disposed.Load() {
		return &DisposedError{}
	}
	return nil
}

func (s *CacheStack[T]) reportFatal(err error, hashTableKey string) {
	observability.ReportFatal(err, map[string]string{"hashTableKey": hashTableKey})
}

// GetValue reads a single element, descending layers until one produces a
// non-expired hit, then back-populating every closer layer with it.
func (s *CacheStack[T]) GetValue(ctx context.Context, hashTableKey, elementKey string) (T, error) {
	var zero T
	if err := s.checkDisposed(); err != nil {
		return zero, err
	}
	if hashTableKey == "" || elementKey == "" {
		return zero, NewUsageError("hashTableKey and elementKey must not be empty")
	}

	for i, layer := range s.layers {
		if !layer.IsAvailable(ctx) {
			continue
		}
		entry, err := layer.GetValue(ctx, hashTableKey, elementKey)
		if err != nil {
			continue
		}
		if entry == nil || entry.Expired(s.clock.Now()) {
			continue
		}
		if i > 0 {
			s.backfillValue(ctx, i, hashTableKey, elementKey, entry)
		}
		return entry.Value, nil
	}
	return zero, nil
}

func (s *CacheStack[T]) backfillValue(ctx context.Context, producingIndex int, hashTableKey, elementKey string, entry *CacheEntry[T]) {
	for i := 0; i < producingIndex; i++ {
		layer := s.layers[i]
		if !layer.IsAvailable(ctx) {
			continue
		}
		if err := layer.SetValue(ctx, hashTableKey, elementKey, entry.Value); err != nil {
			observability.Logger().Warn().Err(err).Str("hashTableKey", hashTableKey).Str("elementKey", elementKey).
				Msg("cachetower: value back-population failed")
		}
	}
}

// SetValue writes a single element to every layer, in order, then notifies
// observers. A failure at any layer aborts and is returned without
// attempting the remaining layers.
func (s *CacheStack[T]) SetValue(ctx context.Context, hashTableKey, elementKey string, value T) error {
	if err := s.checkDisposed(); err != nil {
		return err
	}
	if hashTableKey == "" || elementKey == "" {
		return NewUsageError("hashTableKey and elementKey must not be empty")
	}
	for _, layer := range s.layers {
		if err := layer.SetValue(ctx, hashTableKey, elementKey, value); err != nil {
			s.reportFatal(err, hashTableKey)
			return err
		}
	}
	return s.container.onHashUpdateElement(ctx, hashTableKey, elementKey, nil, AddOrUpdateEntry)
}

// EvictValue removes a single element from every layer, in order, then
// notifies observers.
func (s *CacheStack[T]) EvictValue(ctx context.Context, hashTableKey, elementKey string) error {
	if err := s.checkDisposed(); err != nil {
		return err
	}
	if hashTableKey == "" || elementKey == "" {
		return NewUsageError("hashTableKey and elementKey must not be empty")
	}
	for _, layer := range s.layers {
		if err := layer.EvictValue(ctx, hashTableKey, elementKey); err != nil {
			s.reportFatal(err, hashTableKey)
			return err
		}
	}
	return s.container.onHashElementEviction(ctx, hashTableKey, elementKey)
}

// GetHash reads a whole hash-table entry, descending layers until one
// produces a non-expired hit, then back-populating every closer layer with
// the retrieved entry.
func (s *CacheStack[T]) GetHash(ctx context.Context, hashTableKey string) (*CacheSetEntry[T], error) {
	if err := s.checkDisposed(); err != nil {
		return nil, err
	}
	if hashTableKey == "" {
		return nil, NewUsageError("hashTableKey must not be empty")
	}

	for i, layer := range s.layers {
		if !layer.IsAvailable(ctx) {
			continue
		}
		entry, err := layer.GetHash(ctx, hashTableKey)
		if err != nil {
			continue
		}
		if entry == nil || entry.Expired(s.clock.Now()) {
			continue
		}
		if i > 0 {
			s.backfillHash(ctx, i, hashTableKey, entry)
		}
		return entry, nil
	}
	return nil, nil
}

func (s *CacheStack[T]) backfillHash(ctx context.Context, producingIndex int, hashTableKey string, entry *CacheSetEntry[T]) {
	for i := 0; i < producingIndex; i++ {
		layer := s.layers[i]
		if !layer.IsAvailable(ctx) {
			continue
		}
		if err := layer.SetHash(ctx, hashTableKey, entry); err != nil {
			observability.Logger().Warn().Err(err).Str("hashTableKey", hashTableKey).
				Msg("cachetower: hash back-population failed")
		}
	}
}

// SetHash writes a whole hash-table entry to every layer, in order, then
// notifies observers.
func (s *CacheStack[T]) SetHash(ctx context.Context, hashTableKey string, entry *CacheSetEntry[T]) error {
	if err := s.checkDisposed(); err != nil {
		return err
	}
	if hashTableKey == "" {
		return NewUsageError("hashTableKey must not be empty")
	}
	if entry == nil {
		return NewUsageError("entry must not be nil")
	}
	for _, layer := range s.layers {
		if err := layer.SetHash(ctx, hashTableKey, entry); err != nil {
			s.reportFatal(err, hashTableKey)
			return err
		}
	}
	return s.container.onCacheUpdate(ctx, hashTableKey, entry.Expiry(), AddOrUpdateEntry)
}

// EvictHash removes a whole hash-table entry from every layer, in order,
// then notifies observers.
func (s *CacheStack[T]) EvictHash(ctx context.Context, hashTableKey string) error {
	if err := s.checkDisposed(); err != nil {
		return err
	}
	if hashTableKey == "" {
		return NewUsageError("hashTableKey must not be empty")
	}
	for _, layer := range s.layers {
		if err := layer.EvictHash(ctx, hashTableKey); err != nil {
			s.reportFatal(err, hashTableKey)
			return err
		}
	}
	return s.container.onCacheEviction(ctx, hashTableKey)
}

// GetHashSubset reads a subset of a hash-table entry's elements, descending
// layers and merging partial hits until every requested key is satisfied or
// every layer has been consulted. Each contributing layer's result is
// back-populated into every layer closer than it before the search
// continues.
func (s *CacheStack[T]) GetHashSubset(ctx context.Context, hashTableKey string, elementKeys []string) (map[string]T, error) {
	if err := s.checkDisposed(); err != nil {
		return nil, err
	}
	if hashTableKey == "" {
		return nil, NewUsageError("hashTableKey must not be empty")
	}
	if len(elementKeys) == 0 {
		return map[string]T{}, nil
	}

	result := make(map[string]T, len(elementKeys))
	remaining := append([]string(nil), elementKeys...)

	for i, layer := range s.layers {
		if len(remaining) == 0 {
			break
		}
		if !layer.IsAvailable(ctx) {
			continue
		}
		oneLayer, err := layer.GetHashSubset(ctx, hashTableKey, remaining)
		if err != nil {
			continue
		}
		if oneLayer == nil {
			continue
		}
		if len(oneLayer) == 0 {
			continue
		}
		if i > 0 {
			s.backfillHashSubset(ctx, i, hashTableKey, oneLayer)
		}
		if len(oneLayer) == len(elementKeys) {
			// A single layer answered every requested key: that is by
			// definition the complete answer. `remaining` shrinks with every
			// partial hit, so this only happens when no earlier layer
			// contributed anything to `result`.
			return oneLayer, nil
		}
		for k, v := range oneLayer {
			result[k] = v
		}
		if len(result) == len(elementKeys) {
			return result, nil
		}
		remaining = subtractKeys(remaining, oneLayer)
	}
	return result, nil
}

func (s *CacheStack[T]) backfillHashSubset(ctx context.Context, producingIndex int, hashTableKey string, subset map[string]T) {
	for i := 0; i < producingIndex; i++ {
		layer := s.layers[i]
		if !layer.IsAvailable(ctx) {
			continue
		}
		if err := layer.SetHashSubset(ctx, hashTableKey, subset); err != nil {
			observability.Logger().Warn().Err(err).Str("hashTableKey", hashTableKey).
				Msg("cachetower: hash subset back-population failed")
		}
	}
}

func subtractKeys[T any](keys []string, found map[string]T) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if _, ok := found[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// SetHashSubset writes a subset of elements into a hash-table entry on
// every layer, in order, then notifies observers. The hash's shared expiry,
// and any elements not named in subset, are left untouched.
func (s *CacheStack[T]) SetHashSubset(ctx context.Context, hashTableKey string, subset map[string]T) error {
	if err := s.checkDisposed(); err != nil {
		return err
	}
	if hashTableKey == "" {
		return NewUsageError("hashTableKey must not be empty")
	}
	if len(subset) == 0 {
		return nil
	}
	for _, layer := range s.layers {
		if err := layer.SetHashSubset(ctx, hashTableKey, subset); err != nil {
			s.reportFatal(err, hashTableKey)
			return err
		}
	}
	keys := make([]string, 0, len(subset))
	for k := range subset {
		keys = append(keys, k)
	}
	return s.container.onHashSubsetUpdate(ctx, hashTableKey, keys, nil, AddOrUpdateEntry)
}

// EvictHashSubset removes a subset of elements from a hash-table entry on
// every layer, in order, then notifies observers with element-key
// granularity preserved.
func (s *CacheStack[T]) EvictHashSubset(ctx context.Context, hashTableKey string, elementKeys []string) error {
	if err := s.checkDisposed(); err != nil {
		return err
	}
	if hashTableKey == "" {
		return NewUsageError("hashTableKey must not be empty")
	}
	if len(elementKeys) == 0 {
		return nil
	}
	for _, layer := range s.layers {
		if err := layer.EvictHashSubset(ctx, hashTableKey, elementKeys); err != nil {
			s.reportFatal(err, hashTableKey)
			return err
		}
	}
	return s.container.onHashSubsetEviction(ctx, hashTableKey, elementKeys)
}

// SetHashExpiry updates a hash-table entry's shared expiry on every layer
// where the key is present, without touching its elements. It emits no
// change event: refreshing a TTL is not itself a value mutation.
func (s *CacheStack[T]) SetHashExpiry(ctx context.Context, hashTableKey string, expiry time.Time) error {
	if err := s.checkDisposed(); err != nil {
		return err
	}
	if hashTableKey == "" {
		return NewUsageError("hashTableKey must not be empty")
	}
	for _, layer := range s.layers {
		if err := layer.SetHashExpiry(ctx, hashTableKey, expiry); err != nil {
			s.reportFatal(err, hashTableKey)
			return err
		}
	}
	return nil
}

// Cleanup drives each layer's passive-expiry compaction. It is typically
// invoked periodically by extensions/autocleanup rather than called
// directly by application code.
func (s *CacheStack[T]) Cleanup(ctx context.Context) error {
	if err := s.checkDisposed(); err != nil {
		return err
	}
	for _, layer := range s.layers {
		if err := layer.Cleanup(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Flush destructively clears every layer that implements Flusher, then
// notifies observers. Layers that do not implement Flusher are left alone.
func (s *CacheStack[T]) Flush(ctx context.Context) error {
	if err := s.checkDisposed(); err != nil {
		return err
	}
	for _, layer := range s.layers {
		flusher, ok := layer.(Flusher)
		if !ok {
			continue
		}
		if err := flusher.Flush(ctx); err != nil {
			s.reportFatal(err, "")
			return err
		}
	}
	return s.container.onCacheFlush(ctx)
}

// Dispose releases every layer and extension that holds disposable
// resources. It is idempotent: calling it more than once is a no-op after
// the first call.
func (s *CacheStack[T]) Dispose() error {
	if s.disposed.Swap(true) {
		return nil
	}
	var firstErr error
	for _, layer := range s.layers {
		if d, ok := layer.(Disposer); ok {
			if err := d.Dispose(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := s.container.dispose(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
