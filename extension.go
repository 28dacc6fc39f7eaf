package cachetower

import (
	"context"
	"time"
)

// Extension is a pluggable observer bound to exactly one stack at
// construction time, via Register. An extension that also implements
// ChangeObserver receives every mutation the stack applies; one that also
// implements Disposer is released when the stack is disposed.
type Extension[T any] interface {
	Register(stack *CacheStack[T]) error
}

// ChangeObserver receives every mutation a stack applies, in the
// extension's registration order, awaited sequentially. An error returned
// by any handler propagates out of the triggering stack call wrapped in
// ObserverError, and stops dispatch to any observer registered after it.
type ChangeObserver[T any] interface {
	OnCacheUpdate(ctx context.Context, hashTableKey string, expiry *time.Time, updateType CacheUpdateType) error
	OnHashUpdateElement(ctx context.Context, hashTableKey, elementKey string, expiry *time.Time, updateType CacheUpdateType) error
	OnHashSubsetUpdate(ctx context.Context, hashTableKey string, elementKeys []string, expiry *time.Time, updateType CacheUpdateType) error
	OnCacheEviction(ctx context.Context, hashTableKey string) error
	OnHashElementEviction(ctx context.Context, hashTableKey, elementKey string) error
	// OnHashSubsetEviction is the narrow counterpart of OnCacheEviction for
	// EvictHashSubset: element-key granularity is kept all the way through
	// to observers instead of collapsing into a whole-key eviction event.
	OnHashSubsetEviction(ctx context.Context, hashTableKey string, elementKeys []string) error
	OnCacheFlush(ctx context.Context) error
}

type extensionContainer[T any] struct {
	extensions []Extension[T]
	observers  []ChangeObserver[T]
}

func newExtensionContainer[T any](extensions []Extension[T]) *extensionContainer[T] {
	c := &extensionContainer[T]{extensions: extensions}
	for _, ext := range extensions {
		if obs, ok := ext.(ChangeObserver[T]); ok {
			c.observers = append(c.observers, obs)
		}
	}
	return c
}

func (c *extensionContainer[T]) registerAll(stack *CacheStack[T]) error {
	for _, ext := range c.extensions {
		if err := ext.Register(stack); err != nil {
			return err
		}
	}
	return nil
}

func (c *extensionContainer[T]) onCacheUpdate(ctx context.Context, hashTableKey string, expiry *time.Time, updateType CacheUpdateType) error {
	for _, obs := range c.observers {
		if err := obs.OnCacheUpdate(ctx, hashTableKey, expiry, updateType); err != nil {
			return newObserverError(obs, err)
		}
	}
	return nil
}

func (c *extensionContainer[T]) onHashUpdateElement(ctx context.Context, hashTableKey, elementKey string, expiry *time.Time, updateType CacheUpdateType) error {
	for _, obs := range c.observers {
		if err := obs.OnHashUpdateElement(ctx, hashTableKey, elementKey, expiry, updateType); err != nil {
			return newObserverError(obs, err)
		}
	}
	return nil
}

func (c *extensionContainer[T]) onHashSubsetUpdate(ctx context.Context, hashTableKey string, elementKeys []string, expiry *time.Time, updateType CacheUpdateType) error {
	for _, obs := range c.observers {
		if err := obs.OnHashSubsetUpdate(ctx, hashTableKey, elementKeys, expiry, updateType); err != nil {
			return newObserverError(obs, err)
		}
	}
	return nil
}

func (c *extensionContainer[T]) onCacheEviction(ctx context.Context, hashTableKey string) error {
	for _, obs := range c.observers {
		if err := obs.OnCacheEviction(ctx, hashTableKey); err != nil {
			return newObserverError(obs, err)
		}
	}
	return nil
}

func (c *extensionContainer[T]) onHashElementEviction(ctx context.Context, hashTableKey, elementKey string) error {
	for _, obs := range c.observers {
		if err := obs.OnHashElementEviction(ctx, hashTableKey, elementKey); err != nil {
			return newObserverError(obs, err)
		}
	}
	return nil
}

func (c *extensionContainer[T]) onHashSubsetEviction(ctx context.Context, hashTableKey string, elementKeys []string) error {
	for _, obs := range c.observers {
		if err := obs.OnHashSubsetEviction(ctx, hashTableKey, elementKeys); err != nil {
			return newObserverError(obs, err)
		}
	}
	return nil
}

func (c *extensionContainer[T]) onCacheFlush(ctx context.Context) error {
	for _, obs := range c.observers {
		if err := obs.OnCacheFlush(ctx); err != nil {
			return newObserverError(obs, err)
		}
	}
	return nil
}

func (c *extensionContainer[T]) dispose() error {
	var firstErr error
	for _, ext := range c.extensions {
		if d, ok := ext.(Disposer); ok {
			if err := d.Dispose(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
