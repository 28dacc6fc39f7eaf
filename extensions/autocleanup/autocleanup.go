// Package autocleanup implements component H: a stack extension that
// periodically drives the stack's passive-expiry compaction in the
// background, cancellably.
package autocleanup

import (
	"context"
	"sync"
	"time"

	"github.com/cachetower/cachetower"
	"github.com/cachetower/cachetower/internal/observability"
)

// Extension spawns one long-running goroutine on Register that sleeps for
// frequency, then calls the stack's Cleanup, repeating until Dispose cancels
// it.
type Extension[T any] struct {
	frequency time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New builds an autocleanup extension that drives cleanup once every
// frequency. frequency must be strictly positive.
func New[T any](frequency time.Duration) *Extension[T] {
	return &Extension[T]{frequency: frequency}
}

// Register starts the background cleanup loop against stack.
func (e *Extension[T]) Register(stack *cachetower.CacheStack[T]) error {
	if e.frequency <= 0 {
		return cachetower.NewUsageError("autocleanup: frequency must be strictly positive")
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(1)
	go e.run(ctx, stack)
	return nil
}

func (e *Extension[T]) run(ctx context.Context, stack *cachetower.CacheStack[T]) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.frequency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := stack.Cleanup(ctx); err != nil {
				observability.Logger().Warn().Err(err).Msg("autocleanup: cleanup tick failed")
			}
		}
	}
}

// Dispose cancels the cleanup loop and waits for it to exit. Cancellation
// is treated as normal termination, never as a reported error.
func (e *Extension[T]) Dispose() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	return nil
}
