package resilience

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Policy wraps a retry policy and a circuit breaker around a remote call.
// The teacher's go.mod carries failsafe-go without a call site reachable
// from the retrieved files; this gives it one, guarding every Redis-layer
// round trip instead of the bare Ping-based liveness check the teacher's
// redis.go used.
type Policy struct {
	breaker  circuitbreaker.CircuitBreaker[any]
	executor failsafe.Executor[any]
}

// NewPolicy builds a Policy with a short exponential-backoff retry and a
// circuit breaker that opens after three consecutive failures, matching the
// low-latency budget a cache layer is expected to operate under: a failing
// remote layer should stop being hammered almost immediately, not after a
// long warm-up.
func NewPolicy() *Policy {
	breaker := circuitbreaker.Builder[any]().
		WithFailureThreshold(3).
		WithDelay(2 * time.Second).
		Build()
	retry := retrypolicy.Builder[any]().
		WithMaxRetries(2).
		WithBackoff(50*time.Millisecond, 250*time.Millisecond).
		Build()
	return &Policy{
		breaker:  breaker,
		executor: failsafe.NewExecutor[any](retry, breaker),
	}
}

// Do runs fn under the retry+circuit-breaker policy.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := p.executor.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[any]) (any, error) {
		return nil, fn(exec.Context())
	})
	return err
}

// Available reports whether the circuit breaker currently allows calls.
func (p *Policy) Available() bool {
	return !p.breaker.IsOpen()
}
