package cachetower

import (
	"fmt"

	"github.com/cachetower/cachetower/internal/observability"
)

// UsageError reports a contract violation caught synchronously before any
// I/O is attempted: a nil/empty required argument, an empty layer slice, or
// a double registration of a single-instance extension. A call made after
// Dispose returns DisposedError instead.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string { return fmt.Sprintf("cachetower: usage error: %s", e.Reason) }

func (e *UsageError) Is(target error) bool {
	_, ok := target.(*UsageError)
	return ok
}

// NewUsageError builds a UsageError with the given reason.
func NewUsageError(reason string) *UsageError {
	return &UsageError{Reason: reason}
}

// DisposedError is returned by any stack operation invoked after Dispose.
type DisposedError struct{}

func (e *DisposedError) Error() string { return "cachetower: stack is disposed" }

func (e *DisposedError) Is(target error) bool {
	_, ok := target.(*DisposedError)
	return ok
}

// RemoteTransactionRejectedError indicates a layer's transactional multi-op
// primitive reported that a batch was not committed. It is fatal for the
// call; no partial-state cleanup is attempted.
type RemoteTransactionRejectedError struct {
	HashTableKey string
	Err          error
}

func (e *RemoteTransactionRejectedError) Error() string {
	return fmt.Sprintf("cachetower: remote transaction rejected for %q: %v", e.HashTableKey, e.Err)
}

func (e *RemoteTransactionRejectedError) Unwrap() error { return e.Err }

func (e *RemoteTransactionRejectedError) Is(target error) bool {
	_, ok := target.(*RemoteTransactionRejectedError)
	return ok
}

// NewRemoteTransactionRejectedError wraps err as a RemoteTransactionRejectedError.
func NewRemoteTransactionRejectedError(hashTableKey string, err error) *RemoteTransactionRejectedError {
	return &RemoteTransactionRejectedError{HashTableKey: hashTableKey, Err: err}
}

// RemoteUnavailableError surfaces a connection failure encountered by a
// layer. Layer reads and writes may both return it; the stack's read path
// skips that layer and tries the next one instead of returning it, while
// its write path propagates it to the caller.
type RemoteUnavailableError struct {
	Layer string
	Err   error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("cachetower: %s layer unavailable: %v", e.Layer, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error { return e.Err }

func (e *RemoteUnavailableError) Is(target error) bool {
	_, ok := target.(*RemoteUnavailableError)
	return ok
}

// NewRemoteUnavailableError wraps err as a RemoteUnavailableError for layer.
func NewRemoteUnavailableError(layer string, err error) *RemoteUnavailableError {
	return &RemoteUnavailableError{Layer: layer, Err: err}
}

// ObserverError wraps an error returned by an extension's change-observer
// handler; it propagates out of the triggering stack call. A panicking
// handler is not recovered or wrapped.
type ObserverError struct {
	Observer string
	Err      error
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("cachetower: extension %s observer failed: %v", e.Observer, e.Err)
}

func (e *ObserverError) Unwrap() error { return e.Err }

func (e *ObserverError) Is(target error) bool {
	_, ok := target.(*ObserverError)
	return ok
}

func newObserverError(observer any, err error) *ObserverError {
	name := fmt.Sprintf("%T", observer)
	if named, ok := observer.(interface{ Name() string }); ok {
		name = named.Name()
	}
	observability.ReportFatal(err, map[string]string{"observer": name})
	return &ObserverError{Observer: name, Err: err}
}
