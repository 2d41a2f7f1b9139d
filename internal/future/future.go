// Package future provides a single-assignment value that many goroutines can
// wait on before it has been produced.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is returned by Await after Cancel was called without a cause.
var ErrCancelled = errors.New("future cancelled")

// ErrAlreadyCompleted is returned by Resolve when the future was already
// resolved or cancelled.
var ErrAlreadyCompleted = errors.New("future already completed")

// Future holds at most one value of type T. The zero value is not usable;
// construct with New.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve stores v and wakes every waiter. Only the first completion (Resolve
// or Cancel) takes effect.
func (f *Future[T]) Resolve(v T) error {
	completed := false
	f.once.Do(func() {
		f.val = v
		close(f.done)
		completed = true
	})
	if !completed {
		return ErrAlreadyCompleted
	}
	return nil
}

// Cancel completes the future with cause (ErrCancelled when nil). The error
// returned by Await wraps ErrCancelled either way. It reports whether this
// call completed the future.
func (f *Future[T]) Cancel(cause error) bool {
	completed := false
	f.once.Do(func() {
		if cause == nil || errors.Is(cause, ErrCancelled) {
			f.err = ErrCancelled
		} else {
			f.err = &cancelError{cause: cause}
		}
		close(f.done)
		completed = true
	})
	return completed
}

// Await blocks until the future is completed or ctx ends.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the future is resolved or cancelled.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Completed reports whether Resolve or Cancel has taken effect.
func (f *Future[T]) Completed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

type cancelError struct{ cause error }

func (e *cancelError) Error() string { return "future cancelled: " + e.cause.Error() }

func (e *cancelError) Unwrap() []error { return []error{ErrCancelled, e.cause} }
