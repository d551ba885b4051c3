// Package future provides a minimal settle-once value used to represent
// in-flight fetch and evaluation work.
//
// A Future can be settled from any goroutine. Consumers that run on the
// loader's own thread of control use IsSettled and ForceDrain, which never
// block; consumers that are allowed to suspend use Await.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrUnsettled is returned by ForceDrain when the value is not yet known.
var ErrUnsettled = errors.New("future is not settled")

// Future holds a value of type T, or an error, that becomes available at most
// once.
type Future[T any] struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	value   T
	err     error
}

// New returns an unsettled Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Rejected returns a Future already settled with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Go runs fn in a new goroutine and returns a Future settled with its result.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := New[T]()
	go func() {
		v, err := fn()
		f.settle(v, err)
	}()
	return f
}

// Resolve settles the Future with v. It reports whether this call settled
// the Future; later calls are no-ops.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject settles the Future with err. It reports whether this call settled
// the Future; later calls are no-ops.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		return false
	}
	f.settled, f.value, f.err = true, v, err
	close(f.done)
	return true
}

// IsSettled reports whether the value or error is known.
func (f *Future[T]) IsSettled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// ForceDrain returns the settled value immediately. If the Future is not yet
// settled it returns ErrUnsettled instead of waiting.
func (f *Future[T]) ForceDrain() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.settled {
		var zero T
		return zero, ErrUnsettled
	}
	return f.value, f.err
}

// Await blocks until the Future is settled or ctx is done. A settled Future
// wins over a done ctx.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if f.IsSettled() {
		return f.ForceDrain()
	}
	select {
	case <-f.done:
		return f.ForceDrain()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed when the Future is settled.
func (f *Future[T]) Done() <-chan struct{} { return f.done }
