package core

import "context"

// Deferred is an in-flight asynchronous result. It settles exactly once;
// awaiting a settled Deferred returns the same outcome every time, so a
// cached Deferred is idempotently awaitable.
type Deferred struct {
	done chan struct{}
	val  any
	err  error
}

// NewDeferred starts fn in its own goroutine and returns the Deferred that
// will carry its outcome. The computation always runs to completion or
// failure; nothing can abort it once started.
func NewDeferred(fn func() (any, error)) *Deferred {
	d := &Deferred{done: make(chan struct{})}
	go func() {
		defer close(d.done)
		d.val, d.err = fn()
	}()
	return d
}

// Resolve returns an already-settled Deferred carrying v.
func Resolve(v any) *Deferred {
	d := &Deferred{done: make(chan struct{}), val: v}
	close(d.done)
	return d
}

// Reject returns an already-settled Deferred carrying err.
func Reject(err error) *Deferred {
	d := &Deferred{done: make(chan struct{}), err: err}
	close(d.done)
	return d
}

// Await blocks until the Deferred settles or ctx is done. Cancelling ctx
// abandons the wait, not the computation.
func (d *Deferred) Await(ctx context.Context) (any, error) {
	select {
	case <-d.done:
		return d.val, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the Deferred has an outcome, without blocking.
func (d *Deferred) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}
