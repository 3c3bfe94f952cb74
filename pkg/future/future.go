// Package future implements Future[T], the single-assignment value cell
// every RPC call and handler invocation resolves through. It is the
// host-language's native async primitive standing in for the source
// project's callback-graph/future model: suspension happens only at
// Get, everything else composes through AddCallback.
package future

import "sync"

// Dispatcher schedules a closure for later execution, off the calling
// goroutine. *workerpool.Pool satisfies this; it is expressed as an
// interface here so pkg/future has no dependency on internal/workerpool.
type Dispatcher interface {
	Submit(job func())
}

// Future is a single-assignment cell for a value of type T. Zero value
// is not usable; construct with New.
type Future[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	value    T
	settled  bool
	dispatch Dispatcher
	waiters  []func(T)
}

// New creates a pending future that delivers callbacks through d.
func New[T any](d Dispatcher) *Future[T] {
	return &Future[T]{
		done:     make(chan struct{}),
		dispatch: d,
	}
}

// Resolved returns a future that is already fulfilled with v.
func Resolved[T any](d Dispatcher, v T) *Future[T] {
	f := New[T](d)
	f.Set(v)
	return f
}

// Set fulfills the future with v. Calling Set a second time is a
// programmer error (the source treats double-resolution as fatal) and
// panics rather than silently overwriting or blocking.
func (f *Future[T]) Set(v T) {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		panic("future: Set called on an already-fulfilled future")
	}
	f.value = v
	f.settled = true
	callbacks := f.waiters
	f.waiters = nil
	close(f.done)
	f.mu.Unlock()

	if len(callbacks) > 0 {
		// Dispatched as a single job so registration order is
		// preserved even though the pool runs many workers
		// concurrently; running each callback as its own Submit
		// would let two workers race and reorder delivery.
		f.dispatch.Submit(func() {
			for _, cb := range callbacks {
				cb(v)
			}
		})
	}
}

// Get blocks the calling goroutine until the future is fulfilled and
// returns its value.
func (f *Future[T]) Get() T {
	<-f.done
	f.mu.Lock()
	v := f.value
	f.mu.Unlock()
	return v
}

// TryGet returns the value and true if already fulfilled, without
// blocking.
func (f *Future[T]) TryGet() (T, bool) {
	select {
	case <-f.done:
		f.mu.Lock()
		v := f.value
		f.mu.Unlock()
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// AddCallback registers fn to run once the future is fulfilled. fn is
// always delivered through the dispatcher, never inline on the calling
// goroutine, even when the future is already fulfilled at registration
// time: this avoids lock re-entry when AddCallback is itself called
// from inside another callback. Callbacks registered before fulfilment
// are delivered in registration order, as a single job. Each callback
// registered after fulfilment is submitted as a job of its own, so on a
// dispatcher that runs jobs concurrently its order relative to the
// future's other callbacks is not defined.
func (f *Future[T]) AddCallback(fn func(T)) {
	f.mu.Lock()
	if f.settled {
		v := f.value
		f.mu.Unlock()
		f.dispatch.Submit(func() { fn(v) })
		return
	}
	f.waiters = append(f.waiters, fn)
	f.mu.Unlock()
}

// Done returns a channel closed once the future is fulfilled, for use
// in select statements alongside other signals.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
