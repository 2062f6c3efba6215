package future

import (
	"fmt"
	"sync"
	"time"

	"github.com/tickloop/async/event"
)

// pollInterval is the sleep step used by Ready while waiting for
// finalization.
const pollInterval = 10 * time.Millisecond

// Future is a read-only handle to an eventually-available value or error.
// A future is finalized at most once; after that its state never changes.
// Listener registration is replay-safe: a listener registered after
// finalization is serviced immediately with the final state.
//
// Resolution and listener dispatch are safe to invoke from any goroutine.
// Callers must not assume completion listeners fire on any particular
// goroutine.
type Future[T any] struct {
	mu       sync.Mutex
	value    T
	err      error
	complete bool
	failed   bool

	completeListeners []func(T)
	errorListeners    []func(error)
	progressListeners []func(loaded, total int)
}

// Promise is the writable counterpart of a Future. Resolve and Reject are
// first-call-wins: the first finalization sticks and later calls are no-ops.
type Promise[T any] struct {
	f *Future[T]
}

// Deferred returns a new pending promise and its future.
func Deferred[T any]() *Promise[T] {
	return &Promise[T]{f: &Future[T]{}}
}

// New runs fn synchronously and returns an already-finalized future
// holding its result. A panic inside fn is recovered and converted into
// the error state; no listener can ever observe this future pending.
func New[T any](fn func() (T, error)) *Future[T] {
	p := Deferred[T]()
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.Reject(recovered(r))
			}
		}()

		v, err := fn()
		if err != nil {
			p.Reject(err)
		} else {
			p.Resolve(v)
		}
	}()

	return p.Future()
}

// WithValue returns an already-completed future.
func WithValue[T any](v T) *Future[T] {
	p := Deferred[T]()
	p.Resolve(v)
	return p.Future()
}

// WithError returns an already-failed future.
func WithError[T any](err error) *Future[T] {
	p := Deferred[T]()
	p.Reject(err)
	return p.Future()
}

// OfEvents adapts existing signals into a future: the first complete
// emission resolves it, the first fail emission rejects it, and progress
// emissions pass through until finalization. fail and progress may be nil.
func OfEvents[T any](complete *event.Signal[T], fail *event.Signal[error], progress *event.Signal2[int, int]) *Future[T] {
	p := Deferred[T]()
	complete.Listen(func(v T) { p.Resolve(v) })
	if fail != nil {
		fail.Listen(func(err error) { p.Reject(err) })
	}
	if progress != nil {
		progress.Listen(func(loaded, total int) { p.Progress(loaded, total) })
	}
	return p.Future()
}

// Future returns the future owned by this promise.
func (p *Promise[T]) Future() *Future[T] {
	return p.f
}

// Resolve finalizes the future as complete with v. It reports whether
// this call won the finalization.
func (p *Promise[T]) Resolve(v T) bool {
	return p.f.resolve(v)
}

// Reject finalizes the future as failed with err. It reports whether
// this call won the finalization.
func (p *Promise[T]) Reject(err error) bool {
	return p.f.reject(err)
}

// Progress forwards a (loaded, total) progress signal to the future's
// progress listeners. No-op once the future is finalized.
func (p *Promise[T]) Progress(loaded, total int) {
	p.f.progress(loaded, total)
}

// IsComplete reports whether the future finalized with a value.
func (f *Future[T]) IsComplete() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.complete
}

// IsError reports whether the future finalized with an error.
func (f *Future[T]) IsError() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

// IsPending reports whether the future is not yet finalized.
func (f *Future[T]) IsPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.complete && !f.failed
}

// Value returns the completion value, or the zero value while pending or
// failed.
func (f *Future[T]) Value() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Err returns the failure error, or nil while pending or complete.
func (f *Future[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// OnComplete registers a completion listener. If the future is already
// complete the listener is invoked immediately and not stored; if it is
// already failed the listener is discarded.
func (f *Future[T]) OnComplete(fn func(T)) *Future[T] {
	if fn == nil {
		return f
	}

	f.mu.Lock()
	switch {
	case f.complete:
		v := f.value
		f.mu.Unlock()
		fn(v)
	case f.failed:
		f.mu.Unlock()
	default:
		f.completeListeners = append(f.completeListeners, fn)
		f.mu.Unlock()
	}
	return f
}

// OnError registers an error listener. If the future is already failed
// the listener is invoked immediately and not stored; if it is already
// complete the listener is discarded.
func (f *Future[T]) OnError(fn func(error)) *Future[T] {
	if fn == nil {
		return f
	}

	f.mu.Lock()
	switch {
	case f.failed:
		err := f.err
		f.mu.Unlock()
		fn(err)
	case f.complete:
		f.mu.Unlock()
	default:
		f.errorListeners = append(f.errorListeners, fn)
		f.mu.Unlock()
	}
	return f
}

// OnProgress registers a progress listener. Unlike OnComplete/OnError it
// is never invoked at registration time: it only observes progress
// signals emitted after registration, and never after finalization.
func (f *Future[T]) OnProgress(fn func(loaded, total int)) *Future[T] {
	if fn == nil {
		return f
	}

	f.mu.Lock()
	if !f.complete && !f.failed {
		f.progressListeners = append(f.progressListeners, fn)
	}
	f.mu.Unlock()
	return f
}

// Then composes futures monadically: once f completes, next is invoked
// with its value and the returned future's resolution resolves the chain.
// An upstream error propagates straight through without invoking next,
// and progress signals pass through untouched.
//
// Then is a package function because Go methods cannot introduce a new
// type parameter for the downstream value.
func Then[T, U any](f *Future[T], next func(T) *Future[U]) *Future[U] {
	f.mu.Lock()
	switch {
	case f.complete:
		v := f.value
		f.mu.Unlock()
		return next(v)
	case f.failed:
		err := f.err
		f.mu.Unlock()
		return WithError[U](err)
	}
	f.mu.Unlock()

	p := Deferred[U]()
	f.OnError(func(err error) { p.Reject(err) })
	f.OnProgress(func(loaded, total int) { p.Progress(loaded, total) })
	f.OnComplete(func(v T) {
		inner := next(v)
		inner.OnError(func(err error) { p.Reject(err) })
		inner.OnComplete(func(u U) { p.Resolve(u) })
	})
	return p.Future()
}

// Ready blocks until the future is finalized or timeout elapses, polling
// in small sleep increments. A negative timeout waits indefinitely. The
// future is returned unconditionally; callers must re-check IsComplete
// and IsError.
func (f *Future[T]) Ready(timeout time.Duration) *Future[T] {
	if !f.IsPending() {
		return f
	}

	start := time.Now()
	for f.IsPending() {
		if timeout >= 0 && time.Since(start) >= timeout {
			break
		}
		time.Sleep(pollInterval)
	}
	return f
}

// Result waits like Ready and then returns the completion value. ok is
// false while pending or failed; error detail never surfaces here.
func (f *Future[T]) Result(timeout time.Duration) (v T, ok bool) {
	f.Ready(timeout)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.complete {
		return f.value, true
	}
	var zero T
	return zero, false
}

func (f *Future[T]) resolve(v T) bool {
	f.mu.Lock()
	if f.complete || f.failed {
		f.mu.Unlock()
		return false
	}
	f.value = v
	f.complete = true
	ls := f.completeListeners
	f.drop()
	f.mu.Unlock()

	for _, fn := range ls {
		fn(v)
	}
	return true
}

func (f *Future[T]) reject(err error) bool {
	f.mu.Lock()
	if f.complete || f.failed {
		f.mu.Unlock()
		return false
	}
	f.err = err
	f.failed = true
	ls := f.errorListeners
	f.drop()
	f.mu.Unlock()

	for _, fn := range ls {
		fn(err)
	}
	return true
}

func (f *Future[T]) progress(loaded, total int) {
	f.mu.Lock()
	if f.complete || f.failed {
		f.mu.Unlock()
		return
	}
	ls := make([]func(int, int), len(f.progressListeners))
	copy(ls, f.progressListeners)
	f.mu.Unlock()

	for _, fn := range ls {
		fn(loaded, total)
	}
}

// drop releases all listener slices once the future is finalized, so a
// long-lived future does not pin its listeners.
func (f *Future[T]) drop() {
	f.completeListeners = nil
	f.errorListeners = nil
	f.progressListeners = nil
}

func recovered(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("future: panic recovered: %w", err)
	}
	return fmt.Errorf("future: panic recovered: %v", r)
}
