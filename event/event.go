// Package event provides a minimal multi-listener signal used by the
// async core for listener storage and dispatch.
//
// A Signal can be canceled: listeners registered before the cancel belong
// to a stale generation and are never invoked again, while listeners
// registered afterwards dispatch normally. This replaces the common
// clone-the-listener-list cancellation trick with a cheap epoch check.
package event

import "sync"

type listener[T any] struct {
	epoch uint64
	fn    func(T)
}

// Signal is a mutex-guarded list of single-argument listeners.
// Emit may be called from any goroutine. Listeners fire in FIFO
// registration order, outside the signal's lock.
type Signal[T any] struct {
	mu        sync.Mutex
	epoch     uint64
	listeners []listener[T]
}

// Listen registers fn. It will be invoked on every Emit until the signal
// is canceled.
func (s *Signal[T]) Listen(fn func(T)) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, listener[T]{epoch: s.epoch, fn: fn})
	s.mu.Unlock()
}

// Emit invokes every live listener with v, in registration order.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	epoch := s.epoch
	fns := make([]func(T), 0, len(s.listeners))
	for _, l := range s.listeners {
		if l.epoch == epoch {
			fns = append(fns, l.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Cancel marks every currently registered listener stale. The signal
// remains usable; listeners registered after Cancel dispatch normally.
func (s *Signal[T]) Cancel() {
	s.mu.Lock()
	s.epoch++
	s.listeners = compact(s.listeners, s.epoch)
	s.mu.Unlock()
}

// Len reports the number of live listeners.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.listeners {
		if l.epoch == s.epoch {
			n++
		}
	}
	return n
}

func compact[T any](ls []listener[T], epoch uint64) []listener[T] {
	live := ls[:0]
	for _, l := range ls {
		if l.epoch == epoch {
			live = append(live, l)
		}
	}
	return live
}

type listener2[A, B any] struct {
	epoch uint64
	fn    func(A, B)
}

// Signal2 is a Signal carrying two arguments, used for (loaded, total)
// progress pairs.
type Signal2[A, B any] struct {
	mu        sync.Mutex
	epoch     uint64
	listeners []listener2[A, B]
}

func (s *Signal2[A, B]) Listen(fn func(A, B)) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, listener2[A, B]{epoch: s.epoch, fn: fn})
	s.mu.Unlock()
}

func (s *Signal2[A, B]) Emit(a A, b B) {
	s.mu.Lock()
	epoch := s.epoch
	fns := make([]func(A, B), 0, len(s.listeners))
	for _, l := range s.listeners {
		if l.epoch == epoch {
			fns = append(fns, l.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(a, b)
	}
}

func (s *Signal2[A, B]) Cancel() {
	s.mu.Lock()
	s.epoch++
	live := s.listeners[:0]
	for _, l := range s.listeners {
		if l.epoch == s.epoch {
			live = append(live, l)
		}
	}
	s.listeners = live
	s.mu.Unlock()
}

func (s *Signal2[A, B]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.listeners {
		if l.epoch == s.epoch {
			n++
		}
	}
	return n
}
