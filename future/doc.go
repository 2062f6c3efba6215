// Package future provides an asynchronous-value abstraction: a read-only
// Future and its writable Promise counterpart, extended with a progress
// channel alongside the usual completion and error channels.
//
// A Future is tri-state (pending, complete, failed) and immutable once
// finalized. Listener registration is replay-safe: an OnComplete or
// OnError listener registered after finalization is invoked immediately
// with the final state, so there is no registration/completion race.
// Progress listeners are forward-only; they observe signals emitted after
// registration and nothing after finalization.
//
// Futures compose with Then:
//
//	f := future.New(func() (int, error) { return 21, nil })
//	g := future.Then(f, func(n int) *future.Future[int] {
//	    return future.WithValue(n * 2)
//	})
//	v, ok := g.Result(-1) // 42, true
//
// An upstream error propagates through a Then chain without invoking the
// next step. Resolution may happen on any goroutine; see the dispatch
// package for running work on a pool and the worker package for
// main-context-only delivery.
package future
