// Package dispatch bridges promises to a pool of worker goroutines.
//
// Queue records an id -> promise mapping, hands the work to the pool, and
// lets whichever worker runs it resolve the promise in place. Completion
// listeners therefore fire on a worker goroutine; callers that need
// delivery on a single controlling context should use the worker package
// instead.
//
// The pool keeps MinWorkers resident goroutines and bursts transient ones
// up to MaxWorkers when the queue saturates; transient workers exit after
// IdleTimeout without work. A process-wide dispatcher is created lazily by
// Default for callers that do not want to manage their own.
//
//	f := dispatch.Async(dispatch.Default(), func() (int, error) {
//	    return expensive(), nil
//	})
//	v, ok := f.Result(-1)
//
// Work panics are recovered and surface on the promise's error channel;
// they never escape the worker.
package dispatch
