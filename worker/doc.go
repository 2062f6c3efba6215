// Package worker provides a cooperative background task runner whose
// notifications are delivered only on a single controlling context.
//
// A Worker runs its work body on a dedicated goroutine. The body reports
// progress, completion, or an error by sending tagged messages into a
// single-producer/single-consumer queue; a poll hook attached to a
// tick.Loop drains at most one logical message per tick and dispatches
// the matching listener. The work goroutine never calls listeners
// directly, so no locking is needed between the two sides beyond the
// queue itself.
//
//	loop := new(tick.Loop)
//	w := worker.New[string, int, string](worker.Options{Loop: loop})
//	w.DoWork = func(run *worker.Run[string, int, string]) {
//	    for i := range 10 {
//	        if run.Canceled() {
//	            return
//	        }
//	        run.SendProgress(i)
//	    }
//	    run.SendComplete("done: " + run.Payload())
//	}
//	w.OnComplete(func(msg string) { fmt.Println(msg) })
//	w.Run("job")
//	// drive loop.Tick() from the host's update loop
//
// Draining one message per tick means progress coalesces under
// backpressure: when the body emits faster than the host ticks, only the
// newest queued progress value surfaces each tick. Completion and error
// are never coalesced away.
//
// Cancellation is strictly cooperative. Cancel trips the run's Token,
// detaches the poll hook, and suppresses all further dispatch for that
// run; the work body is expected to poll Run.Canceled at yield points and
// return on its own.
package worker
