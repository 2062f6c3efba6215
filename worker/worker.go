package worker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tickloop/async/event"
	"github.com/tickloop/async/tick"
)

var ErrNoWork = errors.New("worker: no work function")

type kind uint8

const (
	progressKind kind = iota + 1
	completeKind
	errorKind
)

// message is one queue entry. The kind discriminant selects which payload
// field is meaningful.
type message[P, R any] struct {
	kind     kind
	progress P
	result   R
	err      error
}

// queue is the single-producer/single-consumer FIFO between the work
// goroutine (writer) and the tick context (reader). Popping coalesces
// consecutive progress entries into the newest one, so under backpressure
// at most one progress message surfaces per tick.
type queue[P, R any] struct {
	mu   sync.Mutex
	msgs []message[P, R]
}

func (q *queue[P, R]) push(m message[P, R]) {
	q.mu.Lock()
	q.msgs = append(q.msgs, m)
	q.mu.Unlock()
}

func (q *queue[P, R]) pop() (message[P, R], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.msgs) == 0 {
		var zero message[P, R]
		return zero, false
	}

	m := q.msgs[0]
	q.msgs = q.msgs[1:]
	if m.kind == progressKind {
		for len(q.msgs) > 0 && q.msgs[0].kind == progressKind {
			m = q.msgs[0]
			q.msgs = q.msgs[1:]
		}
	}
	return m, true
}

// Token is a cooperative cancellation flag shared between a run's work
// body and the worker. The work body should poll Canceled at safe yield
// points and return voluntarily; nothing is ever terminated preemptively.
type Token struct {
	canceled atomic.Bool
}

func (t *Token) Cancel() {
	t.canceled.Store(true)
}

func (t *Token) Canceled() bool {
	return t.canceled.Load()
}

// Run is one execution of a worker: it carries the run payload, the run's
// own cancellation token, and the send side of the message queue. Work
// bodies must send through their Run, not through the worker, so that a
// stale run canceled mid-flight cannot reach a newer run's queue.
type Run[A, P, R any] struct {
	payload A
	token   Token
	q       *queue[P, R]
	inline  bool
	w       *Worker[A, P, R]
}

// Payload returns the value passed to Worker.Run.
func (r *Run[A, P, R]) Payload() A {
	return r.payload
}

// Canceled reports whether this run has been canceled. Poll it at yield
// points inside the work body.
func (r *Run[A, P, R]) Canceled() bool {
	return r.token.Canceled()
}

// SendProgress enqueues a progress message. No-op once the run is
// canceled.
func (r *Run[A, P, R]) SendProgress(p P) {
	if r.token.Canceled() {
		return
	}
	if r.inline {
		r.w.onProgress.Emit(p)
		return
	}
	r.q.push(message[P, R]{kind: progressKind, progress: p})
}

// SendComplete enqueues the completion message. No-op once the run is
// canceled.
func (r *Run[A, P, R]) SendComplete(v R) {
	if r.token.Canceled() {
		return
	}
	if r.inline {
		r.w.finish(r, message[P, R]{kind: completeKind, result: v})
		return
	}
	r.q.push(message[P, R]{kind: completeKind, result: v})
}

// SendError enqueues the error message. No-op once the run is canceled.
func (r *Run[A, P, R]) SendError(err error) {
	if r.token.Canceled() {
		return
	}
	if r.inline {
		r.w.finish(r, message[P, R]{kind: errorKind, err: err})
		return
	}
	r.q.push(message[P, R]{kind: errorKind, err: err})
}

// Options configure a Worker.
type Options struct {
	// Loop is the host update loop the worker attaches its poll hook to.
	// When nil the worker has no controlling context and runs work
	// inline, dispatching synchronously.
	Loop *tick.Loop

	// Logger defaults to a discard handler.
	Logger *slog.Logger
}

// Worker runs arbitrary work on its own goroutine while guaranteeing that
// progress, completion, and error listeners fire only on the controlling
// context that drives the tick loop. The work goroutine only writes to
// the message queue; the poll hook drains at most one logical message per
// tick.
//
// A is the run payload type, P the progress payload type, R the
// completion payload type.
type Worker[A, P, R any] struct {
	// DoWork is the work body, invoked on a dedicated goroutine with the
	// current run. Set it before calling Run.
	DoWork func(run *Run[A, P, R])

	loop *tick.Loop
	log  *slog.Logger

	mu        sync.Mutex
	current   *Run[A, P, R]
	hook      *tick.Hook
	canceled  bool
	completed bool

	onComplete event.Signal[R]
	onError    event.Signal[error]
	onProgress event.Signal[P]
}

func New[A, P, R any](opts Options) *Worker[A, P, R] {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Worker[A, P, R]{
		loop: opts.Loop,
		log:  opts.Logger,
	}
}

// OnComplete registers a completion listener.
func (w *Worker[A, P, R]) OnComplete(fn func(R)) {
	w.onComplete.Listen(fn)
}

// OnError registers an error listener.
func (w *Worker[A, P, R]) OnError(fn func(error)) {
	w.onError.Listen(fn)
}

// OnProgress registers a progress listener.
func (w *Worker[A, P, R]) OnProgress(fn func(P)) {
	w.onProgress.Listen(fn)
}

// Run starts the work body with payload. Any prior run is canceled first;
// canceled and completed reset to false. With a tick loop the work runs
// on a fresh goroutine and notifications are deferred to the poll hook;
// without one the work executes synchronously in place.
func (w *Worker[A, P, R]) Run(payload A) {
	w.Cancel()

	w.mu.Lock()
	w.canceled = false
	w.completed = false

	r := &Run[A, P, R]{payload: payload, w: w}
	w.current = r

	if w.loop == nil {
		r.inline = true
		w.mu.Unlock()

		w.log.Debug("worker: run inline")
		w.exec(r)
		return
	}

	r.q = &queue[P, R]{}
	w.hook = w.loop.Attach(func() { w.poll(r) })
	w.mu.Unlock()

	w.log.Debug("worker: run")
	go w.exec(r)
}

// Cancel cancels the current run: the run's token trips so in-flight work
// can observe it and exit, the poll hook detaches, and no further
// listener dispatch occurs for that run. The work goroutine is never
// terminated forcibly.
func (w *Worker[A, P, R]) Cancel() {
	w.mu.Lock()
	w.canceled = true
	r := w.current
	w.current = nil
	h := w.hook
	w.hook = nil
	w.mu.Unlock()

	if r != nil {
		r.token.Cancel()
		w.log.Debug("worker: canceled")
	}
	if h != nil {
		h.Detach()
	}
}

// Canceled reports whether the worker is in the terminal no-more-dispatch
// state, either from Cancel or from a delivered completion/error.
func (w *Worker[A, P, R]) Canceled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canceled
}

// Completed reports whether the current run delivered its completion.
func (w *Worker[A, P, R]) Completed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.completed
}

// SendProgress forwards to the current run. No-op when no run is active.
// Work bodies should prefer Run.SendProgress.
func (w *Worker[A, P, R]) SendProgress(p P) {
	if r := w.run(); r != nil {
		r.SendProgress(p)
	}
}

// SendComplete forwards to the current run. No-op when no run is active.
func (w *Worker[A, P, R]) SendComplete(v R) {
	if r := w.run(); r != nil {
		r.SendComplete(v)
	}
}

// SendError forwards to the current run. No-op when no run is active.
func (w *Worker[A, P, R]) SendError(err error) {
	if r := w.run(); r != nil {
		r.SendError(err)
	}
}

func (w *Worker[A, P, R]) run() *Run[A, P, R] {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Worker[A, P, R]) exec(r *Run[A, P, R]) {
	defer func() {
		if rec := recover(); rec != nil {
			w.log.Debug("worker: work panicked")
			r.SendError(recovered(rec))
		}
	}()

	if w.DoWork == nil {
		r.SendError(ErrNoWork)
		return
	}
	w.DoWork(r)
}

// poll drains at most one logical message per tick. Progress dispatches
// immediately unless canceled; completion and error are terminal.
func (w *Worker[A, P, R]) poll(r *Run[A, P, R]) {
	msg, ok := r.q.pop()
	if !ok {
		return
	}

	switch msg.kind {
	case progressKind:
		if !r.token.Canceled() {
			w.onProgress.Emit(msg.progress)
		}
	default:
		w.finish(r, msg)
	}
}

// finish delivers the terminal message exactly once, then trips the run's
// token and the worker's canceled flag so nothing dispatches afterwards.
func (w *Worker[A, P, R]) finish(r *Run[A, P, R], msg message[P, R]) {
	w.mu.Lock()
	if w.current == r {
		w.current = nil
		if w.hook != nil {
			w.hook.Detach()
			w.hook = nil
		}
	}
	if r.token.Canceled() {
		w.mu.Unlock()
		return
	}
	if msg.kind == completeKind {
		w.completed = true
	}
	w.mu.Unlock()

	if msg.kind == completeKind {
		w.log.Debug("worker: completed")
		w.onComplete.Emit(msg.result)
	} else {
		w.log.Debug("worker: failed", slog.String("err", msg.err.Error()))
		w.onError.Emit(msg.err)
	}

	r.token.Cancel()
	w.mu.Lock()
	w.canceled = true
	w.mu.Unlock()
}

func recovered(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("worker: panic recovered: %w", err)
	}
	return fmt.Errorf("worker: panic recovered: %v", r)
}
