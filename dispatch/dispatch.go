package dispatch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tickloop/async/future"
)

var (
	ErrStopped    = errors.New("dispatch: dispatcher stopped")
	ErrNilWork    = errors.New("dispatch: nil work function")
	ErrNilPromise = errors.New("dispatch: nil promise")
)

const defaultQueueSize = 64

// task is one unit of pool work: an id correlating the result back to its
// promise, and the work to run.
type task struct {
	id  uint64
	run func() (any, error)
}

// resolver holds the type-erased promise endpoints for one in-flight task.
type resolver struct {
	complete func(any)
	fail     func(error)
}

// Options configure a Dispatcher. The zero value is usable.
type Options struct {
	// MinWorkers is the number of resident worker goroutines. Defaults
	// to 1.
	MinWorkers int

	// MaxWorkers bounds the total worker goroutines, resident plus
	// transient burst workers. Defaults to MinWorkers.
	MaxWorkers int

	// QueueSize is the task channel buffer. Defaults to 64.
	QueueSize int

	// IdleTimeout is how long a transient worker waits for work before
	// exiting. Defaults to 1s.
	IdleTimeout time.Duration

	// Logger defaults to a discard handler.
	Logger *slog.Logger

	// Metrics defaults to a no-op collector.
	Metrics Metrics
}

func (o *Options) defaults() {
	if o.MinWorkers <= 0 {
		o.MinWorkers = 1
	}
	if o.MaxWorkers < o.MinWorkers {
		o.MaxWorkers = o.MinWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Metrics == nil {
		o.Metrics = NopMetrics{}
	}
}

// Dispatcher bridges promises to a pool of worker goroutines. Queued work
// runs on a worker, which resolves the originating promise in place: the
// promise's listeners fire on the worker goroutine, not on any particular
// caller context.
type Dispatcher struct {
	opts    Options
	log     *slog.Logger
	metrics Metrics

	seq     atomic.Uint64
	sem     *semaphore.Weighted
	workers atomic.Int64

	mu      sync.Mutex
	pending map[uint64]resolver

	queue    chan task
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New returns a started dispatcher with its resident workers running.
func New(opts Options) *Dispatcher {
	opts.defaults()

	d := &Dispatcher{
		opts:    opts,
		log:     opts.Logger,
		metrics: opts.Metrics,
		sem:     semaphore.NewWeighted(int64(opts.MaxWorkers)),
		pending: make(map[uint64]resolver),
		queue:   make(chan task, opts.QueueSize),
		done:    make(chan struct{}),
	}

	for i := 0; i < opts.MinWorkers; i++ {
		d.spawn(false)
	}

	return d
}

var (
	defaultOnce       sync.Once
	defaultDispatcher *Dispatcher
)

// Default returns the process-wide dispatcher, created lazily on first
// use. Guarded for concurrent first use.
func Default() *Dispatcher {
	defaultOnce.Do(func() {
		defaultDispatcher = New(Options{})
	})
	return defaultDispatcher
}

// Queue assigns the next task id, records the id -> promise mapping, and
// submits the work to the pool. The worker that picks it up resolves or
// rejects p from its own goroutine and the mapping is evicted.
func Queue[T any](d *Dispatcher, p *future.Promise[T], work func() (T, error)) (uint64, error) {
	if p == nil {
		return 0, ErrNilPromise
	}
	if work == nil {
		p.Reject(ErrNilWork)
		return 0, ErrNilWork
	}

	id := d.seq.Add(1)

	d.mu.Lock()
	d.pending[id] = resolver{
		complete: func(v any) { p.Resolve(v.(T)) },
		fail:     func(err error) { p.Reject(err) },
	}
	d.mu.Unlock()

	t := task{id: id, run: func() (any, error) { return work() }}
	if err := d.submit(t); err != nil {
		d.evict(id)
		p.Reject(err)
		return 0, err
	}

	d.metrics.IncQueued()
	d.log.Debug("dispatch: queued", slog.Uint64("id", id))
	return id, nil
}

// Async queues work on d and returns the pending future that its result
// will resolve.
func Async[T any](d *Dispatcher, work func() (T, error)) *future.Future[T] {
	p := future.Deferred[T]()
	Queue(d, p, work)
	return p.Future()
}

// Stop shuts the pool down. Workers finish their current task; work still
// waiting in the queue and any unresolved promises are rejected with
// ErrStopped so no caller blocks forever.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.wg.Wait()

		for {
			select {
			case t := <-d.queue:
				d.fail(t.id, ErrStopped)
			default:
				d.rejectPending()
				return
			}
		}
	})
}

// Len reports the number of unresolved task ids.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) submit(t task) error {
	select {
	case <-d.done:
		return ErrStopped
	default:
	}

	select {
	case d.queue <- t:
		return nil
	default:
	}

	// Queue saturated: burst a transient worker, then block until a
	// worker frees up or the dispatcher stops.
	d.spawn(true)

	select {
	case d.queue <- t:
		return nil
	case <-d.done:
		return ErrStopped
	}
}

// spawn starts a worker goroutine unless the pool is already at
// MaxWorkers. Transient workers exit after IdleTimeout without work.
func (d *Dispatcher) spawn(transient bool) {
	if !d.sem.TryAcquire(1) {
		return
	}

	d.metrics.SetActiveWorkers(int(d.workers.Add(1)))
	d.wg.Add(1)

	go func() {
		defer func() {
			d.metrics.SetActiveWorkers(int(d.workers.Add(-1)))
			d.sem.Release(1)
			d.wg.Done()
		}()

		d.worker(transient)
	}()
}

func (d *Dispatcher) worker(transient bool) {
	var idle *time.Timer
	if transient {
		idle = time.NewTimer(d.opts.IdleTimeout)
		defer idle.Stop()
	}

	for {
		if transient {
			select {
			case <-d.done:
				return
			case <-idle.C:
				return
			case t := <-d.queue:
				d.exec(t)
				idle.Reset(d.opts.IdleTimeout)
			}
		} else {
			select {
			case <-d.done:
				return
			case t := <-d.queue:
				d.exec(t)
			}
		}
	}
}

// exec runs one task on the calling worker goroutine, converting panics
// and returned errors into the promise's error channel.
func (d *Dispatcher) exec(t task) {
	v, err := func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				if e, ok := r.(error); ok {
					err = fmt.Errorf("dispatch: work panicked: %w", e)
				} else {
					err = fmt.Errorf("dispatch: work panicked: %v", r)
				}
			}
		}()

		return t.run()
	}()

	if err != nil {
		d.fail(t.id, err)
	} else {
		d.complete(t.id, v)
	}
}

func (d *Dispatcher) complete(id uint64, v any) {
	r, ok := d.evict(id)
	if !ok {
		d.log.Warn("dispatch: complete for unknown id", slog.Uint64("id", id))
		return
	}

	r.complete(v)
	d.metrics.IncCompleted()
	d.log.Debug("dispatch: completed", slog.Uint64("id", id))
}

func (d *Dispatcher) fail(id uint64, err error) {
	r, ok := d.evict(id)
	if !ok {
		d.log.Warn("dispatch: failure for unknown id", slog.Uint64("id", id))
		return
	}

	r.fail(err)
	d.metrics.IncFailed()
	d.log.Debug("dispatch: failed", slog.Uint64("id", id), slog.String("err", err.Error()))
}

func (d *Dispatcher) evict(id uint64) (resolver, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	return r, ok
}

// rejectPending rejects every remaining promise to prevent leaks.
func (d *Dispatcher) rejectPending() {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[uint64]resolver)
	d.mu.Unlock()

	for _, r := range pending {
		r.fail(ErrStopped)
	}
}
