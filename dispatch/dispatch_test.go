package dispatch_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickloop/async/dispatch"
	"github.com/tickloop/async/future"
)

var wantErr = errors.New("test: want error")

func TestQueue(t *testing.T) {
	t.Run("resolves promise from worker", func(t *testing.T) {
		is := assert.New(t)

		d := dispatch.New(dispatch.Options{MinWorkers: 1})
		defer d.Stop()

		p := future.Deferred[int]()
		id, err := dispatch.Queue(d, p, func() (int, error) { return 42, nil })
		is.NoError(err)
		is.NotZero(id)

		v, ok := p.Future().Result(time.Second)
		is.True(ok)
		is.Equal(42, v)
		is.Equal(0, d.Len())
	})

	t.Run("work error rejects promise", func(t *testing.T) {
		is := assert.New(t)

		d := dispatch.New(dispatch.Options{MinWorkers: 1})
		defer d.Stop()

		f := dispatch.Async(d, func() (int, error) { return 0, wantErr })
		f.Ready(time.Second)

		is.True(f.IsError())
		is.ErrorIs(f.Err(), wantErr)
	})

	t.Run("work panic rejects promise", func(t *testing.T) {
		is := assert.New(t)

		d := dispatch.New(dispatch.Options{MinWorkers: 1})
		defer d.Stop()

		f := dispatch.Async(d, func() (int, error) { panic("boom") })
		f.Ready(time.Second)

		is.True(f.IsError())
		is.Contains(f.Err().Error(), "boom")
	})

	t.Run("nil work", func(t *testing.T) {
		is := assert.New(t)

		d := dispatch.New(dispatch.Options{})
		defer d.Stop()

		p := future.Deferred[int]()
		_, err := dispatch.Queue(d, p, nil)
		is.ErrorIs(err, dispatch.ErrNilWork)
		is.True(p.Future().IsError())
	})

	t.Run("ids are unique and increasing", func(t *testing.T) {
		is := assert.New(t)

		d := dispatch.New(dispatch.Options{MinWorkers: 2})
		defer d.Stop()

		id1, err := dispatch.Queue(d, future.Deferred[int](), func() (int, error) { return 1, nil })
		require.NoError(t, err)
		id2, err := dispatch.Queue(d, future.Deferred[int](), func() (int, error) { return 2, nil })
		require.NoError(t, err)

		is.Greater(id2, id1)
	})
}

// Two concurrent submissions, one failing and one succeeding, must each
// resolve their own promise with no cross-contamination between ids.
func TestQueueNoCrossContamination(t *testing.T) {
	is := assert.New(t)

	d := dispatch.New(dispatch.Options{MinWorkers: 2, MaxWorkers: 4})
	defer d.Stop()

	gate := make(chan struct{})

	ok := dispatch.Async(d, func() (string, error) {
		<-gate
		return "fine", nil
	})
	bad := dispatch.Async(d, func() (string, error) {
		<-gate
		return "", wantErr
	})

	close(gate)
	ok.Ready(time.Second)
	bad.Ready(time.Second)

	is.True(ok.IsComplete())
	is.Equal("fine", ok.Value())
	is.True(bad.IsError())
	is.ErrorIs(bad.Err(), wantErr)
	is.Equal(0, d.Len())
}

func TestBurstWorkers(t *testing.T) {
	is := assert.New(t)

	d := dispatch.New(dispatch.Options{
		MinWorkers: 1,
		MaxWorkers: 4,
		QueueSize:  1,
	})
	defer d.Stop()

	const n = 8
	gate := make(chan struct{})
	var running atomic.Int32

	var wg sync.WaitGroup
	futures := make([]*future.Future[int], n)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			i := i
			futures[i] = dispatch.Async(d, func() (int, error) {
				running.Add(1)
				<-gate
				return i, nil
			})
		}
	}()

	// Give the pool a moment to burst, then release everything.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i, f := range futures {
		v, ok := f.Result(time.Second)
		is.True(ok)
		is.Equal(i, v)
	}
	is.Equal(int32(n), running.Load())
}

func TestStop(t *testing.T) {
	t.Run("rejects queued work", func(t *testing.T) {
		is := assert.New(t)

		d := dispatch.New(dispatch.Options{MinWorkers: 1, QueueSize: 8})

		gate := make(chan struct{})
		slow := dispatch.Async(d, func() (int, error) {
			<-gate
			return 1, nil
		})

		close(gate)
		d.Stop()

		slow.Ready(time.Second)
		is.False(slow.IsPending())

		f := dispatch.Async(d, func() (int, error) { return 2, nil })
		is.True(f.IsError())
		is.ErrorIs(f.Err(), dispatch.ErrStopped)
	})

	t.Run("idempotent", func(t *testing.T) {
		d := dispatch.New(dispatch.Options{})
		d.Stop()
		d.Stop()
	})
}

func TestDefault(t *testing.T) {
	is := assert.New(t)

	is.Same(dispatch.Default(), dispatch.Default())

	f := dispatch.Async(dispatch.Default(), func() (int, error) { return 7, nil })
	v, ok := f.Result(time.Second)
	is.True(ok)
	is.Equal(7, v)
}

type countingMetrics struct {
	queued    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

func (m *countingMetrics) IncQueued()           { m.queued.Add(1) }
func (m *countingMetrics) IncCompleted()        { m.completed.Add(1) }
func (m *countingMetrics) IncFailed()           { m.failed.Add(1) }
func (m *countingMetrics) SetActiveWorkers(int) {}

func TestMetrics(t *testing.T) {
	is := assert.New(t)

	var m countingMetrics
	d := dispatch.New(dispatch.Options{MinWorkers: 1, Metrics: &m})
	defer d.Stop()

	ok := dispatch.Async(d, func() (int, error) { return 1, nil })
	bad := dispatch.Async(d, func() (int, error) { return 0, wantErr })

	ok.Ready(time.Second)
	bad.Ready(time.Second)

	is.Equal(int64(2), m.queued.Load())
	is.Equal(int64(1), m.completed.Load())
	is.Equal(int64(1), m.failed.Load())
}
