package event_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tickloop/async/event"
)

func TestSignal(t *testing.T) {
	t.Run("fifo order", func(t *testing.T) {
		is := assert.New(t)

		var s event.Signal[int]
		var got []string
		s.Listen(func(int) { got = append(got, "a") })
		s.Listen(func(int) { got = append(got, "b") })
		s.Listen(func(int) { got = append(got, "c") })

		s.Emit(0)
		is.Equal([]string{"a", "b", "c"}, got)
	})

	t.Run("nil listener ignored", func(t *testing.T) {
		is := assert.New(t)

		var s event.Signal[int]
		s.Listen(nil)
		is.Equal(0, s.Len())
		s.Emit(1)
	})

	t.Run("emit value", func(t *testing.T) {
		is := assert.New(t)

		var s event.Signal[string]
		var got []string
		s.Listen(func(v string) { got = append(got, v) })

		s.Emit("x")
		s.Emit("y")
		is.Equal([]string{"x", "y"}, got)
	})
}

func TestSignalCancel(t *testing.T) {
	t.Run("stale listeners never fire", func(t *testing.T) {
		is := assert.New(t)

		var s event.Signal[int]
		var fired int
		s.Listen(func(int) { fired++ })

		s.Cancel()
		s.Emit(1)
		is.Equal(0, fired)
		is.Equal(0, s.Len())
	})

	t.Run("fresh listeners survive", func(t *testing.T) {
		is := assert.New(t)

		var s event.Signal[int]
		var stale, fresh int
		s.Listen(func(int) { stale++ })
		s.Cancel()
		s.Listen(func(int) { fresh++ })

		s.Emit(1)
		is.Equal(0, stale)
		is.Equal(1, fresh)
	})
}

func TestSignalConcurrentEmit(t *testing.T) {
	is := assert.New(t)

	var s event.Signal[int]
	var mu sync.Mutex
	var total int
	s.Listen(func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Emit(1)
		}()
	}
	wg.Wait()

	is.Equal(10, total)
}

func TestSignal2(t *testing.T) {
	is := assert.New(t)

	var s event.Signal2[int, int]
	type pair struct{ loaded, total int }
	var got []pair
	s.Listen(func(loaded, total int) { got = append(got, pair{loaded, total}) })

	s.Emit(1, 10)
	s.Emit(5, 10)
	is.Equal([]pair{{1, 10}, {5, 10}}, got)

	s.Cancel()
	s.Emit(10, 10)
	is.Len(got, 2)
}
