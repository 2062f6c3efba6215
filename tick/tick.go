// Package tick hosts per-tick poll hooks: a Loop stands in for the host
// application's update notification, invoking every attached hook once
// per Tick. The worker package attaches its queue-draining hook here.
package tick

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Loop is a set of hooks invoked once per tick, in attach order. Tick is
// expected to be driven from a single controlling context; Attach and
// Detach are safe from any goroutine.
type Loop struct {
	mu    sync.Mutex
	hooks []*Hook
}

// Hook is one attached callback. Detaching is idempotent and safe during
// a tick: a hook detached mid-tick is skipped for the rest of that tick.
type Hook struct {
	loop     *Loop
	fn       func()
	detached atomic.Bool
}

// Attach registers fn to run on every subsequent Tick.
func (l *Loop) Attach(fn func()) *Hook {
	h := &Hook{loop: l, fn: fn}
	if fn == nil {
		h.detached.Store(true)
		return h
	}

	l.mu.Lock()
	l.hooks = append(l.hooks, h)
	l.mu.Unlock()
	return h
}

// Detach unregisters the hook from its loop.
func (h *Hook) Detach() {
	if h.detached.Swap(true) {
		return
	}

	l := h.loop
	l.mu.Lock()
	live := l.hooks[:0]
	for _, other := range l.hooks {
		if other != h {
			live = append(live, other)
		}
	}
	l.hooks = live
	l.mu.Unlock()
}

// Tick invokes every attached hook once, in attach order.
func (l *Loop) Tick() {
	l.mu.Lock()
	hooks := make([]*Hook, len(l.hooks))
	copy(hooks, l.hooks)
	l.mu.Unlock()

	for _, h := range hooks {
		if !h.detached.Load() {
			h.fn()
		}
	}
}

// Len reports the number of attached hooks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hooks)
}

// Run drives Tick on a fixed interval until ctx is done. It is a
// convenience for hosts without their own update loop.
func (l *Loop) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Tick()
		}
	}
}
