// ABOUTME: Sliding window of recently handled gateway event ids.
// ABOUTME: Keeps redelivered sync events from mutating the store twice.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type seenEvent struct {
	id     string
	seenAt time.Time
}

// Window remembers event ids for a fixed TTL, bounded to a maximum number of
// entries. Expired entries are pruned lazily on each call, oldest first, so no
// background goroutine is needed.
type Window struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // *seenEvent, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// Option configures a Window.
type Option func(*Window)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Window) { w.now = now }
}

// NewWindow creates a window that forgets ids after ttl and holds at most
// maxSize of them. A non-positive maxSize means unbounded.
func NewWindow(ttl time.Duration, maxSize int, opts ...Option) *Window {
	w := &Window{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Observe records id and reports whether it was already inside the window.
// The check and the insert happen under one lock.
func (w *Window) Observe(id string) (duplicate bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.pruneLocked(now)

	if _, ok := w.index[id]; ok {
		return true
	}

	w.index[id] = w.order.PushBack(&seenEvent{id: id, seenAt: now})
	for w.maxSize > 0 && w.order.Len() > w.maxSize {
		w.dropLocked(w.order.Front())
	}
	return false
}

// Len returns the number of ids currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(w.now())
	return w.order.Len()
}

func (w *Window) pruneLocked(now time.Time) {
	for e := w.order.Front(); e != nil; e = w.order.Front() {
		if now.Sub(e.Value.(*seenEvent).seenAt) < w.ttl {
			return
		}
		w.dropLocked(e)
	}
}

func (w *Window) dropLocked(e *list.Element) {
	delete(w.index, e.Value.(*seenEvent).id)
	w.order.Remove(e)
}
