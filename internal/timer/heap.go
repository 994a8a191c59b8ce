// Package timer implements the indexed min-heap used to expire idle connections.
//
// Each node is keyed by an integer id (the connection's file descriptor) and
// ordered by absolute expiry time. A side index maps id to heap position so
// reschedule and cancel run in O(log n) instead of a linear scan.
//
// Callbacks are always invoked with the heap lock released, so a callback may
// freely call Add, Remove or Adjust on the same heap.
package timer

import (
	"sync"
	"time"
)

// Callback is invoked when a node expires or is fired explicitly.
type Callback func()

type node struct {
	id        int
	expiresAt time.Time
	onExpire  Callback
}

// Heap is a binary min-heap of timer nodes ordered by expiry.
//
// Thread safety:
// All methods are safe for concurrent use.
type Heap struct {
	mu    sync.Mutex
	nodes []node
	index map[int]int
	now   func() time.Time
}

// Option configures a Heap.
type Option func(*Heap)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Heap) {
		h.now = now
	}
}

// New creates an empty Heap.
func New(opts ...Option) *Heap {
	h := &Heap{
		nodes: make([]node, 0, 64),
		index: make(map[int]int),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Add schedules onExpire to run timeout from now.
//
// If id is already scheduled its expiry and callback are replaced.
func (h *Heap) Add(id int, timeout time.Duration, onExpire Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()

	expiresAt := h.now().Add(timeout)
	if i, ok := h.index[id]; ok {
		h.nodes[i].expiresAt = expiresAt
		h.nodes[i].onExpire = onExpire
		h.fix(i)
		return
	}

	h.nodes = append(h.nodes, node{id: id, expiresAt: expiresAt, onExpire: onExpire})
	i := len(h.nodes) - 1
	h.index[id] = i
	h.siftUp(i)
}

// Adjust moves the expiry of id to timeout from now, keeping its callback.
//
// Returns false if id is not scheduled.
func (h *Heap) Adjust(id int, timeout time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	i, ok := h.index[id]
	if !ok {
		return false
	}
	h.nodes[i].expiresAt = h.now().Add(timeout)
	h.fix(i)
	return true
}

// Remove cancels id without running its callback.
//
// Returns false if id is not scheduled.
func (h *Heap) Remove(id int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	i, ok := h.index[id]
	if !ok {
		return false
	}
	h.delete(i)
	return true
}

// DoWork removes id and runs its callback immediately.
//
// Returns false if id is not scheduled.
func (h *Heap) DoWork(id int) bool {
	h.mu.Lock()
	i, ok := h.index[id]
	if !ok {
		h.mu.Unlock()
		return false
	}
	cb := h.nodes[i].onExpire
	h.delete(i)
	h.mu.Unlock()

	if cb != nil {
		cb()
	}
	return true
}

// Tick runs the callbacks of every expired node in expiry order and returns
// how many fired. It stops at the first node that has not expired yet.
func (h *Heap) Tick() int {
	fired := 0
	for {
		h.mu.Lock()
		if len(h.nodes) == 0 || h.nodes[0].expiresAt.After(h.now()) {
			h.mu.Unlock()
			return fired
		}
		cb := h.nodes[0].onExpire
		h.delete(0)
		h.mu.Unlock()

		if cb != nil {
			cb()
		}
		fired++
	}
}

// NextTick runs Tick and then reports how long until the earliest remaining
// node expires. The duration is never negative. ok is false when the heap is
// empty, meaning there is nothing to wait for.
func (h *Heap) NextTick() (d time.Duration, ok bool) {
	h.Tick()

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.nodes) == 0 {
		return 0, false
	}
	d = h.nodes[0].expiresAt.Sub(h.now())
	if d < 0 {
		d = 0
	}
	return d, true
}

// Contains reports whether id is scheduled.
func (h *Heap) Contains(id int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.index[id]
	return ok
}

// Len returns the number of scheduled nodes.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes)
}

// Clear drops every node without running callbacks.
func (h *Heap) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes = h.nodes[:0]
	clear(h.index)
}

// delete removes the node at position i. Caller holds mu.
func (h *Heap) delete(i int) {
	last := len(h.nodes) - 1
	if i != last {
		h.swap(i, last)
	}
	delete(h.index, h.nodes[last].id)
	h.nodes[last] = node{}
	h.nodes = h.nodes[:last]
	if i < last {
		h.fix(i)
	}
}

// fix restores heap order after the node at i changed. Caller holds mu.
func (h *Heap) fix(i int) {
	if !h.siftDown(i) {
		h.siftUp(i)
	}
}

func (h *Heap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.swap(i, parent)
		i = parent
	}
}

// siftDown reports whether the node moved.
func (h *Heap) siftDown(i int) bool {
	start := i
	n := len(h.nodes)
	for {
		child := 2*i + 1
		if child >= n {
			break
		}
		if right := child + 1; right < n && h.less(right, child) {
			child = right
		}
		if !h.less(child, i) {
			break
		}
		h.swap(i, child)
		i = child
	}
	return i > start
}

func (h *Heap) less(i, j int) bool {
	return h.nodes[i].expiresAt.Before(h.nodes[j].expiresAt)
}

func (h *Heap) swap(i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
	h.index[h.nodes[i].id] = i
	h.index[h.nodes[j].id] = j
}
