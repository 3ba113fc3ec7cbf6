// Package buffered implements the Buffered Container (C3): an
// LRU-ordered set of resident, typed pages bounded by a configured
// capacity M, wrapping a Converter Container (C2). Eviction writes
// back dirty, unpinned pages through C2 before dropping them; flush
// writes back every dirty page without evicting (§4.2).
package buffered

import (
	"container/list"
	"sync"

	"github.com/mvbtdb/mvbt/container"
	"github.com/mvbtdb/mvbt/container/converter"
	"github.com/mvbtdb/mvbt/internal/metrics"
	"github.com/mvbtdb/mvbt/merrors"
)

type page[T any] struct {
	id    container.BlockId
	value T
	dirty bool
	pins  int
}

// Container is the Buffered Container: callers fetch a Handle,
// mutate/read its Value, and Release it; the buffer evicts the
// least-recently-used page with a zero pin count once it exceeds
// capacity.
type Container[T any] struct {
	mu       sync.Mutex
	inner    *converter.Container[T]
	capacity int

	index map[container.BlockId]*list.Element
	lru   *list.List // front = MRU, back = LRU
}

// New wraps inner with an LRU buffer bounded to capacity resident
// pages (M in §4.6.1's memory-budget accounting).
func New[T any](inner *converter.Container[T], capacity int) *Container[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Container[T]{
		inner:    inner,
		capacity: capacity,
		index:    make(map[container.BlockId]*list.Element),
		lru:      list.New(),
	}
}

// Handle is a pinned, transient reference to a resident page; it
// must be Released on every exit path (§5: "a guarded handle that
// releases its pin on all exit paths").
type Handle[T any] struct {
	c  *Container[T]
	id container.BlockId
}

// Value returns the page's current in-memory value.
func (h *Handle[T]) Value() T {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return h.c.index[h.id].Value.(*page[T]).value
}

// Set updates the page's value and marks it dirty.
func (h *Handle[T]) Set(v T) {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	p := h.c.index[h.id].Value.(*page[T])
	p.value = v
	p.dirty = true
	metrics.BufferDirtyPages.Set(float64(h.c.countDirtyLocked()))
}

// Release unpins the page, allowing it to be evicted.
func (h *Handle[T]) Release() {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if el, ok := h.c.index[h.id]; ok {
		p := el.Value.(*page[T])
		if p.pins > 0 {
			p.pins--
		}
	}
}

// Get pins id's page, fetching it through the converter container on
// a miss, and moves it to MRU.
func (c *Container[T]) Get(id container.BlockId) (*Handle[T], error) {
	c.mu.Lock()
	if el, ok := c.index[id]; ok {
		c.lru.MoveToFront(el)
		el.Value.(*page[T]).pins++
		c.mu.Unlock()
		metrics.BufferHits.Inc()
		return &Handle[T]{c: c, id: id}, nil
	}
	c.mu.Unlock()

	metrics.BufferMisses.Inc()
	v, err := c.inner.Get(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[id]; ok {
		// Lost a race with a concurrent-within-same-op fetch; reuse it.
		c.lru.MoveToFront(el)
		el.Value.(*page[T]).pins++
		return &Handle[T]{c: c, id: id}, nil
	}
	p := &page[T]{id: id, value: v, pins: 1}
	el := c.lru.PushFront(p)
	c.index[id] = el
	if err := c.evictIfNeededLocked(); err != nil {
		return nil, err
	}
	return &Handle[T]{c: c, id: id}, nil
}

// Allocate reserves a fresh block id and seeds its buffered page with
// v, pinned for the caller to Release.
func (c *Container[T]) Allocate(v T) (container.BlockId, *Handle[T], error) {
	id, err := c.inner.Allocate()
	if err != nil {
		return 0, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	p := &page[T]{id: id, value: v, dirty: true, pins: 1}
	el := c.lru.PushFront(p)
	c.index[id] = el
	metrics.BufferDirtyPages.Set(float64(c.countDirtyLocked()))
	if err := c.evictIfNeededLocked(); err != nil {
		return 0, nil, err
	}
	return id, &Handle[T]{c: c, id: id}, nil
}

// Remove evicts id from the buffer (without write-back) and removes
// it from the backing container.
func (c *Container[T]) Remove(id container.BlockId) error {
	c.mu.Lock()
	if el, ok := c.index[id]; ok {
		c.lru.Remove(el)
		delete(c.index, id)
	}
	c.mu.Unlock()
	return c.inner.Remove(id)
}

// evictIfNeededLocked evicts LRU pages with a zero pin count until
// resident count is within capacity. Pages still pinned at the back
// are skipped; if every resident page is pinned, the buffer may
// transiently exceed capacity (correctness over strict bounding,
// matching the single-operation-at-a-time model of §5).
func (c *Container[T]) evictIfNeededLocked() error {
	for c.lru.Len() > c.capacity {
		el := c.lru.Back()
		evicted := false
		for el != nil {
			p := el.Value.(*page[T])
			if p.pins == 0 {
				if p.dirty {
					if err := c.inner.Update(p.id, p.value); err != nil {
						return err
					}
				}
				prev := el.Prev()
				c.lru.Remove(el)
				delete(c.index, p.id)
				metrics.BufferEvictions.Inc()
				evicted = true
				_ = prev
				break
			}
			el = el.Prev()
		}
		if !evicted {
			break
		}
	}
	return nil
}

func (c *Container[T]) countDirtyLocked() int {
	n := 0
	for el := c.lru.Front(); el != nil; el = el.Next() {
		if el.Value.(*page[T]).dirty {
			n++
		}
	}
	return n
}

// Flush writes back every dirty page without evicting it (§4.2).
func (c *Container[T]) Flush() error {
	c.mu.Lock()
	var dirty []*page[T]
	for el := c.lru.Front(); el != nil; el = el.Next() {
		p := el.Value.(*page[T])
		if p.dirty {
			dirty = append(dirty, p)
		}
	}
	c.mu.Unlock()

	for _, p := range dirty {
		if err := c.inner.Update(p.id, p.value); err != nil {
			return err
		}
		p.dirty = false
	}
	metrics.BufferDirtyPages.Set(0)
	return c.inner.Flush()
}

// Close flushes then drops every resident page. Idempotent.
func (c *Container[T]) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	c.mu.Lock()
	c.index = make(map[container.BlockId]*list.Element)
	c.lru = list.New()
	c.mu.Unlock()
	return c.inner.Close()
}

// CheckAllReleased reports whether any page is still pinned; used in
// tests and debug builds to catch the programming error §5 calls out
// (a failure to release a pin on every exit path).
func (c *Container[T]) CheckAllReleased() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.lru.Front(); el != nil; el = el.Next() {
		if el.Value.(*page[T]).pins != 0 {
			return merrors.Invariant("buffered.CheckAllReleased", "page still pinned after operation")
		}
	}
	return nil
}
