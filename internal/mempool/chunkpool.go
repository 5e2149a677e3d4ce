package mempool

import (
	"sort"
	"time"
)

const (
	minChunkCapacity = 32
	maxChunkCapacity = 65535
	maxChunkBytes    = 256 * 1024
)

// chunk is a fixed-capacity arena: a slice of Handle[T] slots threaded into a
// free list. One chunk is carved whenever every existing chunk is full.
type chunk[T any] struct {
	slots    []Handle[T]
	free     []int // stack of free slot indices, LIFO
	inUse    int
	idleFrom time.Time // set when inUse drops to 0, zero otherwise
}

func chunkCapacity(objectSize uintptr) int {
	if objectSize == 0 {
		objectSize = 1
	}
	cap := maxChunkBytes / int(objectSize)
	if cap < minChunkCapacity {
		cap = minChunkCapacity
	}
	if cap > maxChunkCapacity {
		cap = maxChunkCapacity
	}
	return cap
}

func newChunk[T any](capacity int) *chunk[T] {
	c := &chunk[T]{
		slots: make([]Handle[T], capacity),
		free:  make([]int, capacity),
	}
	for i := 0; i < capacity; i++ {
		c.free[i] = capacity - 1 - i
	}
	return c
}

func (c *chunk[T]) hasFree() bool { return len(c.free) > 0 }

func (c *chunk[T]) take(doZero bool) *Handle[T] {
	n := len(c.free)
	idx := c.free[n-1]
	c.free = c.free[:n-1]
	c.inUse++
	c.idleFrom = time.Time{}

	h := &c.slots[idx]
	if doZero {
		var zero T
		h.Value = zero
	}
	h.owner = c
	h.slot = idx
	return h
}

func (c *chunk[T]) give(slot int) {
	c.free = append(c.free, slot)
	c.inUse--
	if c.inUse == 0 {
		c.idleFrom = time.Now()
	}
}

// chunkPool is the "chunked" MemPool variant: dense arenas, O(1) free via the
// handle's owner back-reference, bulk eviction of fully-idle chunks.
type chunkPool[T any] struct {
	objectSize uintptr
	doZero     bool
	chunks     []*chunk[T]
	meter      Meter
	budget     *Budget
}

func newChunkPool[T any](objectSize uintptr, doZero bool, budget *Budget) *chunkPool[T] {
	return &chunkPool[T]{objectSize: objectSize, doZero: doZero, budget: budget}
}

func (p *chunkPool[T]) Alloc() *Handle[T] {
	for _, c := range p.chunks {
		if c.hasFree() {
			p.meter.recordAlloc()
			return c.take(p.doZero)
		}
	}

	c := newChunk[T](chunkCapacity(p.objectSize))
	p.chunks = append([]*chunk[T]{c}, p.chunks...)
	p.meter.recordAlloc()
	return c.take(p.doZero)
}

func (p *chunkPool[T]) Free(h *Handle[T]) {
	if h == nil || h.owner == nil {
		return
	}
	h.owner.give(h.slot)
	p.meter.recordFree(true)
	if p.budget != nil && p.budget.Exceeded() {
		p.Clean(0)
	}
}

// Clean evicts chunks that have been fully idle for at least maxAge (or any
// fully-idle chunk when maxAge is 0, the "aggressive" mode used once the
// global idle budget is breached), then re-sorts the remaining chunks by
// descending in-use count so future allocations concentrate into the
// busiest arenas and fragmentation collects in the few that are left idle.
func (p *chunkPool[T]) Clean(maxAge time.Duration) {
	now := time.Now()
	kept := p.chunks[:0]
	var reclaimed int64
	for _, c := range p.chunks {
		if c.inUse == 0 && !c.idleFrom.IsZero() && now.Sub(c.idleFrom) >= maxAge {
			reclaimed += int64(len(c.slots))
			continue
		}
		kept = append(kept, c)
	}
	p.chunks = kept
	if reclaimed > 0 {
		p.meter.recordIdleDrain(reclaimed)
	}

	sort.SliceStable(p.chunks, func(i, j int) bool {
		return p.chunks[i].inUse > p.chunks[j].inUse
	})
}

func (p *chunkPool[T]) Meter() *Meter { return &p.meter }
