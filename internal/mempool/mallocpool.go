package mempool

import "time"

// mallocPool is the "malloc" MemPool variant: a LIFO stack of idle
// allocations backed directly by the Go allocator, preferred for sparse
// large-object workloads where a dense arena would waste memory.
type mallocPool[T any] struct {
	doZero bool
	idle   []*Handle[T]
	meter  Meter
	budget *Budget
}

func newMallocPool[T any](doZero bool, budget *Budget) *mallocPool[T] {
	return &mallocPool[T]{doZero: doZero, budget: budget}
}

func (p *mallocPool[T]) Alloc() *Handle[T] {
	n := len(p.idle)
	if n == 0 {
		p.meter.recordAlloc()
		return &Handle[T]{}
	}

	h := p.idle[n-1]
	p.idle = p.idle[:n-1]
	p.meter.recordIdleDrain(1)
	p.meter.recordAlloc()
	if p.doZero {
		var zero T
		h.Value = zero
	}
	return h
}

func (p *mallocPool[T]) Free(h *Handle[T]) {
	if h == nil {
		return
	}
	if p.budget != nil && p.budget.Exceeded() {
		p.meter.recordFree(false)
		return
	}
	p.idle = append(p.idle, h)
	p.meter.recordFree(true)
}

// Clean drops idle entries older than the global budget allows; since a
// malloc-pool idle slot carries no timestamp of its own, maxAge == 0 (the
// aggressive path) discards everything and any positive maxAge is a no-op,
// matching the reference behavior where LIFO entries have no per-item age.
func (p *mallocPool[T]) Clean(maxAge time.Duration) {
	if maxAge > 0 {
		return
	}
	n := int64(len(p.idle))
	p.idle = nil
	p.meter.recordIdleDrain(n)
}

func (p *mallocPool[T]) Meter() *Meter { return &p.meter }
