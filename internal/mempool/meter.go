package mempool

import (
	"sync/atomic"
	"time"
)

// Meter folds a pool's fast-path counters into long-term, thread-safe totals.
// Invariant: Inuse() + Idle() == Alloc() always holds for a consistent read
// pair taken under the pool's lock.
type Meter struct {
	allocEver int64
	freedEver int64
	idle      int64
	peak      int64
	peakAt    atomic.Int64 // unix nanos
}

func (m *Meter) recordAlloc() {
	atomic.AddInt64(&m.allocEver, 1)
	inuse := m.Inuse()
	if inuse > atomic.LoadInt64(&m.peak) {
		atomic.StoreInt64(&m.peak, inuse)
		m.peakAt.Store(time.Now().UnixNano())
	}
}

func (m *Meter) recordFree(toIdle bool) {
	atomic.AddInt64(&m.freedEver, 1)
	if toIdle {
		atomic.AddInt64(&m.idle, 1)
	}
}

func (m *Meter) recordIdleDrain(n int64) {
	atomic.AddInt64(&m.idle, -n)
}

// Alloc returns the total number of objects ever allocated from this pool.
func (m *Meter) Alloc() int64 { return atomic.LoadInt64(&m.allocEver) }

// Freed returns the total number of objects ever released back to the pool.
func (m *Meter) Freed() int64 { return atomic.LoadInt64(&m.freedEver) }

// Idle returns the number of currently-idle (freed, not yet reclaimed) slots.
func (m *Meter) Idle() int64 { return atomic.LoadInt64(&m.idle) }

// Inuse returns Alloc - Freed, the number of objects currently checked out.
func (m *Meter) Inuse() int64 { return m.Alloc() - m.Freed() }

// Peak returns the highest Inuse value observed and when it occurred.
func (m *Meter) Peak() (int64, time.Time) {
	return atomic.LoadInt64(&m.peak), time.Unix(0, m.peakAt.Load())
}
