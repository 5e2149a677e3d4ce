package mempool

import "sync/atomic"

// Budget is the process-wide idle-memory ceiling. Once the estimated idle
// footprint across every registered pool exceeds Limit, a chunked pool runs
// the aggressive Clean(0) path after each Free and a malloc pool stops
// parking freed objects, instead of letting idle slots accumulate.
// MEMPOOLS=1 in the environment forces the Chunked kind regardless of what
// Create's caller asked for (see pool.go).
type Budget struct {
	limit uint64
	used  atomic.Uint64
}

// NewBudget returns a Budget capped at limitBytes of estimated idle memory.
func NewBudget(limitBytes uint64) *Budget {
	return &Budget{limit: limitBytes}
}

// SetUsed replaces the current idle-byte estimate. Nothing in this package
// calls it; Exceeded compares Limit against whatever value was last stored,
// rather than tracking individual object sizes through each Free call.
func (b *Budget) SetUsed(n uint64)  { b.used.Store(n) }
func (b *Budget) Used() uint64      { return b.used.Load() }
func (b *Budget) Limit() uint64     { return b.limit }
func (b *Budget) Exceeded() bool    { return b.limit > 0 && b.used.Load() > b.limit }
