package mempool

import (
	"os"
	"time"
)

// Kind selects which MemPool implementation backs a pool.
type Kind int

const (
	// Chunked carves fixed-capacity arenas; best for dense small-object
	// workloads (the default unless MEMPOOLS=1 forces it unconditionally).
	Chunked Kind = iota
	// Malloc keeps a LIFO of idle allocations from the system allocator;
	// best for sparse, large-object workloads.
	Malloc
)

// Allocator is the interface both pool shapes satisfy. T is the pooled
// object's payload type; objects are always reached through a *Handle[T].
type Allocator[T any] interface {
	Alloc() *Handle[T]
	Free(*Handle[T])
	Clean(maxAge time.Duration)
	Meter() *Meter
}

// Create registers a new pool under label and returns it. objectSize is used
// only to size chunk arenas (ignored by Malloc pools); it is the caller's
// responsibility to pass approximately sizeof(T). doZero: when true, a
// reused slot is wiped before it is
// handed back so a stale previous tenant's fields never leak into the next.
func Create[T any](label string, objectSize uintptr, kind Kind, doZero bool, budget *Budget) Allocator[T] {
	if os.Getenv("MEMPOOLS") == "1" {
		kind = Chunked
	}

	var a Allocator[T]
	switch kind {
	case Malloc:
		a = newMallocPool[T](doZero, budget)
	default:
		a = newChunkPool[T](objectSize, doZero, budget)
	}

	defaultRegistry.register(label, a)
	return a
}
