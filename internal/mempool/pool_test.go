package mempool

import "testing"

type widget struct {
	a, b int64
}

func TestChunkedAllocFreeInuseInvariant(t *testing.T) {
	p := Create[widget]("widget-test", 16, Chunked, false, nil)

	h := p.Alloc()
	if p.Meter().Inuse() != 1 {
		t.Fatalf("expected inuse=1 after alloc, got %d", p.Meter().Inuse())
	}

	p.Free(h)
	if got := p.Meter().Inuse(); got != 0 {
		t.Fatalf("expected inuse=0 after free, got %d", got)
	}
	if got := p.Meter().Idle(); got != 1 {
		t.Fatalf("expected idle=1 after free, got %d", got)
	}
}

func TestChunkedReusesFreedSlot(t *testing.T) {
	p := Create[widget]("widget-reuse", 16, Chunked, true, nil)

	h1 := p.Alloc()
	h1.Value.a = 42
	p.Free(h1)

	h2 := p.Alloc()
	if h2.Value.a != 0 {
		t.Fatalf("expected zeroed value for reused slot convention, got %d", h2.Value.a)
	}
	if p.Meter().Alloc() != 2 {
		t.Fatalf("expected allocEver=2, got %d", p.Meter().Alloc())
	}
}

func TestMallocPoolAllocFree(t *testing.T) {
	p := Create[widget]("widget-malloc", 16, Malloc, false, nil)

	h := p.Alloc()
	p.Free(h)

	if p.Meter().Inuse() != 0 {
		t.Fatalf("expected inuse=0, got %d", p.Meter().Inuse())
	}
	if p.Meter().Idle() != 1 {
		t.Fatalf("expected idle=1, got %d", p.Meter().Idle())
	}
}

func TestBudgetExceededOnlyAboveNonZeroLimit(t *testing.T) {
	b := NewBudget(0) // 0 disables the budget check entirely (no limit)
	if b.Exceeded() {
		t.Fatal("zero-limit budget must never report exceeded")
	}

	b2 := NewBudget(10)
	b2.SetUsed(11)
	if !b2.Exceeded() {
		t.Fatal("expected budget to report exceeded once used > limit")
	}
}

func TestChunkCapacityBounds(t *testing.T) {
	if c := chunkCapacity(1); c != maxChunkCapacity {
		t.Fatalf("tiny objects should hit the 65535 cap, got %d", c)
	}
	if c := chunkCapacity(1 << 20); c != minChunkCapacity {
		t.Fatalf("huge objects should hit the 32 floor, got %d", c)
	}
}
