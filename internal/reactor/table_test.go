package reactor

import "testing"

func newTestTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable(nil)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func TestBiggestFDTracksOpenSet(t *testing.T) {
	tbl := newTestTable(t)
	defer tbl.CloseBackend()

	if tbl.BiggestFD() != -1 {
		t.Fatalf("expected -1 on empty table, got %d", tbl.BiggestFD())
	}

	_ = tbl.Open(5, ClassNone)
	_ = tbl.Open(9, ClassNone)
	_ = tbl.Open(3, ClassNone)

	if got := tbl.BiggestFD(); got != 9 {
		t.Fatalf("expected biggest=9, got %d", got)
	}
	if got := tbl.NumberFD(); got != 3 {
		t.Fatalf("expected number=3, got %d", got)
	}

	_ = tbl.Close(9)
	if got := tbl.BiggestFD(); got != 5 {
		t.Fatalf("expected biggest to fall back to 5 after closing 9, got %d", got)
	}
	if got := tbl.NumberFD(); got != 2 {
		t.Fatalf("expected number=2, got %d", got)
	}
}

func TestCloseNotOpenIsError(t *testing.T) {
	tbl := newTestTable(t)
	defer tbl.CloseBackend()

	if err := tbl.Close(42); err == nil {
		t.Fatal("expected ErrNotOpen closing an fd that was never opened")
	}
}

func TestDoubleOpenIsError(t *testing.T) {
	tbl := newTestTable(t)
	defer tbl.CloseBackend()

	if err := tbl.Open(1, ClassNone); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := tbl.Open(1, ClassNone); err == nil {
		t.Fatal("expected ErrAlreadyOpen on the second open of the same fd")
	}
}

func TestCloseFiresCloseHandlerAndClearsState(t *testing.T) {
	tbl := newTestTable(t)
	defer tbl.CloseBackend()

	_ = tbl.Open(7, ClassNone)
	fired := false
	_ = tbl.SetCloseHandler(7, func(fd int) { fired = true })
	_ = tbl.SetReadHandler(7, func(fd int) {})

	if err := tbl.Close(7); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !fired {
		t.Fatal("expected close handler to fire")
	}
	if tbl.NumberFD() != 0 {
		t.Fatalf("expected 0 open after close, got %d", tbl.NumberFD())
	}
}

func TestDoSelectIdleOnEmptyTable(t *testing.T) {
	tbl := newTestTable(t)
	defer tbl.CloseBackend()

	if got := tbl.DoSelect(10); got != Idle {
		t.Fatalf("expected Idle on empty table, got %v", got)
	}
}

func TestDoSelectShutdownWhenDrained(t *testing.T) {
	tbl := newTestTable(t)
	defer tbl.CloseBackend()

	tbl.RequestShutdown()
	if got := tbl.DoSelect(10); got != Shutdown {
		t.Fatalf("expected Shutdown once drained and flagged, got %v", got)
	}
}

func TestIncomingStatsWidensOnMiss(t *testing.T) {
	var s incomingStats
	if s.due(0) {
		t.Fatal("a class with zero descriptors is never due")
	}

	s.sinceHit = 0
	for i := 0; i < 5; i++ {
		s.finishPolling(0, 1)
	}
	if s.shift == 0 {
		t.Fatal("expected shift to widen after repeated empty polls")
	}

	prevShift := s.shift
	s.finishPolling(1, 1)
	if s.shift >= prevShift {
		t.Fatal("expected shift to narrow after finding work")
	}
}
