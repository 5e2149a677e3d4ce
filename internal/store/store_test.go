package store

import "testing"

func TestAppendKeepsLowestOffsetBelowCurrentLen(t *testing.T) {
	e := NewEntry("k", Cachable)
	r, err := e.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := e.Append([]byte("hello")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.LowestOffset() > e.CurrentLen() {
		t.Fatalf("invariant violated: lowestOffset=%d currentLen=%d", e.LowestOffset(), e.CurrentLen())
	}
	_ = r
}

func TestDeleteBehindTrimsBelowReaderOffset(t *testing.T) {
	e := NewEntry("big", DeleteBehind)
	r, err := e.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	chunk := make([]byte, DeleteBehindGap)
	if _, err := e.Append(chunk); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	e.Ack(r, int64(len(chunk))) // reader catches up fully

	defer_, err := e.Append(chunk)
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if defer_ {
		t.Fatal("expected no defer once reader has caught up and trimmed the gap")
	}
	if e.Gap() > DeleteBehindGap {
		t.Fatalf("expected gap <= %d after trim, got %d", DeleteBehindGap, e.Gap())
	}
}

func TestAppendWithDeleteBehindAndNoReadersAbandons(t *testing.T) {
	e := NewEntry("orphan", DeleteBehind)
	if _, err := e.Append([]byte("x")); err == nil {
		t.Fatal("expected ErrNoReaders when DELETE_BEHIND is set with no subscribed readers")
	}
}

func TestAbortSetsReleaseRequestAndClearsCachable(t *testing.T) {
	e := NewEntry("err", Cachable)
	e.Abort([]byte("502 Bad Gateway"))

	if !e.Flags().Has(ReleaseRequest) {
		t.Fatal("expected ReleaseRequest after Abort")
	}
	if e.Flags().Has(Cachable) {
		t.Fatal("expected Cachable cleared after Abort")
	}
	if e.State() != Complete {
		t.Fatalf("expected Complete state after Abort, got %v", e.State())
	}
}

func TestSubscribeAfterReleaseIsRefused(t *testing.T) {
	e := NewEntry("rel", 0)
	e.SetFlag(ReleaseRequest)
	r, err := e.Subscribe()
	if err != nil {
		t.Fatalf("subscribe before release should succeed: %v", err)
	}
	e.Unsubscribe(r) // drains writerActive=true still, so not released yet
	e.mu.Lock()
	e.writerActive = false
	e.state = Released
	e.mu.Unlock()

	if _, err := e.Subscribe(); err == nil {
		t.Fatal("expected Subscribe to refuse once the entry is released")
	}
}

func TestStoreLookupHitsAfterCreate(t *testing.T) {
	s := New()
	key := MakeKey("GET", "http://origin/a", nil)

	if _, ok := s.Lookup(key); ok {
		t.Fatal("expected miss before Create")
	}
	e := s.Create(key, Cachable)
	e.Complete(nil)

	got, ok := s.Lookup(key)
	if !ok || got != e {
		t.Fatal("expected Lookup to return the created entry")
	}
}

func TestMakeKeyStableAcrossVaryOrder(t *testing.T) {
	a := MakeKey("GET", "http://x/y", map[string]string{"Accept-Encoding": "gzip", "X-A": "1"})
	b := MakeKey("GET", "http://x/y", map[string]string{"X-A": "1", "Accept-Encoding": "gzip"})
	if a != b {
		t.Fatal("expected MakeKey to be stable regardless of map iteration order")
	}
}
