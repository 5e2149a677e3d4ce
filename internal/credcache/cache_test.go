package credcache

import (
	"testing"
	"time"
)

func TestInsertLookupRoundTrip(t *testing.T) {
	c := New(time.Hour, time.Hour)
	cred := NewCredential("key1", "alice", Basic)
	cred.Expires = time.Now().Add(time.Minute)
	c.Insert("key1", cred)

	got, ok := c.Lookup("key1")
	if !ok || got.Username != "alice" {
		t.Fatalf("expected to find alice, got %+v ok=%v", got, ok)
	}
}

func TestLookupTreatsLapsedTTLAsAbsentBeforeGC(t *testing.T) {
	c := New(time.Hour, time.Hour) // GC deliberately far away
	cred := NewCredential("key1", "bob", Basic)
	cred.Expires = time.Now().Add(-time.Second) // already lapsed
	c.Insert("key1", cred)

	if _, ok := c.Lookup("key1"); ok {
		t.Fatal("expected Lookup to treat a lapsed-TTL entry as absent even though GC has not run")
	}
}

func TestNegotiateNeverCachesBeyondTransaction(t *testing.T) {
	cred := NewCredential("neg1", "carol", Negotiate)
	cred.Expires = time.Now().Add(time.Hour)
	if ttl := cred.TTL(time.Hour); ttl >= 0 {
		t.Fatalf("expected negative TTL for Negotiate, got %v", ttl)
	}
}

func TestAttachCollapsesConcurrentCallbacks(t *testing.T) {
	cred := NewCredential("key1", "dave", Basic)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		cred.Attach(func(c *Credential) { order = append(order, i) })
	}
	cred.SetResult(true, time.Now().Add(time.Minute))

	if len(order) != 3 {
		t.Fatalf("expected all 3 callbacks to fire, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO firing order, got %v", order)
		}
	}
}

func TestAttachAfterResolvedFiresImmediately(t *testing.T) {
	cred := NewCredential("key1", "erin", Basic)
	cred.SetResult(true, time.Now().Add(time.Minute))

	fired := false
	cred.Attach(func(c *Credential) { fired = true })
	if !fired {
		t.Fatal("expected immediate callback once credential is already resolved")
	}
}

func TestMarkPendingOnlyOneDriverWins(t *testing.T) {
	cred := NewCredential("key1", "frank", Basic)
	wins := 0
	for i := 0; i < 5; i++ {
		if cred.MarkPending() {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one MarkPending to win the race, got %d", wins)
	}
}

func TestDoConfigChangeCleanupFlushesACLMemo(t *testing.T) {
	c := New(time.Hour, time.Hour)
	c.MemoizeACL("rule1", true)
	c.DoConfigChangeCleanup()

	if _, ok := c.LookupACL("rule1"); ok {
		t.Fatal("expected ACL memoization to be flushed by DoConfigChangeCleanup")
	}
}
