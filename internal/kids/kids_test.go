package kids

import (
	"syscall"
	"testing"
)

func TestInitRosterShape(t *testing.T) {
	k := Init(2, 1)
	// 2 workers + 1 disker + coordinator
	if k.Count() != 4 {
		t.Fatalf("roster size %d", k.Count())
	}
	if k.Get(3).Kind() != KindCoordinator {
		t.Fatalf("last slot is %v", k.Get(3).Kind())
	}

	// a single worker with no diskers needs no coordinator
	if solo := Init(1, 0); solo.Count() != 1 {
		t.Fatalf("solo roster size %d", solo.Count())
	}
}

func TestFindByPid(t *testing.T) {
	k := Init(2, 0)
	k.Get(0).Started(101)
	k.Get(1).Started(102)

	if kid := k.Find(102); kid == nil || kid.Name() != k.Get(1).Name() {
		t.Fatal("Find(102) missed")
	}
	if k.Find(999) != nil {
		t.Fatal("Find invented a kid")
	}
	if k.Find(0) != nil {
		t.Fatal("pid 0 matched an unstarted kid")
	}
}

func TestRepeatedQuickCrashesBecomeHopeless(t *testing.T) {
	k := Init(1, 0)
	kid := k.Get(0)

	for i := 0; i < badFailureLimit; i++ {
		kid.Started(100 + i)
		k.MarkStopped(100+i, 1, 0)
	}
	if !k.IsHopeless(kid) {
		t.Fatal("kid not hopeless after repeated quick crashes")
	}
	if !k.AllHopeless() {
		t.Fatal("AllHopeless false with the only kid hopeless")
	}
	if k.ShouldRestartSome() {
		t.Fatal("hopeless kid offered for restart")
	}
}

func TestCleanExitResetsFailures(t *testing.T) {
	k := Init(1, 0)
	kid := k.Get(0)

	kid.Started(100)
	k.MarkStopped(100, 1, 0)
	kid.Started(101)
	k.MarkStopped(101, 0, 0)

	if kid.badFailures != 0 {
		t.Fatalf("clean exit left %d failures", kid.badFailures)
	}
	if !k.AllExitedHappy() {
		t.Fatal("happy exit not recorded")
	}
	if k.ShouldRestartSome() {
		t.Fatal("happy-exited kid offered for restart")
	}
}

func TestSomeSignaledAndRunning(t *testing.T) {
	k := Init(2, 0)
	k.Get(0).Started(100)
	k.Get(1).Started(101)

	if !k.SomeRunning() {
		t.Fatal("running kids not reported")
	}
	k.MarkStopped(100, 0, syscall.SIGSEGV)
	if !k.SomeSignaled(syscall.SIGSEGV) {
		t.Fatal("SIGSEGV exit not reported")
	}
	if k.SomeSignaled(syscall.SIGTERM) {
		t.Fatal("wrong signal reported")
	}
}

func TestCrashedKidIsRestartEligible(t *testing.T) {
	k := Init(1, 0)
	kid := k.Get(0)
	kid.Started(100)
	k.MarkStopped(100, 1, 0)

	if !k.ShouldRestartSome() {
		t.Fatal("crashed kid not offered for restart")
	}
	if k.ForgetOldFailures() != 0 {
		t.Fatal("revival delay reported with no hopeless kids")
	}

	// push it to hopeless; a revival delay must now be pending
	for i := 0; i < badFailureLimit; i++ {
		kid.Started(200 + i)
		k.MarkStopped(200+i, 1, 0)
	}
	if d := k.ForgetOldFailures(); d <= 0 || d > HopelessKidRevivalDelay {
		t.Fatalf("revival delay %v", d)
	}
}
