package kids

import (
	"fmt"
	"syscall"
	"time"

	"github.com/squidcore/proxy/internal/cache"
)

// HopelessKidRevivalDelay is how long a hopeless kid stays excluded from
// restart before its failure record lapses.
const HopelessKidRevivalDelay = 1 * time.Hour

// Kids is the process roster, initialized once from configuration:
// `workers` normal workers, one disker per cache_dir, plus a coordinator
// when the total exceeds one.
type Kids struct {
	all []*Kid

	// hopeless marks lapse on their own after the revival delay; the
	// TTL'd flag IS the exclusion.
	hopeless *cache.Cache[string, bool]
}

// Init builds the roster for the given worker and cache_dir counts.
func Init(workers, cacheDirs int) *Kids {
	k := &Kids{
		hopeless: cache.New[string, bool](HopelessKidRevivalDelay, 0),
	}
	for i := 1; i <= workers; i++ {
		k.all = append(k.all, newKid(fmt.Sprintf("squid-%d", i), KindWorker))
	}
	for i := 1; i <= cacheDirs; i++ {
		k.all = append(k.all, newKid(fmt.Sprintf("squid-disk-%d", i), KindDisker))
	}
	if len(k.all) > 1 {
		k.all = append(k.all, newKid("squid-coord", KindCoordinator))
	}
	return k
}

// Count is the roster size.
func (k *Kids) Count() int { return len(k.all) }

// Get returns the i-th slot (zero-based).
func (k *Kids) Get(i int) *Kid {
	if i < 0 || i >= len(k.all) {
		return nil
	}
	return k.all[i]
}

// Find locates the slot owning pid, or nil.
func (k *Kids) Find(pid int) *Kid {
	for _, kid := range k.all {
		if kid.pid == pid && pid != 0 {
			return kid
		}
	}
	return nil
}

// MarkStopped records an exit observed by the reaper and raises the
// hopeless flag when the kid crossed the failure threshold.
func (k *Kids) MarkStopped(pid, exitStatus int, sig syscall.Signal) *Kid {
	kid := k.Find(pid)
	if kid == nil {
		return nil
	}
	kid.Stopped(exitStatus, sig)
	if kid.Hopeless() {
		k.hopeless.Store(kid.name, true)
	}
	return kid
}

// IsHopeless reports whether the kid is currently excluded from restart.
func (k *Kids) IsHopeless(kid *Kid) bool {
	v, ok := k.hopeless.Load(kid.name)
	return ok && v
}

// AllHopeless reports whether every slot is excluded from restart.
func (k *Kids) AllHopeless() bool {
	for _, kid := range k.all {
		if !k.IsHopeless(kid) {
			return false
		}
	}
	return len(k.all) > 0
}

// AllExitedHappy reports whether every slot ran and exited cleanly.
func (k *Kids) AllExitedHappy() bool {
	for _, kid := range k.all {
		if !kid.exitedEver || !kid.exitedHappy {
			return false
		}
	}
	return len(k.all) > 0
}

// SomeSignaled reports whether any kid was last terminated by sig.
func (k *Kids) SomeSignaled(sig syscall.Signal) bool {
	for _, kid := range k.all {
		if kid.signaled && kid.lastSignal == sig {
			return true
		}
	}
	return false
}

// SomeRunning reports whether any kid process is alive.
func (k *Kids) SomeRunning() bool {
	for _, kid := range k.all {
		if kid.running {
			return true
		}
	}
	return false
}

// ShouldRestartSome reports whether at least one kid is eligible for
// revival right now.
func (k *Kids) ShouldRestartSome() bool {
	for _, kid := range k.all {
		if kid.ShouldRestart() && !k.IsHopeless(kid) {
			return true
		}
	}
	return false
}

// ForgetOldFailures clears lapsed hopeless marks and failure counters, and
// returns the delay until the next currently-excluded kid becomes eligible
// (zero when none is excluded).
func (k *Kids) ForgetOldFailures() time.Duration {
	k.hopeless.Expire()

	var next time.Duration
	for _, kid := range k.all {
		remain, ok := k.hopeless.Remaining(kid.name)
		if !ok {
			if kid.Hopeless() {
				kid.badFailures = 0
			}
			continue
		}
		if next == 0 || remain < next {
			next = remain
		}
	}
	return next
}
