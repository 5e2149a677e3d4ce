package credcache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	libcache "github.com/squidcore/proxy/internal/cache"
)

// Cache is the authentication credentials cache: an unordered mapping from
// userKey to Credential with lazy, event-scheduled GC. Order is never load-
// bearing; SortedUsersList exists only for reports.
type Cache struct {
	store *libcache.Cache[string, *Credential]

	gcInterval  time.Duration
	nonceLife   time.Duration
	gcScheduled atomic.Bool
	gcTimer     *time.Timer
	mu          sync.Mutex

	// aclMemo models the ACL-evaluation memoization that depends on the
	// old config; DoConfigChangeCleanup flushes it alongside the GC guard.
	aclMemo sync.Map
}

// New returns a Cache whose entries are GC'd no sooner than gcInterval
// after an insert schedules the one-shot sweep, using nonceLifetime for
// Digest's oldest-nonce TTL rule.
func New(gcInterval, nonceLifetime time.Duration) *Cache {
	return &Cache{
		store:      libcache.New[string, *Credential](0, 0), // this cache manages its own expiry/sweep
		gcInterval: gcInterval,
		nonceLife:  nonceLifetime,
	}
}

// Lookup returns the credential stored under userKey, treating an entry
// whose TTL has lapsed as absent even if the GC sweep has not yet run
// (§8 invariant 4: "else GC has not run yet but the lookup path must still
// treat it as expired").
func (c *Cache) Lookup(userKey string) (*Credential, bool) {
	cred, ok := c.store.Load(userKey)
	if !ok {
		return nil, false
	}
	if cred.TTL(c.nonceLife) <= 0 {
		return nil, false
	}
	return cred, true
}

// Insert stores cred under userKey and schedules a one-shot GC event at
// gcInterval unless one is already scheduled.
func (c *Cache) Insert(userKey string, cred *Credential) {
	c.store.Store(userKey, cred)
	c.scheduleGC()
}

// scheduleGC arms the one-shot sweep timer unless the guard shows one is
// already pending, matching "every mutation schedules a GC event unless one
// is already scheduled."
func (c *Cache) scheduleGC() {
	if !c.gcScheduled.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	c.gcTimer = time.AfterFunc(c.gcInterval, func() {
		c.gcScheduled.Store(false)
		c.Cleanup()
	})
	c.mu.Unlock()
}

// Cleanup walks entries and evicts any whose TTL has lapsed. Safe to call
// directly (e.g. from an admin trigger) in addition to the scheduled sweep.
func (c *Cache) Cleanup() {
	for _, key := range c.store.Keys() {
		cred, ok := c.store.Load(key)
		if !ok {
			continue
		}
		if cred.TTL(c.nonceLife) <= 0 {
			c.store.Delete(key)
		}
	}
}

// DoConfigChangeCleanup additionally flushes the ACL-evaluation memoization
// that depended on the old config, beyond the normal TTL-driven Cleanup.
func (c *Cache) DoConfigChangeCleanup() {
	c.Cleanup()
	c.aclMemo.Range(func(k, _ any) bool {
		c.aclMemo.Delete(k)
		return true
	})
}

// MemoizeACL stores a precomputed ACL decision for key, consumed by the
// out-of-scope ACL evaluator; DoConfigChangeCleanup is the only thing that
// invalidates it wholesale.
func (c *Cache) MemoizeACL(key string, decision bool) { c.aclMemo.Store(key, decision) }

// LookupACL returns a previously memoized ACL decision for key.
func (c *Cache) LookupACL(key string) (bool, bool) {
	v, ok := c.aclMemo.Load(key)
	if !ok {
		return false, false
	}
	return v.(bool), true
}

// Reset drops every credential and cancels any pending GC timer.
func (c *Cache) Reset() {
	for _, key := range c.store.Keys() {
		c.store.Delete(key)
	}
	c.mu.Lock()
	if c.gcTimer != nil {
		c.gcTimer.Stop()
	}
	c.mu.Unlock()
	c.gcScheduled.Store(false)
}

// SortedUsersList enumerates usernames for reports, sorted since map
// iteration order is never load-bearing.
func (c *Cache) SortedUsersList() []string {
	keys := c.store.Keys()
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if cred, ok := c.store.Load(k); ok {
			names = append(names, cred.Username)
		}
	}
	sort.Strings(names)
	return names
}

// Len reports how many credentials are currently tracked.
func (c *Cache) Len() int { return c.store.Len() }
