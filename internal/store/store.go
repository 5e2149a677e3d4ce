package store

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Store is the process-wide (per-worker) map from key to Entry, plus the
// hit/miss/delete-behind-engaged counters wired the same way MemPool's
// meters are.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	hits           prometheus.Counter
	misses         prometheus.Counter
	deleteBehinds  prometheus.Counter
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[string]*Entry),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "squidcore", Subsystem: "store", Name: "hits_total",
			Help: "Requests served by attaching to an existing entry.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "squidcore", Subsystem: "store", Name: "misses_total",
			Help: "Requests that created a new entry and started a fetch.",
		}),
		deleteBehinds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "squidcore", Subsystem: "store", Name: "delete_behind_engaged_total",
			Help: "Entries switched to DELETE_BEHIND streaming.",
		}),
	}
}

// RegisterCollectors registers this Store's counters on reg.
func (s *Store) RegisterCollectors(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{s.hits, s.misses, s.deleteBehinds} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the entry at key if it exists and is not ReleaseRequest,
// recording a hit. Matches step 3 of the HTTP lifecycle: "if an incomplete
// or complete entry exists and is not marked RELEASE_REQUEST, attach."
func (s *Store) Lookup(key string) (*Entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.Flags().Has(ReleaseRequest) {
		return nil, false
	}
	s.hits.Inc()
	return e, true
}

// Create installs a brand-new entry under key, recording a miss. Any
// previous (releasable) entry under the same key is replaced.
func (s *Store) Create(key string, flags Flags) *Entry {
	e := NewEntry(key, flags)
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	s.misses.Inc()
	return e
}

// Release drops key from the table. Safe to call once an entry's readers
// and writer have both finished draining and ReleaseRequest was set.
func (s *Store) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// RecordDeleteBehind increments the delete-behind-engaged counter; callers
// invoke this once each time they switch an entry to DELETE_BEHIND.
func (s *Store) RecordDeleteBehind() { s.deleteBehinds.Inc() }

// Len reports how many entries are currently tracked.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
