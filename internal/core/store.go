package core

import (
	"container/list"
	"iter"
	"sync"
	"time"
)

// A read refreshes an entry's recency position only once the store is at
// least this full (expressed as repositionNum/repositionDen of capacity).
// Below that, position bookkeeping costs more than the ordering precision is
// worth; eviction pressure only exists near capacity anyway.
const (
	repositionNum = 9
	repositionDen = 10
)

// Store is a bounded key→entry map with least-recently-used eviction and
// optional time-to-live expiry. Expired entries are pruned lazily on access;
// an optional background sweep supplements that. All operations are safe for
// concurrent use.
type Store struct {
	mu    sync.Mutex
	data  map[string]*record
	ll    *list.List // front is most recently used
	elems map[string]*list.Element
	max   int
	ttl   time.Duration // 0 disables expiry

	cleanInterval  time.Duration // 0 disables the background sweep
	stopCleanup    chan struct{}
	cleanupRunning bool
	seq            uint64 // generation source for conditional invalidation

	evicted func(key string) // optional, called after removal by expiry, overflow, or Delete
}

// record is one stored entry plus its expiry deadline and generation.
// expiresAt stays zero when the store has no TTL.
type record struct {
	entry     CacheEntry
	expiresAt time.Time
	gen       uint64
}

// NewStore initializes a Store.
//
//   - max: Maximum number of entries. Zero or negative means no caching at
//     all: the store stays empty.
//   - ttl: Time-to-live for each entry. Zero disables expiry.
//   - cleanInterval: Cadence of the background expiry sweep. Zero leaves
//     expiry entirely to lazy pruning.
//   - evicted: Optional callback invoked (outside the store lock) for each
//     key removed by expiry, overflow eviction, or Delete.
func NewStore(max int, ttl, cleanInterval time.Duration, evicted func(key string)) *Store {
	return &Store{
		data:          make(map[string]*record),
		ll:            list.New(),
		elems:         make(map[string]*list.Element),
		max:           max,
		ttl:           ttl,
		cleanInterval: cleanInterval,
		evicted:       evicted,
	}
}

// Get retrieves the live entry for key. An expired record is deleted first
// and reported absent. On a live hit the entry is moved to the
// most-recently-used position only when occupancy is above the reposition
// threshold.
func (s *Store) Get(key string) (CacheEntry, bool) {
	s.mu.Lock()
	elem, ok := s.elems[key]
	if !ok {
		s.mu.Unlock()
		return CacheEntry{}, false
	}
	rec := s.data[key]
	if s.expiredLocked(rec) {
		s.removeLocked(key)
		s.mu.Unlock()
		s.notify(key)
		return CacheEntry{}, false
	}
	if len(s.data)*repositionDen > s.max*repositionNum {
		s.ll.MoveToFront(elem)
	}
	entry := rec.entry
	s.mu.Unlock()
	return entry, true
}

// Has reports whether a live entry exists for key, with the same expiry
// side effect as Get but without touching recency.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	rec, ok := s.data[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if s.expiredLocked(rec) {
		s.removeLocked(key)
		s.mu.Unlock()
		s.notify(key)
		return false
	}
	s.mu.Unlock()
	return true
}

// Set inserts or replaces the entry for key. A prior record is removed first,
// and reported to the eviction callback, so reinsertion lands at the
// most-recently-used position and removal accounting stays balanced. Overflow
// eviction runs after the insert. Starts the background sweep on first use if
// configured. Returns the record's generation, usable with DeleteGen to
// invalidate this record and only this record.
func (s *Store) Set(key string, entry CacheEntry) uint64 {
	s.mu.Lock()
	var evicted []string
	if _, ok := s.elems[key]; ok {
		s.removeLocked(key)
		evicted = append(evicted, key)
	}
	s.seq++
	rec := &record{entry: entry, gen: s.seq}
	if s.ttl > 0 {
		rec.expiresAt = time.Now().Add(s.ttl)
	}
	s.elems[key] = s.ll.PushFront(key)
	s.data[key] = rec

	if s.ttl > 0 && s.cleanInterval > 0 && !s.cleanupRunning {
		s.cleanupRunning = true
		s.stopCleanup = make(chan struct{})
		go s.runCleanup(s.stopCleanup)
	}

	// Eviction runs after the sweep check so a capacity-zero clear also
	// stops a sweep started for this very insert.
	evicted = append(evicted, s.evictOverflowLocked()...)
	gen := rec.gen
	s.mu.Unlock()
	for _, k := range evicted {
		s.notify(k)
	}
	return gen
}

// Delete removes the entry for key unconditionally. Used for failure-path
// invalidation.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	_, ok := s.elems[key]
	if ok {
		s.removeLocked(key)
	}
	s.mu.Unlock()
	if ok {
		s.notify(key)
	}
}

// DeleteGen removes the entry for key only while it still holds the record
// whose generation Set returned. A key whose record has since been replaced
// is left alone, so a stale invalidation cannot take out its successor.
func (s *Store) DeleteGen(key string, gen uint64) bool {
	s.mu.Lock()
	rec, ok := s.data[key]
	if ok && rec.gen == gen {
		s.removeLocked(key)
	} else {
		ok = false
	}
	s.mu.Unlock()
	if ok {
		s.notify(key)
	}
	return ok
}

// Clear empties the store, reports every removed key to the eviction
// callback, and stops the background sweep.
func (s *Store) Clear() {
	s.mu.Lock()
	removed := make([]string, 0, len(s.data))
	for k := range s.data {
		removed = append(removed, k)
	}
	s.clearLocked()
	s.mu.Unlock()
	for _, k := range removed {
		s.notify(k)
	}
}

// discard empties the store without notification. For handing a store off
// after its entries have migrated elsewhere: migrated entries were not
// evicted, so they must not be reported as such.
func (s *Store) discard() {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()
}

// Len prunes expired entries and returns the live entry count.
func (s *Store) Len() int {
	evicted := s.pruneExpired()
	s.mu.Lock()
	n := len(s.data)
	s.mu.Unlock()
	for _, k := range evicted {
		s.notify(k)
	}
	return n
}

// Max returns the configured capacity.
func (s *Store) Max() int {
	return s.max
}

// Entries yields the live [key, entry] pairs in recency order, least
// recently used first. Expired entries encountered while building the
// sequence are pruned as a side effect. Each call produces a fresh,
// independently consumable sequence.
func (s *Store) Entries() iter.Seq2[string, CacheEntry] {
	type pair struct {
		key   string
		entry CacheEntry
	}
	return func(yield func(string, CacheEntry) bool) {
		s.mu.Lock()
		live := make([]pair, 0, len(s.data))
		var evicted []string
		for elem := s.ll.Back(); elem != nil; {
			prev := elem.Prev()
			key := elem.Value.(string)
			rec := s.data[key]
			if s.expiredLocked(rec) {
				s.removeLocked(key)
				evicted = append(evicted, key)
			} else {
				live = append(live, pair{key: key, entry: rec.entry})
			}
			elem = prev
		}
		s.mu.Unlock()
		for _, k := range evicted {
			s.notify(k)
		}
		for _, p := range live {
			if !yield(p.key, p.entry) {
				return
			}
		}
	}
}

func (s *Store) expiredLocked(rec *record) bool {
	return s.ttl > 0 && time.Now().After(rec.expiresAt)
}

// evictOverflowLocked enforces the capacity bound: capacity ≤ 0 clears the
// store entirely; otherwise expired entries go first, then least recently
// used ones until size fits. Returns the removed keys for notification.
func (s *Store) evictOverflowLocked() []string {
	if s.max <= 0 {
		evicted := make([]string, 0, len(s.data))
		for k := range s.data {
			evicted = append(evicted, k)
		}
		s.clearLocked()
		return evicted
	}
	var evicted []string
	if s.ttl > 0 && len(s.data) > s.max {
		now := time.Now()
		for k, rec := range s.data {
			if now.After(rec.expiresAt) {
				s.removeLocked(k)
				evicted = append(evicted, k)
			}
		}
	}
	for len(s.data) > s.max {
		tail := s.ll.Back()
		if tail == nil {
			break
		}
		k := tail.Value.(string)
		s.removeLocked(k)
		evicted = append(evicted, k)
	}
	return evicted
}

// removeLocked drops a key from the map and the recency list. The background
// sweep stops once the store is empty.
func (s *Store) removeLocked(key string) {
	if elem, ok := s.elems[key]; ok {
		s.ll.Remove(elem)
		delete(s.elems, key)
		delete(s.data, key)
		if len(s.data) == 0 && s.cleanupRunning {
			s.cleanupRunning = false
			close(s.stopCleanup)
		}
	}
}

func (s *Store) clearLocked() {
	s.data = make(map[string]*record)
	s.elems = make(map[string]*list.Element)
	s.ll.Init()
	if s.cleanupRunning {
		s.cleanupRunning = false
		close(s.stopCleanup)
	}
}

// runCleanup sweeps expired entries at the configured interval until told to
// stop. A fresh stop channel is created per run, so the sweep can restart
// after the store empties out and fills again.
func (s *Store) runCleanup(stop chan struct{}) {
	ticker := time.NewTicker(s.cleanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, k := range s.pruneExpired() {
				s.notify(k)
			}
		case <-stop:
			return
		}
	}
}

// pruneExpired removes all entries whose TTL has elapsed and returns their
// keys.
func (s *Store) pruneExpired() []string {
	if s.ttl == 0 {
		return nil
	}
	now := time.Now()
	s.mu.Lock()
	var expired []string
	for key, rec := range s.data {
		if now.After(rec.expiresAt) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		s.removeLocked(key)
	}
	s.mu.Unlock()
	return expired
}

// notify runs the eviction callback outside the store lock.
func (s *Store) notify(key string) {
	if s.evicted != nil {
		s.evicted(key)
	}
}
