// Package localstore provides a per-key-TTL, optionally capacity-bounded
// in-process store, the concrete storage backing layers/memory's local
// cache layer. It is adapted from the doubly-linked-list-plus-map shape
// Krishna8167/tempuscache uses for its in-memory TTL+LRU cache; unlike
// hashicorp/golang-lru/v2's expirable.LRU, which shares one TTL across the
// whole instance, every key set here carries its own independent
// expiration, matching a hierarchical cache's requirement that each hash
// entry expire on its own schedule.
package localstore

import (
	"container/list"
	"sync"
	"time"
)

// Store is a concurrency-safe key/value store where each key carries its
// own TTL (ttl <= 0 means "never expires") and, optionally, a bounded
// capacity enforced by least-recently-used eviction.
type Store struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List
	maxEntries int
	onEvict    func(key string, value any)
}

type record struct {
	key       string
	value     any
	expiresAt time.Time // zero Time means no expiry
}

// Option configures a Store at construction.
type Option func(*Store)

// WithMaxEntries bounds the store to n entries, evicting the least recently
// used entry (by Get/Set recency) once the bound is exceeded. n <= 0 means
// unbounded.
func WithMaxEntries(n int) Option {
	return func(s *Store) { s.maxEntries = n }
}

// WithEvictCallback registers a callback invoked synchronously whenever an
// entry is removed, whether by TTL expiry, LRU eviction, or explicit
// Remove/Flush.
func WithEvictCallback(onEvict func(key string, value any)) Option {
	return func(s *Store) { s.onEvict = onEvict }
}

// New builds an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		items: make(map[string]*list.Element),
		order: list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value for key if present and not expired. A lazily
// discovered expired entry is removed and reported as a miss, matching the
// teacher pack's lazy-expiration-on-Get convention.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return nil, false
	}
	rec := elem.Value.(*record)
	if s.expired(rec) {
		s.removeElement(elem)
		return nil, false
	}
	s.order.MoveToFront(elem)
	return rec.value, true
}

// Set stores value under key with the given ttl (ttl <= 0 means no
// expiry), replacing any existing entry and refreshing its recency.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if elem, ok := s.items[key]; ok {
		rec := elem.Value.(*record)
		rec.value = value
		rec.expiresAt = expiresAt
		s.order.MoveToFront(elem)
		return
	}

	rec := &record{key: key, value: value, expiresAt: expiresAt}
	elem := s.order.PushFront(rec)
	s.items[key] = elem

	if s.maxEntries > 0 && len(s.items) > s.maxEntries {
		s.evictOldest()
	}
}

// Remove deletes key if present.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[key]; ok {
		s.removeElement(elem)
	}
}

// Len returns the number of entries currently stored, including any that
// are expired but not yet lazily reaped.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Flush removes every entry, invoking the evict callback for each.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.order.Len() > 0 {
		s.removeElement(s.order.Back())
	}
}

// CompactExpired walks every entry and removes the ones whose TTL has
// elapsed. It is the active half of expiry enforcement; Get provides the
// lazy half.
func (s *Store) CompactExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *list.Element
	for elem := s.order.Back(); elem != nil; elem = next {
		next = elem.Prev()
		rec := elem.Value.(*record)
		if s.expired(rec) {
			s.removeElement(elem)
		}
	}
}

// Close flushes the store. Store runs no background goroutine of its own;
// compaction is driven externally (see extensions/autocleanup), so Close has
// nothing else to release.
func (s *Store) Close() {
	s.Flush()
}

func (s *Store) expired(rec *record) bool {
	return !rec.expiresAt.IsZero() && !time.Now().Before(rec.expiresAt)
}

func (s *Store) evictOldest() {
	elem := s.order.Back()
	if elem != nil {
		s.removeElement(elem)
	}
}

func (s *Store) removeElement(elem *list.Element) {
	rec := elem.Value.(*record)
	s.order.Remove(elem)
	delete(s.items, rec.key)
	if s.onEvict != nil {
		s.onEvict(rec.key, rec.value)
	}
}
