// Package cache implements the bounded response cache for the gateway:
// a byte-budget LRU with per-entry absolute expiry precomputed at insertion.
package cache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TTLRule maps a key prefix to a time-to-live. Rules are evaluated in order;
// the first matching prefix wins.
type TTLRule struct {
	Prefix string
	TTL    time.Duration
}

type entry struct {
	key       string
	value     []byte
	size      int
	createdAt time.Time
	expiresAt time.Time
	hits      uint64
}

// Store is a size-bounded key/value cache with LRU eviction. A Store with a
// zero byte budget accepts no entries and serves no hits; that is the
// documented no-cache mode, not an error state.
type Store struct {
	mu         sync.Mutex
	maxBytes   int
	usedBytes  int
	entries    map[string]*list.Element
	lru        *list.List // front = most recently used
	defaultTTL time.Duration
	rules      []TTLRule
	logger     *zap.Logger
	now        func() time.Time
}

// New constructs a Store with the given byte budget and TTL policy.
func New(maxBytes int, defaultTTL time.Duration, rules []TTLRule, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes < 0 {
		maxBytes = 0
	}
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}

	return &Store{
		maxBytes:   maxBytes,
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		defaultTTL: defaultTTL,
		rules:      rules,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the store clock for deterministic tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Get returns a copy of the stored value when present and unexpired, updating
// LRU recency and the entry hit counter. An expired entry is evicted as a
// side effect and reported as a miss.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return nil, false
	}

	ent := elem.Value.(*entry)
	if !s.now().Before(ent.expiresAt) {
		s.removeElement(elem)
		return nil, false
	}

	ent.hits++
	s.lru.MoveToFront(elem)

	// Values are immutable once stored; hand out a copy so callers may
	// mutate freely.
	out := make([]byte, len(ent.value))
	copy(out, ent.value)
	return out, true
}

// Has reports whether an unexpired entry exists without counting as cache
// activity: recency and hit counters are untouched.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		return false
	}
	return s.now().Before(elem.Value.(*entry).expiresAt)
}

// Set stores value under key with a TTL derived from the key prefix rules.
func (s *Store) Set(key string, value []byte) {
	s.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key. A positive ttl overrides the derived
// one. An entry larger than the whole budget is rejected outright: admitting
// it would evict everything else and still not fit alongside anything. A
// zero budget admits nothing, not even empty values.
func (s *Store) SetWithTTL(key string, value []byte, ttl time.Duration) {
	size := len(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxBytes == 0 || size > s.maxBytes {
		s.logger.Debug("cache rejected oversized entry",
			zap.String("key", key),
			zap.Int("size", size),
			zap.Int("budget", s.maxBytes),
		)
		return
	}

	if elem, ok := s.entries[key]; ok {
		s.removeElement(elem)
	}

	for s.usedBytes+size > s.maxBytes {
		back := s.lru.Back()
		if back == nil {
			break
		}
		s.removeElement(back)
	}

	if ttl <= 0 {
		ttl = s.ttlFor(key)
	}

	stored := make([]byte, size)
	copy(stored, value)

	now := s.now()
	ent := &entry{
		key:       key,
		value:     stored,
		size:      size,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	s.entries[key] = s.lru.PushFront(ent)
	s.usedBytes += size
}

// Delete removes the entry for key, if any.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		s.removeElement(elem)
	}
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*list.Element)
	s.lru.Init()
	s.usedBytes = 0
}

// Len returns the number of resident entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// UsedBytes returns the total resident value bytes.
func (s *Store) UsedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedBytes
}

// TTLFor exposes the TTL the store would assign to key, for callers that
// report caching behaviour to end users.
func (s *Store) TTLFor(key string) time.Duration {
	return s.ttlFor(key)
}

func (s *Store) ttlFor(key string) time.Duration {
	for _, rule := range s.rules {
		if rule.Prefix != "" && len(key) >= len(rule.Prefix) && key[:len(rule.Prefix)] == rule.Prefix {
			if rule.TTL > 0 {
				return rule.TTL
			}
		}
	}
	return s.defaultTTL
}

// removeElement must be called with the mutex held.
func (s *Store) removeElement(elem *list.Element) {
	ent := elem.Value.(*entry)
	s.lru.Remove(elem)
	delete(s.entries, ent.key)
	s.usedBytes -= ent.size
}
