// Package uacache memoizes per user agent classification results.
package uacache

import (
	"sync"
	"time"

	xxhash "github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

const cleanupPeriod = time.Second

type item[V any] struct {
	userAgent string
	value     V
	created   time.Time
}

// Cache keeps values for ttl, at most size of them; when full the
// oldest entry is evicted. Keys are xxhash sums of the user agent, the
// user agent itself is kept to rule out collisions.
type Cache[V any] struct {
	lock        sync.RWMutex
	items       map[uint64]item[V]
	ttl         time.Duration
	size        int
	stopped     bool
	lastCleanup time.Time
	cleaning    bool

	flight singleflight.Group
	now    func() time.Time
}

func New[V any](ttl time.Duration, size int) *Cache[V] {
	return &Cache[V]{
		items:       make(map[uint64]item[V]),
		ttl:         ttl,
		size:        size,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (s *Cache[V]) Set(userAgent string, value V) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.stopped {
		return
	}

	key := xxhash.Sum64String(userAgent)
	if _, exists := s.items[key]; !exists && s.size > 0 && len(s.items) >= s.size {
		s.evictOldestLocked()
	}

	now := s.now()
	s.items[key] = item[V]{
		userAgent: userAgent,
		value:     value,
		created:   now,
	}

	if now.Sub(s.lastCleanup) > cleanupPeriod && !s.cleaning {
		s.cleaning = true
		s.lastCleanup = now
		go s.cleanupExpired()
	}
}

func (s *Cache[V]) Get(userAgent string) (V, bool) {
	var zero V
	key := xxhash.Sum64String(userAgent)

	s.lock.RLock()
	if s.stopped {
		s.lock.RUnlock()
		return zero, false
	}
	it, exists := s.items[key]
	s.lock.RUnlock()

	if !exists || it.userAgent != userAgent {
		return zero, false
	}

	if s.now().Sub(it.created) > s.ttl {
		s.lock.Lock()
		defer s.lock.Unlock()

		if it, exists := s.items[key]; exists && s.now().Sub(it.created) > s.ttl {
			delete(s.items, key)
		}
		return zero, false
	}

	return it.value, true
}

// GetOrCompute returns the cached value or stores the one built by fn.
// Concurrent misses of the same user agent share a single fn call.
func (s *Cache[V]) GetOrCompute(userAgent string, fn func(string) V) V {
	if v, ok := s.Get(userAgent); ok {
		return v
	}
	v, _, _ := s.flight.Do(userAgent, func() (interface{}, error) {
		// the previous flight may have stored it after our miss
		if v, ok := s.Get(userAgent); ok {
			return v, nil
		}
		v := fn(userAgent)
		s.Set(userAgent, v)
		return v, nil
	})
	res, _ := v.(V)
	return res
}

func (s *Cache[V]) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.items)
}

func (s *Cache[V]) evictOldestLocked() {
	var (
		oldestKey uint64
		oldest    time.Time
		found     bool
	)
	for k, it := range s.items {
		if !found || it.created.Before(oldest) {
			oldestKey, oldest, found = k, it.created, true
		}
	}
	if found {
		delete(s.items, oldestKey)
	}
}

func (s *Cache[V]) cleanupExpired() {
	defer func() {
		s.lock.Lock()
		s.cleaning = false
		s.lock.Unlock()
	}()

	expiredKeys := make([]uint64, 0)
	s.lock.RLock()
	now := s.now()
	for key, it := range s.items {
		if now.Sub(it.created) > s.ttl {
			expiredKeys = append(expiredKeys, key)
		}
	}
	s.lock.RUnlock()

	if len(expiredKeys) > 0 {
		s.lock.Lock()
		defer s.lock.Unlock()

		now := s.now()
		for _, key := range expiredKeys {
			if it, exists := s.items[key]; exists && now.Sub(it.created) > s.ttl {
				delete(s.items, key)
			}
		}
	}
}

func (s *Cache[V]) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.stopped = true
	s.items = make(map[uint64]item[V])
}
