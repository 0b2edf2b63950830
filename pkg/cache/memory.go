package cache

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "memory_cache_lookups_total",
	Help: "In-process cache lookups by cache name and result",
}, []string{"cache", "result"})

// MemoryCache is an in-process cache with per-entry TTL and a size cap.
// When full, the oldest entry is evicted.
type MemoryCache[K comparable, V any] struct {
	name    string
	mu      sync.Mutex
	data    map[K]*cacheEntry[V]
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
	createdAt time.Time
}

// NewMemoryCache creates a new in-memory cache. maxSize <= 0 means unbounded.
func NewMemoryCache[K comparable, V any](name string, defaultTTL time.Duration, maxSize int) *MemoryCache[K, V] {
	return &MemoryCache[K, V]{
		name:    name,
		data:    make(map[K]*cacheEntry[V]),
		ttl:     defaultTTL,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Set stores a value with the default TTL
func (mc *MemoryCache[K, V]) Set(key K, value V) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.data[key]; !exists && mc.maxSize > 0 && len(mc.data) >= mc.maxSize {
		mc.evictOldest()
	}

	now := mc.now()
	mc.data[key] = &cacheEntry[V]{value: value, expiresAt: now.Add(mc.ttl), createdAt: now}
}

// Get returns a live entry
func (mc *MemoryCache[K, V]) Get(key K) (V, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	entry, exists := mc.data[key]
	if exists && mc.now().After(entry.expiresAt) {
		delete(mc.data, key)
		exists = false
	}
	if !exists {
		lookups.WithLabelValues(mc.name, "miss").Inc()
		var zero V
		return zero, false
	}

	lookups.WithLabelValues(mc.name, "hit").Inc()
	return entry.value, true
}

// Delete removes a value from the cache
func (mc *MemoryCache[K, V]) Delete(key K) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.data, key)
}

// Size returns the current number of entries, expired ones included
func (mc *MemoryCache[K, V]) Size() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache[K, V]) evictOldest() {
	var (
		oldestKey  K
		oldestTime time.Time
		found      bool
	)
	for key, entry := range mc.data {
		if !found || entry.createdAt.Before(oldestTime) {
			oldestKey, oldestTime, found = key, entry.createdAt, true
		}
	}
	if found {
		delete(mc.data, oldestKey)
	}
}
