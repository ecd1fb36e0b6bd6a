package cache

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxRelationEntries bounds the number of classes whose ancestry is memoized
const DefaultMaxRelationEntries = 1000

// cachedAncestry is one memoized inheritance walk
type cachedAncestry struct {
	Ancestors   []string
	CachedAt    int64 // Unix nano for atomic compare
	AccessCount int64 // Atomic counter
	Generation  uint64
}

// relationCache memoizes ParentClassesAndTraits results. Entries are keyed
// by lowercased class name and stamped with the store generation they were
// computed against; any change to the registered stores bumps the
// generation and makes older entries misses.
type relationCache struct {
	entries    sync.Map // map[string]*cachedAncestry
	maxEntries int

	hits      int64
	misses    int64
	evictions int64
	count     int64

	createdAt time.Time
}

func newRelationCache(maxEntries int) *relationCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxRelationEntries
	}
	return &relationCache{maxEntries: maxEntries, createdAt: time.Now()}
}

func relationKey(className string, generation uint64) string {
	var b strings.Builder
	b.Grow(len(className) + 21)
	b.WriteString(strconv.FormatUint(generation, 10))
	b.WriteByte(':')
	b.WriteString(strings.ToLower(strings.TrimPrefix(className, "\\")))
	return b.String()
}

// Get returns the memoized ancestry of className
func (rc *relationCache) Get(className string, generation uint64) ([]string, bool) {
	if val, ok := rc.entries.Load(relationKey(className, generation)); ok {
		cached := val.(*cachedAncestry)
		atomic.AddInt64(&cached.AccessCount, 1)
		atomic.AddInt64(&rc.hits, 1)
		return cached.Ancestors, true
	}
	atomic.AddInt64(&rc.misses, 1)
	return nil, false
}

// Put stores the ancestry of className with size limiting
func (rc *relationCache) Put(className string, generation uint64, ancestors []string) {
	cached := &cachedAncestry{
		Ancestors:   ancestors,
		CachedAt:    time.Now().UnixNano(),
		AccessCount: 1,
		Generation:  generation,
	}
	if _, loaded := rc.entries.LoadOrStore(relationKey(className, generation), cached); !loaded {
		if atomic.AddInt64(&rc.count, 1) > int64(rc.maxEntries) {
			rc.evictOldest(generation)
		}
	}
}

// evictOldest drops entries of older generations, or the oldest entry
// when every entry is current
func (rc *relationCache) evictOldest(generation uint64) {
	var oldestKey any
	oldestTime := time.Now().UnixNano()
	stale := 0

	rc.entries.Range(func(key, value any) bool {
		cached := value.(*cachedAncestry)
		if cached.Generation != generation {
			rc.entries.Delete(key)
			stale++
			return true
		}
		if cachedAt := atomic.LoadInt64(&cached.CachedAt); cachedAt < oldestTime {
			oldestTime = cachedAt
			oldestKey = key
		}
		return true
	})

	if stale > 0 {
		atomic.AddInt64(&rc.count, -int64(stale))
		atomic.AddInt64(&rc.evictions, int64(stale))
		return
	}
	if oldestKey != nil {
		rc.entries.Delete(oldestKey)
		atomic.AddInt64(&rc.count, -1)
		atomic.AddInt64(&rc.evictions, 1)
	}
}

// Clear removes all entries and resets statistics
func (rc *relationCache) Clear() {
	rc.entries.Range(func(key, _ any) bool {
		rc.entries.Delete(key)
		return true
	})
	atomic.StoreInt64(&rc.hits, 0)
	atomic.StoreInt64(&rc.misses, 0)
	atomic.StoreInt64(&rc.evictions, 0)
	atomic.StoreInt64(&rc.count, 0)
}

// LookupStats reports how well inheritance walks are memoized
type LookupStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	HitRate   float64
	Uptime    time.Duration
}

// Stats returns cache statistics
func (rc *relationCache) Stats() LookupStats {
	hits := atomic.LoadInt64(&rc.hits)
	misses := atomic.LoadInt64(&rc.misses)
	hitRate := float64(0)
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return LookupStats{
		Hits:      hits,
		Misses:    misses,
		Evictions: atomic.LoadInt64(&rc.evictions),
		Entries:   int(atomic.LoadInt64(&rc.count)),
		HitRate:   hitRate,
		Uptime:    time.Since(rc.createdAt),
	}
}
