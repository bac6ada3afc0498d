package fetch

import (
	"container/list"
	"fmt"
	"sort"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// byteRange defines a half-open interval [start, end).
type byteRange [2]int64

func (r byteRange) contains(r2 byteRange) bool {
	return r[0] <= r2[0] && r[1] >= r2[1]
}

func (r byteRange) intersects(r2 byteRange) bool {
	return r[0] < r2[1] && r[1] > r2[0]
}

func (r byteRange) isAdjacent(r2 byteRange) bool {
	return r[1] == r2[0] || r2[1] == r[0]
}

func (r byteRange) isValidFor(size int64) bool {
	return r[0] >= 0 && r[1] <= size && r[0] <= r[1]
}

type rangeCacheEntry struct {
	value    []byte
	lastRead time.Time
}

// memoryRangeCache memoizes already-fetched byte ranges in memory for a
// single opened store, merging overlapping or adjacent ranges to minimize
// fragmentation and evicting by LRU once maxMemorySize is exceeded.
//
// This is not the on-disk cache of spec §4.4 (see cache.go for that); it is
// a fast first-line cache in front of it, so that re-reading the same
// metadata key twice within one session never even reaches the disk cache.
//
// Adapted from the teacher's range-cache/range-cache.go: coalescing,
// container/list LRU bookkeeping and the overlap/merge algorithm in
// setRange are kept close to the original. The teacher fuses cache lookup
// and remote fetch into one GetRange call with sync.Cond-based request
// coalescing for concurrent misses; LINDI's Fetcher (fetcher.go) already
// owns that coordination via singleflight, so this type is a plain
// cache — Get reports a hit/miss, Set stores — and the fetch-coalescing
// machinery is not duplicated here.
type memoryRangeCache struct {
	mu   sync.RWMutex
	size int64
	name string

	maxMemorySize int64
	occupiedSpace int64

	cache   map[byteRange]rangeCacheEntry
	lruList *list.List
	lruMap  map[byteRange]*list.Element
}

func newMemoryRangeCache(size int64, name string, maxMemorySize int64) *memoryRangeCache {
	if maxMemorySize < 0 {
		maxMemorySize = 0
	}
	return &memoryRangeCache{
		size:          size,
		name:          name,
		maxMemorySize: maxMemorySize,
		cache:         make(map[byteRange]rangeCacheEntry),
		lruList:       list.New(),
		lruMap:        make(map[byteRange]*list.Element),
	}
}

func (rc *memoryRangeCache) addEntry(r byteRange, value []byte) error {
	if len(value) == 0 {
		return nil
	}
	if int64(len(value)) > rc.maxMemorySize && rc.maxMemorySize > 0 {
		return fmt.Errorf("lindi: value length %d exceeds max memory cache size %d", len(value), rc.maxMemorySize)
	}
	rc.cache[r] = rangeCacheEntry{value: value, lastRead: time.Now()}
	rc.occupiedSpace += int64(len(value))
	elem := rc.lruList.PushFront(r)
	rc.lruMap[r] = elem
	return nil
}

func (rc *memoryRangeCache) removeLRU(r byteRange) {
	if elem, ok := rc.lruMap[r]; ok {
		rc.lruList.Remove(elem)
		delete(rc.lruMap, r)
	}
}

func (rc *memoryRangeCache) updateLRU(r byteRange) {
	if elem, ok := rc.lruMap[r]; ok {
		rc.lruList.MoveToFront(elem)
		entry := rc.cache[r]
		entry.lastRead = time.Now()
		rc.cache[r] = entry
	}
}

func (rc *memoryRangeCache) evictLRU() {
	for rc.maxMemorySize > 0 && rc.occupiedSpace > rc.maxMemorySize && rc.lruList.Len() > 0 {
		elem := rc.lruList.Back()
		r := elem.Value.(byteRange)
		if entry, ok := rc.cache[r]; ok {
			delete(rc.cache, r)
			rc.occupiedSpace -= int64(len(entry.value))
			rc.lruList.Remove(elem)
			delete(rc.lruMap, r)
			klog.V(5).Infof("lindi: evicted LRU memory-cache entry for %s: %v", rc.name, r)
		} else {
			rc.lruList.Remove(elem)
			delete(rc.lruMap, r)
		}
	}
}

// Set records value as the bytes for [start, start+len(value)), merging it
// with any overlapping or adjacent cached ranges.
func (rc *memoryRangeCache) Set(start int64, value []byte) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	end := start + int64(len(value))
	newRange := byteRange{start, end}
	if !newRange.isValidFor(rc.size) {
		return fmt.Errorf("lindi: invalid range [%d,%d) for size %d", start, end, rc.size)
	}

	consolidated := make(map[int64]byte, len(value))
	for i, b := range value {
		consolidated[start+int64(i)] = b
	}

	var toRemove []byteRange
	for r, entry := range rc.cache {
		if r.intersects(newRange) || r.isAdjacent(newRange) {
			toRemove = append(toRemove, r)
			for i := r[0]; i < r[1]; i++ {
				if _, exists := consolidated[i]; !exists {
					consolidated[i] = entry.value[i-r[0]]
				}
			}
		}
	}
	for _, r := range toRemove {
		if entry, ok := rc.cache[r]; ok {
			delete(rc.cache, r)
			rc.occupiedSpace -= int64(len(entry.value))
			rc.removeLRU(r)
		}
	}

	if len(consolidated) == 0 {
		return nil
	}

	offsets := make([]int64, 0, len(consolidated))
	for off := range consolidated {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	segStart := offsets[0]
	segEnd := offsets[0] + 1
	segValue := []byte{consolidated[offsets[0]]}
	for i := 1; i < len(offsets); i++ {
		off := offsets[i]
		if off == segEnd {
			segEnd++
			segValue = append(segValue, consolidated[off])
		} else {
			if err := rc.addEntry(byteRange{segStart, segEnd}, segValue); err != nil {
				return err
			}
			segStart, segEnd = off, off+1
			segValue = []byte{consolidated[off]}
		}
	}
	if err := rc.addEntry(byteRange{segStart, segEnd}, segValue); err != nil {
		return err
	}

	rc.evictLRU()
	return nil
}

// Get returns the bytes for [start, start+length) if a cached range covers
// it exactly or as a superset, or ok=false on a miss.
func (rc *memoryRangeCache) Get(start, length int64) (value []byte, ok bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	end := start + length
	requested := byteRange{start, end}

	if v, found := rc.cache[requested]; found {
		rc.updateLRU(requested)
		return clone(v.value), true
	}
	for r, entry := range rc.cache {
		if r.contains(requested) {
			rc.updateLRU(r)
			offset := requested[0] - r[0]
			return clone(entry.value[offset : offset+length]), true
		}
	}
	return nil, false
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
