package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// RecentIndex answers "how often has this track been played?" from memory.
// It is the read model of the plays table: seeded once from History, updated
// as the CLI plays tracks, and bounded to a window of distinct tracks so
// years of history stay cheap. A Bloom filter fronts the miss path, since
// most random picks have never been played.
type RecentIndex struct {
	counts    map[string]int
	bloom     *bloom.BloomFilter
	recency   *lru.Cache[string, struct{}]
	mutex     sync.RWMutex
	window    int
	falseRate float64
}

// NewRecentIndex creates an index keeping at most window distinct tracks,
// with the given Bloom filter false positive rate.
func NewRecentIndex(window int, falseRate float64) *RecentIndex {
	if window < 1 {
		window = 1
	}

	ri := &RecentIndex{
		counts:    make(map[string]int),
		bloom:     bloom.NewWithEstimates(uint(window), falseRate),
		window:    window,
		falseRate: falseRate,
	}
	// The LRU owns eviction: when it drops the least recently played track,
	// the count goes with it.
	ri.recency, _ = lru.NewWithEvict[string, struct{}](window, func(key string, _ struct{}) {
		delete(ri.counts, key)
	})
	return ri
}

// Seen returns how many plays of trackID the index remembers, zero for
// tracks never played or already evicted from the window.
func (ri *RecentIndex) Seen(trackID string) int {
	ri.mutex.RLock()
	defer ri.mutex.RUnlock()

	if !ri.bloom.TestString(trackID) {
		return 0
	}
	return ri.counts[trackID]
}

// Record notes one play of trackID.
func (ri *RecentIndex) Record(trackID string) {
	if trackID == "" {
		return
	}

	ri.mutex.Lock()
	defer ri.mutex.Unlock()
	ri.record(trackID)
}

// Load seeds the index from a play log, oldest first; repeated IDs
// accumulate counts. Any previous contents are dropped.
func (ri *RecentIndex) Load(trackIDs []string) {
	ri.mutex.Lock()
	defer ri.mutex.Unlock()

	ri.counts = make(map[string]int)
	ri.recency.Purge()
	ri.bloom = bloom.NewWithEstimates(uint(ri.window), ri.falseRate)

	for _, trackID := range trackIDs {
		if trackID != "" {
			ri.record(trackID)
		}
	}
}

// Size returns the number of distinct tracks currently indexed.
func (ri *RecentIndex) Size() int {
	ri.mutex.RLock()
	defer ri.mutex.RUnlock()
	return len(ri.counts)
}

func (ri *RecentIndex) record(trackID string) {
	ri.counts[trackID]++
	ri.bloom.AddString(trackID)
	ri.recency.Add(trackID, struct{}{})
}
