package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
)

// PrefixKey identifies a prefix by its ordered token content.
type PrefixKey string

// NewPrefixKey returns a SHA256 hash of the "|"-joined token sequence.
// Identical sequences always yield identical keys; collisions are not handled.
func NewPrefixKey(tokens []int) PrefixKey {
	var sb strings.Builder
	for i, token := range tokens {
		if i > 0 {
			sb.WriteString("|")
		}
		sb.WriteString(strconv.Itoa(token))
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return PrefixKey(hex.EncodeToString(sum[:]))
}

// Short returns an abbreviated form for logs.
func (k PrefixKey) Short() string {
	if len(k) > 12 {
		return string(k[:12])
	}
	return string(k)
}

// PageRef is a page id pinned to the generation it had when the reference
// was taken, so a recycled page can be told apart from the original.
type PageRef struct {
	ID         int    `json:"id"`
	Generation uint64 `json:"generation"`
}

// PrefixEntry is what the cache remembers about one computed prefix.
type PrefixEntry struct {
	Pages []PageRef
	Table *PageTable
}

func (e PrefixEntry) clone() PrefixEntry {
	out := PrefixEntry{Pages: append([]PageRef(nil), e.Pages...)}
	if e.Table != nil {
		out.Table = e.Table.Clone()
	}
	return out
}

// PrefixCache maps prefix identity to the pages and page table computed for
// it. The cache never touches reference counts itself; callers do so around
// hits and misses. Entries are never evicted.
type PrefixCache struct {
	mu      sync.RWMutex
	entries map[PrefixKey]PrefixEntry
	hits    int64
	misses  int64
}

func NewPrefixCache() *PrefixCache {
	return &PrefixCache{entries: make(map[PrefixKey]PrefixEntry)}
}

// Get looks up a prefix. Absence is not an error; it means "must compute".
// The returned entry is a copy the caller may modify.
func (pc *PrefixCache) Get(key PrefixKey) (PrefixEntry, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	e, ok := pc.entries[key]
	if !ok {
		return PrefixEntry{}, false
	}
	return e.clone(), true
}

// Put inserts or overwrites an entry. The cache stores its own copy, so
// later copy-on-write in a consumer never changes what the cache refers to.
func (pc *PrefixCache) Put(key PrefixKey, entry PrefixEntry) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.entries[key] = entry.clone()
}

// Delete drops an entry, typically one found to reference recycled pages.
func (pc *PrefixCache) Delete(key PrefixKey) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.entries, key)
}

func (pc *PrefixCache) Len() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.entries)
}

func (pc *PrefixCache) recordLookup(hit bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if hit {
		pc.hits++
	} else {
		pc.misses++
	}
}

// HitRate is the fraction of resolved prefixes served from the cache.
func (pc *PrefixCache) HitRate() float64 {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	total := pc.hits + pc.misses
	if total == 0 {
		return 0
	}
	return float64(pc.hits) / float64(total)
}
