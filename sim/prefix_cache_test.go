package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrefixKey_DependsOnExactTokenSequence(t *testing.T) {
	a := NewPrefixKey([]int{1, 2, 3})
	assert.Equal(t, a, NewPrefixKey([]int{1, 2, 3}))
	assert.NotEqual(t, a, NewPrefixKey([]int{1, 2}))
	assert.NotEqual(t, a, NewPrefixKey([]int{3, 2, 1}))
	// separators keep {12,3} and {1,23} apart
	assert.NotEqual(t, NewPrefixKey([]int{12, 3}), NewPrefixKey([]int{1, 23}))
	assert.Len(t, string(a), 64)
	assert.Len(t, a.Short(), 12)
}

func TestPrefixCache_GetMiss_IsNotAnError(t *testing.T) {
	pc := NewPrefixCache()
	_, ok := pc.Get(NewPrefixKey([]int{1}))
	assert.False(t, ok)
	assert.Equal(t, 0, pc.Len())
}

func TestPrefixCache_PutGetDelete(t *testing.T) {
	pc := NewPrefixCache()
	key := NewPrefixKey([]int{4, 5})
	table := NewPageTable()
	table.Add(2, 0)
	table.Add(2, 1)
	entry := PrefixEntry{Pages: []PageRef{{ID: 2, Generation: 1}}, Table: table}

	pc.Put(key, entry)
	got, ok := pc.Get(key)
	require.True(t, ok)
	assert.Equal(t, entry.Pages, got.Pages)
	assert.Equal(t, table.Entries(), got.Table.Entries())

	// overwrite
	pc.Put(key, PrefixEntry{Pages: []PageRef{{ID: 3, Generation: 2}}, Table: NewPageTable()})
	got, _ = pc.Get(key)
	assert.Equal(t, 3, got.Pages[0].ID)

	pc.Delete(key)
	_, ok = pc.Get(key)
	assert.False(t, ok)
}

func TestPrefixCache_EntriesAreIsolatedFromCallers(t *testing.T) {
	// GIVEN an entry put into the cache
	pc := NewPrefixCache()
	key := NewPrefixKey([]int{9})
	table := NewPageTable()
	table.Add(1, 0)
	pc.Put(key, PrefixEntry{Pages: []PageRef{{ID: 1}}, Table: table})

	// WHEN both the original and a fetched copy are mutated
	table.remap(1, 8)
	got, _ := pc.Get(key)
	got.Table.Add(1, 1)
	got.Pages[0].ID = 5

	// THEN the cached entry is unchanged
	again, _ := pc.Get(key)
	assert.Equal(t, []SlotAddr{{1, 0}}, again.Table.Entries())
	assert.Equal(t, 1, again.Pages[0].ID)
}

func TestPrefixCache_HitRate(t *testing.T) {
	pc := NewPrefixCache()
	assert.Equal(t, 0.0, pc.HitRate())
	pc.recordLookup(false)
	pc.recordLookup(true)
	pc.recordLookup(true)
	pc.recordLookup(true)
	assert.InDelta(t, 0.75, pc.HitRate(), 1e-12)
}
