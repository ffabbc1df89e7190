package sim

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertPartition checks that every page id is in exactly one of the free
// and in-use sets.
func assertPartition(t *testing.T, pp *PagePool) {
	t.Helper()
	all := append(pp.FreeIDs(), pp.InUseIDs()...)
	sort.Ints(all)
	want := make([]int, pp.TotalPages())
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, all, "free and in-use must partition the page ids")
}

func TestNewPagePool_AllPagesFree(t *testing.T) {
	pp := NewPagePool(PoolConfig{NumPages: 5, PageSize: 3}, tinyShape, nil)

	assert.Equal(t, 5, pp.TotalPages())
	assert.Equal(t, 3, pp.PageSize())
	assert.Equal(t, 5, pp.FreeCount())
	assert.Equal(t, 0, pp.InUseCount())
	assertPartition(t, pp)
}

func TestNewPagePool_InvalidConfig_Panics(t *testing.T) {
	assert.Panics(t, func() { NewPagePool(PoolConfig{NumPages: 0, PageSize: 4}, tinyShape, nil) })
	assert.Panics(t, func() { NewPagePool(PoolConfig{NumPages: 4, PageSize: 0}, tinyShape, nil) })
	assert.Panics(t, func() { NewPagePool(PoolConfig{NumPages: 4, PageSize: 4}, ModelShape{Layers: 1}, nil) })
}

func TestPagePool_AllocateUntilExhausted_ThenOutOfMemory(t *testing.T) {
	// GIVEN a pool of N pages
	const n = 4
	pp := NewPagePool(PoolConfig{NumPages: n, PageSize: 2}, tinyShape, nil)

	// WHEN N pages are allocated
	seen := map[int]bool{}
	for i := 0; i < n; i++ {
		page, err := pp.AllocatePage()
		require.NoError(t, err)
		assert.False(t, seen[page.ID()], "page %d handed out twice", page.ID())
		seen[page.ID()] = true
		assert.Equal(t, 0, page.Used())
		assertPartition(t, pp)
	}

	// THEN the next allocation fails without changing the pool
	_, err := pp.AllocatePage()
	require.ErrorIs(t, err, ErrOutOfMemory)
	var oe *OpError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, "allocate_page", oe.Op)
	assert.Equal(t, n, pp.InUseCount())
	assert.Equal(t, 0, pp.FreeCount())
}

func TestPagePool_FreeThenAllocate_Succeeds(t *testing.T) {
	pp := NewPagePool(PoolConfig{NumPages: 1, PageSize: 2}, tinyShape, nil)
	page, err := pp.AllocatePage()
	require.NoError(t, err)
	_, err = pp.AllocatePage()
	require.ErrorIs(t, err, ErrOutOfMemory)

	require.NoError(t, pp.FreePage(page.ID()))
	again, err := pp.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, page.ID(), again.ID())
}

func TestPagePool_FreePage_NotInUse_Fails(t *testing.T) {
	pp := NewPagePool(PoolConfig{NumPages: 2, PageSize: 2}, tinyShape, nil)

	t.Run("never allocated", func(t *testing.T) {
		assert.ErrorIs(t, pp.FreePage(0), ErrUnknownPage)
	})
	t.Run("out of range id", func(t *testing.T) {
		assert.ErrorIs(t, pp.FreePage(17), ErrUnknownPage)
	})
	t.Run("double free", func(t *testing.T) {
		page, err := pp.AllocatePage()
		require.NoError(t, err)
		require.NoError(t, pp.FreePage(page.ID()))
		err = pp.FreePage(page.ID())
		assert.ErrorIs(t, err, ErrUnknownPage)
		var oe *OpError
		require.True(t, errors.As(err, &oe))
		assert.Equal(t, page.ID(), oe.PageID)
	})
	assertPartition(t, pp)
}

func TestPagePool_FreePage_ZeroesPageAndNextAllocationIsClean(t *testing.T) {
	// GIVEN a page with written content and references
	pp := NewPagePool(PoolConfig{NumPages: 1, PageSize: 2}, tinyShape, nil)
	page, err := pp.AllocatePage()
	require.NoError(t, err)
	gen := page.Generation()
	slot, err := page.AllocateSlot()
	require.NoError(t, err)
	require.NoError(t, page.Write(0, 0, slot, []float32{1, 2, 3}, []float32{4, 5, 6}))
	page.setRefCount(2)

	// WHEN it is freed and handed out again
	require.NoError(t, pp.FreePage(page.ID()))
	again, err := pp.AllocatePage()
	require.NoError(t, err)

	// THEN the recycled page is empty, unreferenced and in a new generation
	assert.Equal(t, 0, again.Used())
	assert.Equal(t, 0, again.RefCount())
	assert.Greater(t, again.Generation(), gen)
	k, v, err := again.Read(0, 0, slot)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0}, k)
	assert.Equal(t, []float32{0, 0, 0}, v)
}

func TestPagePool_Page_OnlyReturnsInUsePages(t *testing.T) {
	pp := NewPagePool(PoolConfig{NumPages: 2, PageSize: 2}, tinyShape, nil)
	_, err := pp.Page(0)
	assert.ErrorIs(t, err, ErrUnknownPage)

	page, err := pp.AllocatePage()
	require.NoError(t, err)
	got, err := pp.Page(page.ID())
	require.NoError(t, err)
	assert.Same(t, page, got)
}

func TestPagePool_EmitsFaultAndFreeEvents(t *testing.T) {
	sink := &captureSink{}
	pp := NewPagePool(PoolConfig{NumPages: 2, PageSize: 2}, tinyShape, sink)

	page, err := pp.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, pp.FreePage(page.ID()))
	_ = pp.FreePage(page.ID()) // failed free emits nothing

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, PageFault{PageID: page.ID()}, events[0].Event)
	assert.Equal(t, PageFreed{PageID: page.ID()}, events[1].Event)
}

func TestPagePool_StatsAndSnapshot(t *testing.T) {
	pp := NewPagePool(PoolConfig{NumPages: 3, PageSize: 2}, tinyShape, nil)
	a, _ := pp.AllocatePage()
	b, _ := pp.AllocatePage()
	_, err := a.AllocateSlot()
	require.NoError(t, err)
	a.setRefCount(1)
	require.NoError(t, pp.FreePage(b.ID()))

	stats := pp.Stats()
	assert.Equal(t, int64(2), stats.PageFaults)
	assert.Equal(t, int64(1), stats.PageFrees)
	assert.Equal(t, 2, stats.PeakInUse)

	snap := pp.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, PageState{PageID: a.ID(), UsedSlots: 1, TotalSlots: 2, RefCount: 1, Generation: 1, Freed: false}, snap[a.ID()])
	assert.True(t, snap[b.ID()].Freed)
	assert.Equal(t, 0, snap[b.ID()].UsedSlots)
}
