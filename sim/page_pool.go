package sim

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// PageState is a point-in-time view of one page, for reporting.
type PageState struct {
	PageID     int    `json:"page_id" yaml:"page_id"`
	UsedSlots  int    `json:"used_slots" yaml:"used_slots"`
	TotalSlots int    `json:"total_slots" yaml:"total_slots"`
	RefCount   int    `json:"ref_count" yaml:"ref_count"`
	Generation uint64 `json:"generation" yaml:"generation"`
	Freed      bool   `json:"is_freed" yaml:"is_freed"`
}

// PagePool owns the fixed universe of pages. Every page id is, at all times,
// in exactly one of free or inUse. The pool is the only component that
// recycles page storage.
type PagePool struct {
	mu sync.Mutex

	config PoolConfig
	shape  ModelShape
	pages  []*Page // dense arena indexed by page id
	free   []int   // unordered reclaim list
	inUse  map[int]*Page
	sink   EventSink

	faults int64 // pages handed out over the pool's lifetime
	frees  int64 // pages reclaimed over the pool's lifetime
	peak   int   // high-water mark of len(inUse)
}

// NewPagePool builds a pool of cfg.NumPages zero-initialized pages.
// Panics on a non-positive page count, page size or model shape.
func NewPagePool(cfg PoolConfig, shape ModelShape, sink EventSink) *PagePool {
	if cfg.NumPages <= 0 {
		panic(fmt.Sprintf("PagePool: NumPages must be > 0, got %d", cfg.NumPages))
	}
	if cfg.PageSize <= 0 {
		panic(fmt.Sprintf("PagePool: PageSize must be > 0, got %d", cfg.PageSize))
	}
	if shape.SlotElems() <= 0 {
		panic(fmt.Sprintf("PagePool: model shape must be positive, got %+v", shape))
	}
	pp := &PagePool{
		config: cfg,
		shape:  shape,
		pages:  make([]*Page, cfg.NumPages),
		free:   make([]int, 0, cfg.NumPages),
		inUse:  make(map[int]*Page, cfg.NumPages),
		sink:   sinkOrNop(sink),
	}
	for i := 0; i < cfg.NumPages; i++ {
		pp.pages[i] = newPage(i, cfg.PageSize, shape)
		pp.free = append(pp.free, i)
	}
	return pp
}

// AllocatePage takes a clean page off the free list. The returned page has
// zero occupancy and zero references; the caller sets the count once it
// decides how many holders the page has.
func (pp *PagePool) AllocatePage() (*Page, error) {
	return pp.allocate("")
}

func (pp *PagePool) allocate(requestID string) (*Page, error) {
	pp.mu.Lock()
	n := len(pp.free)
	if n == 0 {
		inUse := len(pp.inUse)
		pp.mu.Unlock()
		logrus.Warnf("page pool exhausted (%d/%d pages in use)", inUse, pp.config.NumPages)
		return nil, &OpError{Op: "allocate_page", RequestID: requestID, PageID: NoPage, Err: ErrOutOfMemory}
	}
	id := pp.free[n-1]
	pp.free = pp.free[:n-1]
	page := pp.pages[id]
	pp.inUse[id] = page
	pp.faults++
	if len(pp.inUse) > pp.peak {
		pp.peak = len(pp.inUse)
	}
	pp.mu.Unlock()

	page.mu.Lock()
	page.generation++
	page.mu.Unlock()

	logrus.Debugf("page fault -> allocated page %d", id)
	pp.sink.Emit(requestID, PageFault{PageID: id})
	return page, nil
}

// FreePage returns an in-use page to the free list, resetting its occupancy,
// reference count and storage so a later reader never sees stale content.
func (pp *PagePool) FreePage(pageID int) error {
	return pp.freePage("", pageID)
}

func (pp *PagePool) freePage(requestID string, pageID int) error {
	pp.mu.Lock()
	page, ok := pp.inUse[pageID]
	if !ok {
		pp.mu.Unlock()
		return &OpError{Op: "free_page", RequestID: requestID, PageID: pageID, Err: ErrUnknownPage}
	}
	delete(pp.inUse, pageID)
	page.reset()
	pp.free = append(pp.free, pageID)
	pp.frees++
	pp.mu.Unlock()

	logrus.Debugf("freed page %d", pageID)
	pp.sink.Emit(requestID, PageFreed{PageID: pageID})
	return nil
}

// Page returns the in-use page with the given id.
func (pp *PagePool) Page(pageID int) (*Page, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	page, ok := pp.inUse[pageID]
	if !ok {
		return nil, opError("lookup_page", pageID, ErrUnknownPage)
	}
	return page, nil
}

func (pp *PagePool) TotalPages() int { return pp.config.NumPages }
func (pp *PagePool) PageSize() int { return pp.config.PageSize }
func (pp *PagePool) Shape() ModelShape {
	return pp.shape
}

func (pp *PagePool) FreeCount() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.free)
}

func (pp *PagePool) InUseCount() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.inUse)
}

// FreeIDs returns the free page ids in ascending order.
func (pp *PagePool) FreeIDs() []int {
	pp.mu.Lock()
	ids := append([]int(nil), pp.free...)
	pp.mu.Unlock()
	sort.Ints(ids)
	return ids
}

// InUseIDs returns the in-use page ids in ascending order.
func (pp *PagePool) InUseIDs() []int {
	pp.mu.Lock()
	ids := make([]int, 0, len(pp.inUse))
	for id := range pp.inUse {
		ids = append(ids, id)
	}
	pp.mu.Unlock()
	sort.Ints(ids)
	return ids
}

// PoolStats are lifetime counters of the pool.
type PoolStats struct {
	PageFaults int64
	PageFrees  int64
	PeakInUse  int
}

func (pp *PagePool) Stats() PoolStats {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return PoolStats{PageFaults: pp.faults, PageFrees: pp.frees, PeakInUse: pp.peak}
}

// Snapshot reports the state of every page, ordered by id.
func (pp *PagePool) Snapshot() []PageState {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	states := make([]PageState, len(pp.pages))
	for i, page := range pp.pages {
		_, live := pp.inUse[i]
		page.mu.Lock()
		states[i] = PageState{
			PageID:     i,
			UsedSlots:  page.used,
			TotalSlots: page.capacity,
			RefCount:   page.refCount,
			Generation: page.generation,
			Freed:      !live,
		}
		page.mu.Unlock()
	}
	return states
}
