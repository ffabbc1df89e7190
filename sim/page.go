package sim

import (
	"fmt"
	"sync"
)

// TokenKV holds one token's key/value vectors: Keys[layer][head] is a
// HeadDim-long vector.
type TokenKV struct {
	Keys   [][][]float32
	Values [][][]float32
}

// checkShape verifies kv matches the page storage shape exactly.
func (kv TokenKV) checkShape(shape ModelShape) error {
	if len(kv.Keys) != shape.Layers || len(kv.Values) != shape.Layers {
		return fmt.Errorf("%w: got %d/%d layers, want %d", ErrShapeMismatch, len(kv.Keys), len(kv.Values), shape.Layers)
	}
	for l := 0; l < shape.Layers; l++ {
		if len(kv.Keys[l]) != shape.Heads || len(kv.Values[l]) != shape.Heads {
			return fmt.Errorf("%w: layer %d has %d/%d heads, want %d", ErrShapeMismatch, l, len(kv.Keys[l]), len(kv.Values[l]), shape.Heads)
		}
		for h := 0; h < shape.Heads; h++ {
			if len(kv.Keys[l][h]) != shape.HeadDim || len(kv.Values[l][h]) != shape.HeadDim {
				return fmt.Errorf("%w: layer %d head %d dim, want %d", ErrShapeMismatch, l, h, shape.HeadDim)
			}
		}
	}
	return nil
}

// Page is a fixed-capacity block of key/value storage for a contiguous run
// of token slots. All counters and storage are guarded by the page's own
// mutex so that concurrent requests sharing a page cannot race on them.
//
// Storage is flat: element (layer, head, slot, d) lives at
// ((layer*Heads+head)*capacity+slot)*HeadDim + d.
type Page struct {
	mu sync.Mutex

	id       int
	capacity int
	shape    ModelShape

	used       int    // slots handed out, always allocated in increasing order from 0
	refCount   int    // sequences (and optionally the prefix cache) sharing this page
	generation uint64 // bumped on every allocation from the pool

	keys   []float32
	values []float32
}

func newPage(id, capacity int, shape ModelShape) *Page {
	n := shape.SlotElems() * capacity
	return &Page{
		id:       id,
		capacity: capacity,
		shape:    shape,
		keys:     make([]float32, n),
		values:   make([]float32, n),
	}
}

// ID returns the page identifier. Identifiers are reused after a page is freed.
func (p *Page) ID() int { return p.id }

// Capacity returns the number of slots in the page.
func (p *Page) Capacity() int { return p.capacity }

func (p *Page) Used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

func (p *Page) RefCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refCount
}

func (p *Page) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Ref returns a generation-stamped reference to the page.
func (p *Page) Ref() PageRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PageRef{ID: p.id, Generation: p.generation}
}

// HasSpace reports whether at least one slot is still free.
func (p *Page) HasSpace() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used < p.capacity
}

// AllocateSlot hands out the next free slot index. The caller must write the
// slot for every layer and head before exposing it through a page table.
func (p *Page) AllocateSlot() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocateSlotLocked()
}

func (p *Page) allocateSlotLocked() (int, error) {
	if p.used >= p.capacity {
		return 0, opError("allocate_slot", p.id, ErrPageFull)
	}
	slot := p.used
	p.used++
	return slot, nil
}

func (p *Page) offset(layer, head, slot int) (int, error) {
	if layer < 0 || layer >= p.shape.Layers || head < 0 || head >= p.shape.Heads || slot < 0 || slot >= p.capacity {
		return 0, opError("page_access", p.id,
			fmt.Errorf("%w: layer=%d head=%d slot=%d", ErrOutOfRange, layer, head, slot))
	}
	return ((layer*p.shape.Heads+head)*p.capacity + slot) * p.shape.HeadDim, nil
}

// Write overwrites the (layer, head, slot) cell.
func (p *Page) Write(layer, head, slot int, key, value []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(layer, head, slot, key, value)
}

func (p *Page) writeLocked(layer, head, slot int, key, value []float32) error {
	off, err := p.offset(layer, head, slot)
	if err != nil {
		return err
	}
	if len(key) != p.shape.HeadDim || len(value) != p.shape.HeadDim {
		return opError("write", p.id, fmt.Errorf("%w: got %d/%d elements, want %d", ErrShapeMismatch, len(key), len(value), p.shape.HeadDim))
	}
	copy(p.keys[off:off+p.shape.HeadDim], key)
	copy(p.values[off:off+p.shape.HeadDim], value)
	return nil
}

// WriteToken writes every layer and head of one token into slot.
func (p *Page) WriteToken(slot int, kv TokenKV) error {
	if err := kv.checkShape(p.shape); err != nil {
		return opError("write_token", p.id, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for l := 0; l < p.shape.Layers; l++ {
		for h := 0; h < p.shape.Heads; h++ {
			if err := p.writeLocked(l, h, slot, kv.Keys[l][h], kv.Values[l][h]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Read returns copies of the key and value vectors stored at (layer, head, slot).
func (p *Page) Read(layer, head, slot int) (key, value []float32, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	off, err := p.offset(layer, head, slot)
	if err != nil {
		return nil, nil, err
	}
	d := p.shape.HeadDim
	key = append([]float32(nil), p.keys[off:off+d]...)
	value = append([]float32(nil), p.values[off:off+d]...)
	return key, value, nil
}

// appendStatus is the outcome of trying to claim a slot for an append.
type appendStatus int

const (
	appendOK     appendStatus = iota
	appendShared              // ref count > 1, must copy before writing
	appendFull                // no free slot, needs a fresh page
)

// reserveAppendSlot claims a slot only if the page is exclusively held and
// has room. Checking the ref count and claiming the slot happen under one
// lock so a concurrent reuse of the page cannot slip in between.
func (p *Page) reserveAppendSlot() (int, appendStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used >= p.capacity {
		return 0, appendFull
	}
	if p.refCount > 1 {
		return 0, appendShared
	}
	slot, _ := p.allocateSlotLocked()
	return slot, appendOK
}

// retain adds a reference if the page is still live and has not been
// recycled since ref was taken.
func (p *Page) retain(gen uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refCount < 1 || p.generation != gen {
		return opError("retain", p.id, ErrStalePage)
	}
	p.refCount++
	return nil
}

// release drops one reference and returns the remaining count.
func (p *Page) release() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refCount > 0 {
		p.refCount--
	}
	return p.refCount
}

func (p *Page) setRefCount(n int) {
	p.mu.Lock()
	p.refCount = n
	p.mu.Unlock()
}

// copyFromLocked duplicates the entire storage and occupancy of src. The
// caller holds src.mu and exclusively owns p.
func (p *Page) copyFromLocked(src *Page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copy(p.keys, src.keys)
	copy(p.values, src.values)
	p.used = src.used
}

// reset returns the page to its clean, zero-occupancy state.
func (p *Page) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used = 0
	p.refCount = 0
	clear(p.keys)
	clear(p.values)
}
