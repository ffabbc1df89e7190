package sim

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Orchestrator drives each request through its lifecycle:
//
//	resolving_prefix -> building | reusing -> decoding -> completing -> released
//
// It is safe to run many requests concurrently; a single request must only be
// driven from one goroutine at a time.
type Orchestrator struct {
	pool    *PagePool
	cache   *PrefixCache
	compute KVComputer
	sink    EventSink
	config  CacheConfig
	nextID  atomic.Int64
}

// NewOrchestrator wires the paging core to a computation collaborator.
// The sink should be the same one the pool emits to; nil discards events.
func NewOrchestrator(pool *PagePool, cache *PrefixCache, compute KVComputer, cfg CacheConfig, sink EventSink) *Orchestrator {
	if pool == nil || cache == nil || compute == nil {
		panic("Orchestrator: pool, cache and compute must be non-nil")
	}
	return &Orchestrator{
		pool:    pool,
		cache:   cache,
		compute: compute,
		sink:    sinkOrNop(sink),
		config:  cfg,
	}
}

func (o *Orchestrator) Pool() *PagePool { return o.pool }
func (o *Orchestrator) Cache() *PrefixCache { return o.cache }
func (o *Orchestrator) Config() CacheConfig { return o.config }

// Start resolves the prefix for a new request, either adopting cached pages
// or computing and paging the prefix in. On success the request is ready to
// decode. On failure every page the request touched has been returned and
// no request is handed back.
func (o *Orchestrator) Start(prompt string, tokens []int) (*Request, error) {
	if len(tokens) == 0 {
		return nil, &OpError{Op: "start", PageID: NoPage, Err: ErrEmptyPrefix}
	}
	req := newRequest(fmt.Sprintf("request_%d", o.nextID.Add(1)), prompt, tokens)
	o.sink.Emit(req.ID, RequestStarted{Prompt: prompt})

	req.mu.Lock()
	defer req.mu.Unlock()
	req.PrefixKey = NewPrefixKey(tokens)
	req.prefixLen = len(tokens)

	if entry, ok := o.cache.Get(req.PrefixKey); ok {
		if err := req.transition(StateReusing); err != nil {
			return nil, err
		}
		err := o.adopt(req, entry)
		if err == nil {
			o.cache.recordLookup(true)
			req.CacheHit = true
			logrus.Debugf("request %s: prefix %s reused (%d pages)", req.ID, req.PrefixKey.Short(), len(req.pages))
			o.sink.Emit(req.ID, PrefixReused{PrefixKey: req.PrefixKey, NumPages: len(req.pages)})
			return req, req.transition(StateDecoding)
		}
		logrus.Warnf("request %s: cached prefix %s is stale, rebuilding: %v", req.ID, req.PrefixKey.Short(), err)
		o.cache.Delete(req.PrefixKey)
	}
	o.cache.recordLookup(false)

	if err := req.transition(StateBuilding); err != nil {
		return nil, err
	}
	if err := o.build(req); err != nil {
		return nil, errors.Join(withRequest(req.ID, err), o.abortLocked(req))
	}
	return req, req.transition(StateDecoding)
}

// adopt takes a reference on every cached page. Any page that was freed or
// recycled since the entry was stored makes the whole entry unusable.
func (o *Orchestrator) adopt(req *Request, entry PrefixEntry) error {
	pages := make([]*Page, 0, len(entry.Pages))
	for _, ref := range entry.Pages {
		page, err := o.pool.Page(ref.ID)
		if err == nil {
			err = page.retain(ref.Generation)
		}
		if err != nil {
			return errors.Join(err, o.releasePages(req.ID, pages))
		}
		pages = append(pages, page)
	}
	req.pages = pages
	req.table = entry.Table
	return nil
}

// build pages in the prefix: one slot per token, a new page whenever the
// current one fills up.
func (o *Orchestrator) build(req *Request) error {
	kv, err := o.compute.ComputePrefix(req.Tokens)
	if err != nil {
		return fmt.Errorf("computing prefix: %w", err)
	}
	if kv.NumTokens() != len(req.Tokens) {
		return fmt.Errorf("%w: collaborator returned %d rows for %d tokens", ErrShapeMismatch, kv.NumTokens(), len(req.Tokens))
	}

	req.table = NewPageTable()
	var current *Page
	for i := range req.Tokens {
		o.sink.Emit(req.ID, TokenStep{TokenIndex: i})
		if current == nil || !current.HasSpace() {
			page, err := o.pool.allocate(req.ID)
			if err != nil {
				return err
			}
			current = page
			req.pages = append(req.pages, page)
		}
		slot, err := current.AllocateSlot()
		if err != nil {
			return err
		}
		tok, err := kv.Token(i)
		if err != nil {
			return err
		}
		if err := current.WriteToken(slot, tok); err != nil {
			return err
		}
		o.emitWrites(req.ID, current.ID(), slot, i)
		req.table.Add(current.ID(), slot)
	}

	refs := make([]PageRef, len(req.pages))
	for i, page := range req.pages {
		page.setRefCount(1)
		refs[i] = page.Ref()
	}
	if o.config.HoldsReference {
		for i, page := range req.pages {
			if err := page.retain(refs[i].Generation); err != nil {
				return err
			}
		}
	}
	o.cache.Put(req.PrefixKey, PrefixEntry{Pages: refs, Table: req.table})
	logrus.Debugf("request %s: built prefix %s over %d pages", req.ID, req.PrefixKey.Short(), len(req.pages))
	return nil
}

// Decode appends one generated token to the sequence and returns where it
// was stored. A shared last page is copied before anything is written to it.
// An error leaves the request in the decoding state; the caller should
// Release it.
func (o *Orchestrator) Decode(req *Request, token int) (SlotAddr, error) {
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.state != StateDecoding {
		return SlotAddr{}, &OpError{Op: "decode", RequestID: req.ID, PageID: NoPage,
			Err: fmt.Errorf("%w: decode in state %s", ErrInvalidState, req.state)}
	}

	position := req.table.Len()
	if req.decoded == 0 {
		o.sink.Emit(req.ID, DecodeStarted{NumPages: len(req.pages)})
	}
	o.sink.Emit(req.ID, TokenStep{TokenIndex: position})

	kv, err := o.compute.ComputeToken(token, position)
	if err != nil {
		return SlotAddr{}, withRequest(req.ID, fmt.Errorf("computing token %d: %w", position, err))
	}
	page, slot, err := o.appendSlot(req)
	if err != nil {
		return SlotAddr{}, withRequest(req.ID, err)
	}
	if err := page.WriteToken(slot, kv); err != nil {
		return SlotAddr{}, withRequest(req.ID, err)
	}
	o.emitWrites(req.ID, page.ID(), slot, position)
	req.table.Add(page.ID(), slot)
	req.Tokens = append(req.Tokens, token)
	req.decoded++
	return SlotAddr{PageID: page.ID(), Slot: slot}, nil
}

// appendSlot claims the next slot at the tail of the sequence. A full last
// page gets a fresh page appended after it and is never copied; a shared
// last page with room is copied first.
func (o *Orchestrator) appendSlot(req *Request) (*Page, int, error) {
	for {
		last := req.pages[len(req.pages)-1]
		slot, status := last.reserveAppendSlot()
		switch status {
		case appendOK:
			return last, slot, nil
		case appendFull:
			page, err := o.pool.allocate(req.ID)
			if err != nil {
				return nil, 0, err
			}
			page.setRefCount(1)
			req.pages = append(req.pages, page)
			slot, err := page.AllocateSlot()
			return page, slot, err
		case appendShared:
			if err := o.copyOnWrite(req, last); err != nil {
				return nil, 0, err
			}
		}
	}
}

// copyOnWrite replaces the request's shared last page with a private full
// copy (all layers, heads and slots) and rewrites the request's page table.
// If the page stopped being shared while the copy target was being
// allocated, the target goes straight back to the pool.
func (o *Orchestrator) copyOnWrite(req *Request, shared *Page) error {
	fresh, err := o.pool.allocate(req.ID)
	if err != nil {
		return err
	}
	shared.mu.Lock()
	if shared.refCount <= 1 {
		shared.mu.Unlock()
		return o.pool.freePage(req.ID, fresh.ID())
	}
	fresh.copyFromLocked(shared)
	shared.refCount--
	shared.mu.Unlock()
	fresh.setRefCount(1)

	req.pages[len(req.pages)-1] = fresh
	req.table.remap(shared.ID(), fresh.ID())
	req.cows++
	logrus.Debugf("request %s: copy-on-write page %d -> %d", req.ID, shared.ID(), fresh.ID())
	o.sink.Emit(req.ID, CopyOnWrite{SourcePageID: shared.ID(), NewPageID: fresh.ID()})
	return nil
}

// Complete marks the end of decoding. Page state observed after Complete is
// final for the request.
func (o *Orchestrator) Complete(req *Request) error {
	req.mu.Lock()
	defer req.mu.Unlock()
	if err := req.transition(StateCompleting); err != nil {
		return err
	}
	if req.decoded > 0 {
		o.sink.Emit(req.ID, DecodeFinished{})
	}
	return nil
}

// Release drops the request's reference on every page it holds, returning
// pages nobody references any more to the pool. It may be called from any
// active state to abandon a failed request; releasing twice is an error.
func (o *Orchestrator) Release(req *Request) error {
	req.mu.Lock()
	defer req.mu.Unlock()
	return o.abortLocked(req)
}

func (o *Orchestrator) abortLocked(req *Request) error {
	if err := req.transition(StateReleased); err != nil {
		return err
	}
	err := o.releasePages(req.ID, req.pages)
	req.pages = nil
	req.table = nil
	o.sink.Emit(req.ID, RequestFinished{})
	return withRequest(req.ID, err)
}

// releasePages drops one reference per page, last page first.
func (o *Orchestrator) releasePages(reqID string, pages []*Page) error {
	var errs []error
	for i := len(pages) - 1; i >= 0; i-- {
		if pages[i].release() == 0 {
			if err := o.pool.freePage(reqID, pages[i].ID()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) emitWrites(reqID string, pageID, slot, tokenIndex int) {
	for l := 0; l < o.pool.shape.Layers; l++ {
		o.sink.Emit(reqID, SlotWritten{PageID: pageID, Slot: slot, TokenIndex: tokenIndex, Layer: l})
	}
}
