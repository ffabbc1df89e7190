// Defines the Request struct that models one logical sequence's walk through
// the paging core: prefix resolution, decode, and release of its pages.

package sim

import (
	"fmt"
	"sync"
)

// RequestState represents the lifecycle state of a request.
type RequestState string

const (
	StateResolvingPrefix RequestState = "resolving_prefix"
	StateBuilding        RequestState = "building"
	StateReusing         RequestState = "reusing"
	StateDecoding        RequestState = "decoding"
	StateCompleting      RequestState = "completing"
	StateReleased        RequestState = "released"
)

// validTransitions lists the allowed successors of each state. Any state
// may move to released so a failed request can always give its pages back.
var validTransitions = map[RequestState][]RequestState{
	StateResolvingPrefix: {StateBuilding, StateReusing, StateReleased},
	StateBuilding:        {StateDecoding, StateReleased},
	StateReusing:         {StateDecoding, StateBuilding, StateReleased},
	StateDecoding:        {StateCompleting, StateReleased},
	StateCompleting:      {StateReleased},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to RequestState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Request is one sequence's view of the paged cache: the pages it currently
// references and its own page table. Both are owned by the request; pages
// are shared with other requests through reference counts.
type Request struct {
	mu sync.Mutex

	ID        string
	Prompt    string
	Tokens    []int // prefix tokens followed by decoded tokens
	PrefixKey PrefixKey
	CacheHit  bool

	state     RequestState
	pages     []*Page
	table     *PageTable
	prefixLen int
	decoded   int
	cows      int
}

func newRequest(id, prompt string, tokens []int) *Request {
	return &Request{
		ID:     id,
		Prompt: prompt,
		Tokens: append([]int(nil), tokens...),
		state:  StateResolvingPrefix,
	}
}

// transition moves the request to next or fails with ErrInvalidState.
// Caller holds req.mu.
func (req *Request) transition(next RequestState) error {
	if !CanTransition(req.state, next) {
		return &OpError{Op: "transition", RequestID: req.ID, PageID: NoPage,
			Err: fmt.Errorf("%w: %s -> %s", ErrInvalidState, req.state, next)}
	}
	req.state = next
	return nil
}

func (req *Request) State() RequestState {
	req.mu.Lock()
	defer req.mu.Unlock()
	return req.state
}

// PageIDs returns the ids of the pages the request references, in order.
func (req *Request) PageIDs() []int {
	req.mu.Lock()
	defer req.mu.Unlock()
	ids := make([]int, len(req.pages))
	for i, p := range req.pages {
		ids[i] = p.ID()
	}
	return ids
}

// Pages returns the request's current page list.
func (req *Request) Pages() []*Page {
	req.mu.Lock()
	defer req.mu.Unlock()
	return append([]*Page(nil), req.pages...)
}

// Table returns a copy of the request's page table, or nil once released.
func (req *Request) Table() *PageTable {
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.table == nil {
		return nil
	}
	return req.table.Clone()
}

// Len is the number of token positions in the sequence.
func (req *Request) Len() int {
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.table == nil {
		return 0
	}
	return req.table.Len()
}

func (req *Request) PrefixLen() int {
	req.mu.Lock()
	defer req.mu.Unlock()
	return req.prefixLen
}

func (req *Request) DecodedTokens() int {
	req.mu.Lock()
	defer req.mu.Unlock()
	return req.decoded
}

// CopyOnWrites is the number of pages this request had to duplicate.
func (req *Request) CopyOnWrites() int {
	req.mu.Lock()
	defer req.mu.Unlock()
	return req.cows
}

// Gather returns the request's logical K/V sequence for one layer and head.
func (req *Request) Gather(layer, head int) (keys, values [][]float32, err error) {
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.table == nil {
		return nil, nil, &OpError{Op: "gather", RequestID: req.ID, PageID: NoPage, Err: ErrRequestNotActive}
	}
	return Gather(req.pages, req.table, layer, head)
}

// This method returns a human-readable string representation of a Request.
func (req *Request) String() string {
	req.mu.Lock()
	defer req.mu.Unlock()
	return fmt.Sprintf("Request: (ID: %s, State: %s, Pages: %d, Decoded: %d)", req.ID, req.state, len(req.pages), req.decoded)
}
