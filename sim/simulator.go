package sim

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RunMode selects how a scenario's requests are interleaved.
type RunMode string

const (
	// ModeSequential runs every request up to completion in order and
	// releases them all at the end, so later requests see earlier requests'
	// pages still live.
	ModeSequential RunMode = "sequential"
	// ModeConcurrent runs each request's full lifecycle on its own goroutine.
	ModeConcurrent RunMode = "concurrent"
)

var validRunModes = map[RunMode]bool{
	ModeSequential: true,
	ModeConcurrent: true,
	"":             true, // empty defaults to sequential
}

// IsValidRunMode returns true if mode is a recognized run mode.
func IsValidRunMode(mode string) bool {
	return validRunModes[RunMode(mode)]
}

// RequestSpec describes one request of a scenario.
type RequestSpec struct {
	Prompt       string `yaml:"prompt"`
	DecodeTokens int    `yaml:"decode_tokens"`
}

// RequestResult summarizes one request after it completed.
type RequestResult struct {
	ID           string
	PrefixKey    PrefixKey
	CacheHit     bool
	PrefixTokens int
	Decoded      int
	CopyOnWrites int
	PageIDs      []int      // page list at completion
	Table        []SlotAddr // page table at completion
}

// Result is the outcome of a scenario run.
type Result struct {
	Requests []RequestResult
	// Completed is the page state after every request completed and before
	// any was released. Nil in concurrent mode, where each request releases
	// as soon as it completes.
	Completed []PageState
	// Final is the page state after every request was released.
	Final        []PageState
	Stats        PoolStats
	CacheHitRate float64
}

// Simulator wires a pool, prefix cache and orchestrator to the tokenizer,
// computation and sampling collaborators, and runs scenarios against them.
type Simulator struct {
	Config       SimConfig
	Pool         *PagePool
	Cache        *PrefixCache
	Orchestrator *Orchestrator

	tokenizer Tokenizer
	sampler   TokenSampler
}

// NewSimulator validates cfg and builds a fresh paging core. Panics on an
// invalid configuration.
func NewSimulator(cfg SimConfig, tokenizer Tokenizer, compute KVComputer, sampler TokenSampler, sink EventSink) *Simulator {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Simulator: %v", err))
	}
	pool := NewPagePool(cfg.Pool, cfg.Model, sink)
	cache := NewPrefixCache()
	return &Simulator{
		Config:       cfg,
		Pool:         pool,
		Cache:        cache,
		Orchestrator: NewOrchestrator(pool, cache, compute, cfg.Cache, sink),
		tokenizer:    tokenizer,
		sampler:      sampler,
	}
}

// Run executes specs in the given mode.
func (s *Simulator) Run(specs []RequestSpec, mode RunMode) (*Result, error) {
	switch mode {
	case ModeSequential, "":
		return s.runSequential(specs)
	case ModeConcurrent:
		return s.runConcurrent(specs)
	default:
		return nil, fmt.Errorf("unknown run mode %q", mode)
	}
}

func (s *Simulator) runSequential(specs []RequestSpec) (*Result, error) {
	res := &Result{Requests: make([]RequestResult, 0, len(specs))}
	live := make([]*Request, 0, len(specs))
	var runErr error
	for _, spec := range specs {
		req, err := s.drive(spec)
		if err != nil {
			runErr = err
			break
		}
		live = append(live, req)
		res.Requests = append(res.Requests, summarize(req))
	}
	res.Completed = s.Pool.Snapshot()

	var errs []error
	for _, req := range live {
		if err := s.Orchestrator.Release(req); err != nil {
			errs = append(errs, err)
		}
	}
	s.finish(res)
	return res, errors.Join(append([]error{runErr}, errs...)...)
}

func (s *Simulator) runConcurrent(specs []RequestSpec) (*Result, error) {
	results := make([]RequestResult, len(specs))
	var g errgroup.Group
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			req, err := s.drive(spec)
			if err != nil {
				return err
			}
			results[i] = summarize(req)
			return s.Orchestrator.Release(req)
		})
	}
	err := g.Wait()
	res := &Result{Requests: results}
	s.finish(res)
	return res, err
}

// drive takes one request from prompt to completion. A failure releases
// whatever the request still holds.
func (s *Simulator) drive(spec RequestSpec) (*Request, error) {
	tokens := s.tokenizer.Tokenize(spec.Prompt)
	req, err := s.Orchestrator.Start(spec.Prompt, tokens)
	if err != nil {
		return nil, err
	}
	logrus.Infof("%s: %d prefix tokens, cache hit=%v, pages=%v", req.ID, len(tokens), req.CacheHit, req.PageIDs())

	for i := 0; i < spec.DecodeTokens; i++ {
		req.mu.Lock()
		history := append([]int(nil), req.Tokens...)
		req.mu.Unlock()
		if _, err := s.Orchestrator.Decode(req, s.sampler.NextToken(history)); err != nil {
			return nil, errors.Join(err, s.Orchestrator.Release(req))
		}
	}
	if err := s.Orchestrator.Complete(req); err != nil {
		return nil, errors.Join(err, s.Orchestrator.Release(req))
	}
	logrus.Infof("%s: decoded %d tokens, copy-on-writes=%d, pages=%v", req.ID, req.DecodedTokens(), req.CopyOnWrites(), req.PageIDs())
	return req, nil
}

func (s *Simulator) finish(res *Result) {
	res.Final = s.Pool.Snapshot()
	res.Stats = s.Pool.Stats()
	res.CacheHitRate = s.Cache.HitRate()
}

func summarize(req *Request) RequestResult {
	table := req.Table()
	var entries []SlotAddr
	if table != nil {
		entries = table.Entries()
	}
	return RequestResult{
		ID:           req.ID,
		PrefixKey:    req.PrefixKey,
		CacheHit:     req.CacheHit,
		PrefixTokens: req.PrefixLen(),
		Decoded:      req.DecodedTokens(),
		CopyOnWrites: req.CopyOnWrites(),
		PageIDs:      req.PageIDs(),
		Table:        entries,
	}
}
