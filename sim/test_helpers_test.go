package sim

import (
	"errors"
	"sync"
)

// tinyShape keeps test pages small: 2 layers, 2 heads, 3-element vectors.
var tinyShape = ModelShape{Layers: 2, Heads: 2, HeadDim: 3}

// cellValue is the deterministic content fakeComputer writes for one cell.
// Keys are positive and values negative so a mix-up is visible.
func cellValue(token, position, layer, head, d int) (key, value float32) {
	base := float32(token*10000 + position*100 + layer*10 + head)
	return base + float32(d)/10, -(base + float32(d)/10)
}

// fakeComputer implements KVComputer with content derived from the token,
// its position and the cell coordinates.
type fakeComputer struct {
	shape ModelShape
	err   error // returned from every call when set
}

func (f fakeComputer) ComputeToken(token, position int) (TokenKV, error) {
	if f.err != nil {
		return TokenKV{}, f.err
	}
	kv := TokenKV{Keys: make([][][]float32, f.shape.Layers), Values: make([][][]float32, f.shape.Layers)}
	for l := 0; l < f.shape.Layers; l++ {
		kv.Keys[l] = make([][]float32, f.shape.Heads)
		kv.Values[l] = make([][]float32, f.shape.Heads)
		for h := 0; h < f.shape.Heads; h++ {
			k := make([]float32, f.shape.HeadDim)
			v := make([]float32, f.shape.HeadDim)
			for d := range k {
				k[d], v[d] = cellValue(token, position, l, h, d)
			}
			kv.Keys[l][h], kv.Values[l][h] = k, v
		}
	}
	return kv, nil
}

func (f fakeComputer) ComputePrefix(tokens []int) (PrefixKV, error) {
	if f.err != nil {
		return PrefixKV{}, f.err
	}
	out := PrefixKV{Keys: make([][][][]float32, f.shape.Layers), Values: make([][][][]float32, f.shape.Layers)}
	for l := 0; l < f.shape.Layers; l++ {
		out.Keys[l] = make([][][]float32, f.shape.Heads)
		out.Values[l] = make([][][]float32, f.shape.Heads)
	}
	for i, tok := range tokens {
		kv, _ := f.ComputeToken(tok, i)
		for l := 0; l < f.shape.Layers; l++ {
			for h := 0; h < f.shape.Heads; h++ {
				out.Keys[l][h] = append(out.Keys[l][h], kv.Keys[l][h])
				out.Values[l][h] = append(out.Values[l][h], kv.Values[l][h])
			}
		}
	}
	return out, nil
}

var errComputeFailed = errors.New("compute failed")

// emitted is one event captured by captureSink.
type emitted struct {
	RequestID string
	Event     Event
}

// captureSink records events in order. Safe for concurrent use.
type captureSink struct {
	mu     sync.Mutex
	events []emitted
}

func (c *captureSink) Emit(requestID string, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, emitted{RequestID: requestID, Event: ev})
}

func (c *captureSink) all() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]emitted(nil), c.events...)
}

// count returns how many events of kind were emitted for requestID
// ("" matches every request).
func (c *captureSink) count(kind EventKind, requestID string) int {
	n := 0
	for _, e := range c.all() {
		if e.Event.Kind() == kind && (requestID == "" || e.RequestID == requestID) {
			n++
		}
	}
	return n
}

// newTestCore builds a pool, cache and orchestrator sharing one sink.
func newTestCore(numPages, pageSize int, cfg CacheConfig) (*Orchestrator, *captureSink) {
	sink := &captureSink{}
	pool := NewPagePool(PoolConfig{NumPages: numPages, PageSize: pageSize}, tinyShape, sink)
	return NewOrchestrator(pool, NewPrefixCache(), fakeComputer{shape: tinyShape}, cfg, sink), sink
}

// seq returns the tokens from..to inclusive.
func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}
