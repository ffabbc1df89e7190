package attention

import (
	"fmt"
	"math"

	"github.com/inference-sim/paged-kv-sim/sim"
)

// Contiguous is the naive, unpaged KV cache: one dense, ever-growing
// sequence per layer and head. It serves as ground truth for the paged path.
type Contiguous struct {
	keys   [][][][]float32 // [layer][head][token]
	values [][][][]float32
}

// NewContiguous copies a prefix's K/V into a dense cache.
func NewContiguous(prefix sim.PrefixKV) *Contiguous {
	c := &Contiguous{
		keys:   make([][][][]float32, len(prefix.Keys)),
		values: make([][][][]float32, len(prefix.Values)),
	}
	for l := range prefix.Keys {
		c.keys[l] = make([][][]float32, len(prefix.Keys[l]))
		c.values[l] = make([][][]float32, len(prefix.Values[l]))
		for h := range prefix.Keys[l] {
			c.keys[l][h] = append([][]float32(nil), prefix.Keys[l][h]...)
			c.values[l][h] = append([][]float32(nil), prefix.Values[l][h]...)
		}
	}
	return c
}

// Append adds one decoded token.
func (c *Contiguous) Append(kv sim.TokenKV) {
	for l := range c.keys {
		for h := range c.keys[l] {
			c.keys[l][h] = append(c.keys[l][h], kv.Keys[l][h])
			c.values[l][h] = append(c.values[l][h], kv.Values[l][h])
		}
	}
}

// Gather implements Gatherer.
func (c *Contiguous) Gather(layer, head int) (keys, values [][]float32, err error) {
	if layer < 0 || layer >= len(c.keys) || head < 0 || head >= len(c.keys[layer]) {
		return nil, nil, fmt.Errorf("layer %d head %d: %w", layer, head, sim.ErrOutOfRange)
	}
	return c.keys[layer][head], c.values[layer][head], nil
}

// Comparison reports how far paged attention drifted from the naive path.
type Comparison struct {
	Naive       [][]float32 // per-head outputs
	Paged       [][]float32
	MaxAbsDiff  []float64 // per head
	OverallDiff float64
}

// Compare runs multi-head attention for one layer over both sources.
func Compare(queries [][]float32, layer int, naive, paged Gatherer) (*Comparison, error) {
	n, err := MultiHead(queries, naive, layer)
	if err != nil {
		return nil, fmt.Errorf("naive: %w", err)
	}
	p, err := MultiHead(queries, paged, layer)
	if err != nil {
		return nil, fmt.Errorf("paged: %w", err)
	}
	cmp := &Comparison{Naive: n, Paged: p, MaxAbsDiff: make([]float64, len(queries))}
	for h := range queries {
		for d := range n[h] {
			diff := math.Abs(float64(n[h][d]) - float64(p[h][d]))
			cmp.MaxAbsDiff[h] = math.Max(cmp.MaxAbsDiff[h], diff)
		}
		cmp.OverallDiff = math.Max(cmp.OverallDiff, cmp.MaxAbsDiff[h])
	}
	return cmp, nil
}
