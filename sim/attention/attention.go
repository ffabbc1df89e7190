// Package attention scores a query against a K/V sequence. It does not care
// where the K/V lived: a paged sequence and a contiguous copy of the same
// vectors must produce the same output.
package attention

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var ErrEmptySequence = errors.New("attention over empty sequence")

// Gatherer yields the logical K/V sequence of one layer and head.
// *sim.Request and *Contiguous both implement it.
type Gatherer interface {
	Gather(layer, head int) (keys, values [][]float32, err error)
}

// ScaledDotProduct returns softmax(K·q / sqrt(d)) · V.
func ScaledDotProduct(q []float32, keys, values [][]float32) ([]float32, error) {
	if len(keys) == 0 {
		return nil, ErrEmptySequence
	}
	if len(keys) != len(values) {
		return nil, fmt.Errorf("got %d keys and %d values", len(keys), len(values))
	}
	d := len(q)
	q64 := widen(q)
	scale := 1 / math.Sqrt(float64(d))

	scores := make([]float64, len(keys))
	for i, k := range keys {
		if len(k) != d || len(values[i]) != d {
			return nil, fmt.Errorf("token %d has dim %d/%d, query has %d", i, len(k), len(values[i]), d)
		}
		scores[i] = floats.Dot(widen(k), q64) * scale
	}
	softmax(scores)

	out := make([]float64, d)
	for i, v := range values {
		floats.AddScaled(out, scores[i], widen(v))
	}
	return narrow(out), nil
}

// MultiHead runs ScaledDotProduct for every head of one layer; queries[h]
// is the query of head h.
func MultiHead(queries [][]float32, src Gatherer, layer int) ([][]float32, error) {
	out := make([][]float32, len(queries))
	for h, q := range queries {
		keys, values, err := src.Gather(layer, h)
		if err != nil {
			return nil, fmt.Errorf("gathering layer %d head %d: %w", layer, h, err)
		}
		if out[h], err = ScaledDotProduct(q, keys, values); err != nil {
			return nil, fmt.Errorf("head %d: %w", h, err)
		}
	}
	return out, nil
}

// softmax normalizes s in place, subtracting the max for stability.
func softmax(s []float64) {
	floats.AddConst(-floats.Max(s), s)
	for i := range s {
		s[i] = math.Exp(s[i])
	}
	floats.Scale(1/floats.Sum(s), s)
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func narrow(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
