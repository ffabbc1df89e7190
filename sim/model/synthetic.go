package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/inference-sim/paged-kv-sim/sim"
)

// Synthetic stands in for a transformer: it produces K/V vectors and next
// tokens that are pseudo-random but fully determined by the seed, the token
// id and its position. Identical prefixes therefore always produce
// identical K/V, which is what makes prefix reuse observable.
type Synthetic struct {
	shape     sim.ModelShape
	vocabSize int
	seeds     Seeds
}

// NewSynthetic panics on a non-positive shape, like the pool does.
func NewSynthetic(shape sim.ModelShape, vocabSize int, key SimulationKey) *Synthetic {
	if shape.SlotElems() <= 0 {
		panic(fmt.Sprintf("Synthetic: model shape must be positive, got %+v", shape))
	}
	if vocabSize <= 0 {
		vocabSize = DefaultVocabSize
	}
	return &Synthetic{shape: shape, vocabSize: vocabSize, seeds: NewSeeds(key)}
}

func (m *Synthetic) Shape() sim.ModelShape { return m.shape }

// ComputeToken implements sim.KVComputer.
func (m *Synthetic) ComputeToken(token, position int) (sim.TokenKV, error) {
	if position < 0 {
		return sim.TokenKV{}, fmt.Errorf("negative position %d", position)
	}
	rng := m.seeds.ForSubsystem(SubsystemToken(token, position))
	kv := sim.TokenKV{
		Keys:   make([][][]float32, m.shape.Layers),
		Values: make([][][]float32, m.shape.Layers),
	}
	for l := 0; l < m.shape.Layers; l++ {
		kv.Keys[l] = make([][]float32, m.shape.Heads)
		kv.Values[l] = make([][]float32, m.shape.Heads)
		for h := 0; h < m.shape.Heads; h++ {
			k := make([]float32, m.shape.HeadDim)
			v := make([]float32, m.shape.HeadDim)
			for d := range k {
				k[d] = float32(rng.NormFloat64())
				v[d] = float32(rng.NormFloat64())
			}
			kv.Keys[l][h] = k
			kv.Values[l][h] = v
		}
	}
	return kv, nil
}

// ComputePrefix implements sim.KVComputer. Row i of every layer and head
// equals ComputeToken(tokens[i], i).
func (m *Synthetic) ComputePrefix(tokens []int) (sim.PrefixKV, error) {
	out := sim.PrefixKV{
		Keys:   make([][][][]float32, m.shape.Layers),
		Values: make([][][][]float32, m.shape.Layers),
	}
	for l := 0; l < m.shape.Layers; l++ {
		out.Keys[l] = make([][][]float32, m.shape.Heads)
		out.Values[l] = make([][][]float32, m.shape.Heads)
		for h := 0; h < m.shape.Heads; h++ {
			out.Keys[l][h] = make([][]float32, len(tokens))
			out.Values[l][h] = make([][]float32, len(tokens))
		}
	}
	for i, tok := range tokens {
		kv, err := m.ComputeToken(tok, i)
		if err != nil {
			return sim.PrefixKV{}, err
		}
		for l := 0; l < m.shape.Layers; l++ {
			for h := 0; h < m.shape.Heads; h++ {
				out.Keys[l][h][i] = kv.Keys[l][h]
				out.Values[l][h][i] = kv.Values[l][h]
			}
		}
	}
	return out, nil
}

// NextToken implements sim.TokenSampler. The choice depends only on the
// sequence so far.
func (m *Synthetic) NextToken(history []int) int {
	var sb strings.Builder
	sb.WriteString(SubsystemSampler)
	for _, t := range history {
		sb.WriteByte('|')
		sb.WriteString(strconv.Itoa(t))
	}
	return m.seeds.ForSubsystem(sb.String()).Intn(m.vocabSize)
}
