package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/paged-kv-sim/sim"
)

var testShape = sim.ModelShape{Layers: 2, Heads: 3, HeadDim: 4}

func TestSynthetic_ComputeToken_ShapeAndDeterminism(t *testing.T) {
	m := NewSynthetic(testShape, 0, 7)
	kv, err := m.ComputeToken(11, 3)
	require.NoError(t, err)
	require.Len(t, kv.Keys, testShape.Layers)
	require.Len(t, kv.Keys[0], testShape.Heads)
	require.Len(t, kv.Values[1][2], testShape.HeadDim)

	again, err := NewSynthetic(testShape, 0, 7).ComputeToken(11, 3)
	require.NoError(t, err)
	assert.Equal(t, kv, again)

	other, err := m.ComputeToken(11, 4)
	require.NoError(t, err)
	assert.NotEqual(t, kv.Keys, other.Keys, "position changes the vectors")
}

func TestSynthetic_ComputeToken_NegativePosition(t *testing.T) {
	_, err := NewSynthetic(testShape, 0, 7).ComputeToken(1, -1)
	assert.Error(t, err)
}

func TestSynthetic_ComputePrefix_RowsMatchComputeToken(t *testing.T) {
	m := NewSynthetic(testShape, 0, 7)
	tokens := []int{5, 9, 5}
	prefix, err := m.ComputePrefix(tokens)
	require.NoError(t, err)
	require.Equal(t, 3, prefix.NumTokens())

	for i, tok := range tokens {
		want, err := m.ComputeToken(tok, i)
		require.NoError(t, err)
		got, err := prefix.Token(i)
		require.NoError(t, err)
		assert.Equal(t, want, got, "row %d", i)
	}
}

func TestSynthetic_NextToken_DependsOnHistoryOnly(t *testing.T) {
	m := NewSynthetic(testShape, 100, 7)
	a := m.NextToken([]int{1, 2, 3})
	assert.Equal(t, a, NewSynthetic(testShape, 100, 7).NextToken([]int{1, 2, 3}))
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 100)
}

func TestNewSynthetic_InvalidShape_Panics(t *testing.T) {
	assert.Panics(t, func() { NewSynthetic(sim.ModelShape{}, 0, 1) })
}
