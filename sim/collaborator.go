package sim

import "fmt"

// PrefixKV is the computation collaborator's output for a whole prompt:
// Keys[layer][head][token] is a HeadDim-long vector, one row per input token.
type PrefixKV struct {
	Keys   [][][][]float32
	Values [][][][]float32
}

// NumTokens returns the number of token rows, or 0 for an empty result.
func (p PrefixKV) NumTokens() int {
	if len(p.Keys) == 0 || len(p.Keys[0]) == 0 {
		return 0
	}
	return len(p.Keys[0][0])
}

// Token slices out one token's K/V across all layers and heads.
func (p PrefixKV) Token(i int) (TokenKV, error) {
	if i < 0 || i >= p.NumTokens() {
		return TokenKV{}, fmt.Errorf("token %d of %d: %w", i, p.NumTokens(), ErrIndexOutOfRange)
	}
	kv := TokenKV{
		Keys:   make([][][]float32, len(p.Keys)),
		Values: make([][][]float32, len(p.Values)),
	}
	for l := range p.Keys {
		kv.Keys[l] = make([][]float32, len(p.Keys[l]))
		kv.Values[l] = make([][]float32, len(p.Values[l]))
		for h := range p.Keys[l] {
			if i >= len(p.Keys[l][h]) || i >= len(p.Values[l][h]) {
				return TokenKV{}, fmt.Errorf("layer %d head %d missing token %d: %w", l, h, i, ErrShapeMismatch)
			}
			kv.Keys[l][h] = p.Keys[l][h][i]
			kv.Values[l][h] = p.Values[l][h][i]
		}
	}
	return kv, nil
}

// KVComputer produces raw key/value vectors from model weights. Calls are
// synchronous and must be safe for concurrent use.
type KVComputer interface {
	// ComputePrefix returns K/V for every token of a prompt.
	ComputePrefix(tokens []int) (PrefixKV, error)
	// ComputeToken returns K/V for one decoded token at the given position.
	ComputeToken(token, position int) (TokenKV, error)
}

// Tokenizer maps text to an ordered, deterministic sequence of token ids.
type Tokenizer interface {
	Tokenize(text string) []int
}

// TokenSampler picks the next token given the sequence so far.
type TokenSampler interface {
	NextToken(context []int) int
}
