package model

import (
	"hash/fnv"
	"strings"
	"sync"
)

// DefaultVocabSize matches the GPT-2 vocabulary.
const DefaultVocabSize = 50257

// WhitespaceTokenizer splits text on whitespace and maps each word to a
// stable id by hashing it into the vocabulary. The same word always yields
// the same id, independent of what was tokenized before.
type WhitespaceTokenizer struct {
	vocabSize int

	mu    sync.RWMutex
	words map[int]string // ids seen so far, for display
}

func NewWhitespaceTokenizer(vocabSize int) *WhitespaceTokenizer {
	if vocabSize <= 0 {
		vocabSize = DefaultVocabSize
	}
	return &WhitespaceTokenizer{vocabSize: vocabSize, words: make(map[int]string)}
}

func (t *WhitespaceTokenizer) VocabSize() int { return t.vocabSize }

// Tokenize implements sim.Tokenizer.
func (t *WhitespaceTokenizer) Tokenize(text string) []int {
	fields := strings.Fields(text)
	ids := make([]int, len(fields))
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, w := range fields {
		ids[i] = t.wordID(w)
		t.words[ids[i]] = w
	}
	return ids
}

// Word returns the text last seen for id, if any.
func (t *WhitespaceTokenizer) Word(id int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.words[id]
	return w, ok
}

func (t *WhitespaceTokenizer) wordID(w string) int {
	h := fnv.New32a()
	h.Write([]byte(w))
	return int(h.Sum32() % uint32(t.vocabSize))
}
