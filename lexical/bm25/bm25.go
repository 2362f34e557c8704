package bm25

import (
	"math"
	"sync"

	"github.com/hupe1980/vecfuse/lexical"
)

const (
	k1 = 1.2
	b  = 0.75
)

type posting struct {
	docID uint32
	count int
}

// MemoryIndex is a simple in-memory BM25 index.
type MemoryIndex struct {
	mu          sync.RWMutex
	inverted    map[string][]posting
	docLengths  []int
	refs        []lexical.DocRef
	known       map[lexical.DocRef]bool
	totalLength int64
}

// New creates a new MemoryIndex.
func New() *MemoryIndex {
	return &MemoryIndex{
		inverted: make(map[string][]posting),
		known:    make(map[lexical.DocRef]bool),
	}
}

// Ensure MemoryIndex implements lexical.Index
var _ lexical.Index = (*MemoryIndex)(nil)

// Add indexes text under ref. Re-adding a known ref is ignored.
func (idx *MemoryIndex) Add(ref lexical.DocRef, text string) {
	tokens := lexical.Tokenize(text)
	if len(tokens) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.known[ref] {
		return
	}
	idx.known[ref] = true

	docID := uint32(len(idx.refs))
	idx.refs = append(idx.refs, ref)
	idx.docLengths = append(idx.docLengths, len(tokens))
	idx.totalLength += int64(len(tokens))

	tf := make(map[string]int)
	for _, t := range tokens {
		tf[t]++
	}
	for t, count := range tf {
		idx.inverted[t] = append(idx.inverted[t], posting{docID: docID, count: count})
	}
}

// Len returns the number of indexed documents.
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.refs)
}

func (idx *MemoryIndex) computeIDF(df int) float64 {
	// IDF = log(1 + (N - n + 0.5) / (n + 0.5))
	N := float64(len(idx.refs))
	n := float64(df)
	return math.Log(1 + (N-n+0.5)/(n+0.5))
}
