package bm25

import (
	"context"

	"github.com/hupe1980/vecfuse/lexical"
	"github.com/hupe1980/vecfuse/queue"
)

// Search performs a Document-At-A-Time search. Equal scores order by insertion.
func (idx *MemoryIndex) Search(ctx context.Context, text string, k int) ([]lexical.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.refs) == 0 {
		return nil, nil
	}

	var iterators []termIterator
	seen := make(map[string]bool)
	for _, t := range lexical.Tokenize(text) {
		if seen[t] {
			continue
		}
		seen[t] = true
		postings, ok := idx.inverted[t]
		if !ok || len(postings) == 0 {
			continue
		}
		iterators = append(iterators, termIterator{postings: postings, idf: idx.computeIDF(len(postings))})
	}
	if len(iterators) == 0 {
		return nil, nil
	}

	avgDL := float64(idx.totalLength) / float64(len(idx.refs))

	// Precompute BM25 constants for this query
	k1Plus1 := k1 + 1
	k1x1b := k1 * (1 - b)
	k1bAvgDL := k1 * b / avgDL

	top := queue.NewTopK(k)
	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		minDoc := ^uint32(0)
		for i := range iterators {
			if doc := iterators[i].doc(); doc < minDoc {
				minDoc = doc
			}
		}
		if minDoc == ^uint32(0) {
			break
		}

		var score float64
		docLen := float64(idx.docLengths[minDoc])
		for i := range iterators {
			it := &iterators[i]
			if it.doc() == minDoc {
				tf := float64(it.count())
				score += it.idf * (tf * k1Plus1 / (tf + k1x1b + k1bAvgDL*docLen))
				it.next()
			}
		}
		if score > 0 {
			top.Push(minDoc, score)
		}
	}

	items := top.Sorted()
	hits := make([]lexical.Hit, len(items))
	for i, it := range items {
		hits[i] = lexical.Hit{Ref: idx.refs[it.ID], Score: it.Score}
	}
	return hits, nil
}
