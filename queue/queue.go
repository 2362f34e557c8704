// Package queue provides the bounded top-k selection shared by vector and lexical search.
package queue

import (
	"container/heap"
	"sort"
)

// Compile time check to ensure minHeap satisfies the heap interface.
var _ heap.Interface = (*minHeap)(nil)

// Item is a scored row.
type Item struct {
	ID    uint32
	Score float64
}

// better reports whether a ranks before b: higher score first, lower id on ties.
func better(a, b Item) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// minHeap keeps the worst retained item at the root.
type minHeap []Item

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) { *h = append(*h, x.(Item)) }

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TopK retains the k best items offered to it.
type TopK struct {
	k int
	h minHeap
}

// NewTopK returns a selector for k items. k <= 0 retains nothing.
func NewTopK(k int) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, h: make(minHeap, 0, k)}
}

// Push offers an item.
func (t *TopK) Push(id uint32, score float64) {
	if t.k == 0 {
		return
	}
	it := Item{ID: id, Score: score}
	if len(t.h) < t.k {
		heap.Push(&t.h, it)
		return
	}
	if better(it, t.h[0]) {
		t.h[0] = it
		heap.Fix(&t.h, 0)
	}
}

// Len returns the number of retained items.
func (t *TopK) Len() int { return len(t.h) }

// Sorted returns the retained items best first. The selector is left empty.
func (t *TopK) Sorted() []Item {
	out := []Item(t.h)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	t.h = nil
	return out
}
