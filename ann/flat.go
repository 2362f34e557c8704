package ann

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/vecfuse/distance"
	"github.com/hupe1980/vecfuse/queue"
)

// ctxCheckInterval is the number of vectors scanned between cancellation checks.
const ctxCheckInterval = 4096

// Flat is an exact brute-force cosine index.
type Flat struct {
	key  Key
	dim  int
	rows []uint32
	// unit holds L2-normalized copies; nil marks a zero vector.
	unit [][]float32
	pos  map[uint32]int
}

// NewFlat builds a Flat index. It satisfies Factory.
func NewFlat(key Key, dim int, rows []uint32, vecs [][]float32) (Index, error) {
	if len(rows) != len(vecs) {
		return nil, fmt.Errorf("%s: %d rows for %d vectors", key, len(rows), len(vecs))
	}
	f := &Flat{
		key:  key,
		dim:  dim,
		rows: append([]uint32(nil), rows...),
		unit: make([][]float32, len(vecs)),
		pos:  make(map[uint32]int, len(rows)),
	}
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%s row %d: %w: got %d, want %d", key, rows[i], ErrDimensionMismatch, len(v), dim)
		}
		if u, ok := distance.NormalizeL2Copy(v); ok {
			f.unit[i] = u
		}
		f.pos[rows[i]] = i
	}
	return f, nil
}

// Len returns the number of indexed vectors.
func (f *Flat) Len() int { return len(f.rows) }

// Dim returns the vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Key returns the indexed column.
func (f *Flat) Key() Key { return f.key }

// Search scans every indexed vector, or only the allowed ones when allow is smaller.
func (f *Flat) Search(ctx context.Context, query []float32, k int, allow *roaring.Bitmap) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%s: %w: got %d, want %d", f.key, ErrDimensionMismatch, len(query), f.dim)
	}
	q, ok := distance.NormalizeL2Copy(query)
	if !ok || k <= 0 {
		return nil, nil
	}

	top := queue.NewTopK(k)
	score := func(i int) {
		if u := f.unit[i]; u != nil {
			top.Push(f.rows[i], distance.Clamp01(float64(distance.Dot(q, u))))
		}
	}

	if allow != nil && int(allow.GetCardinality()) < len(f.rows) {
		it := allow.Iterator()
		for n := 0; it.HasNext(); n++ {
			if n%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if i, ok := f.pos[it.Next()]; ok {
				score(i)
			}
		}
	} else {
		for i, row := range f.rows {
			if i%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if allow != nil && !allow.Contains(row) {
				continue
			}
			score(i)
		}
	}

	items := top.Sorted()
	hits := make([]Hit, len(items))
	for i, it := range items {
		hits[i] = Hit{Row: it.ID, Similarity: it.Score}
	}
	return hits, nil
}

// Vectors returns the row ids and unit vectors of the index. Zero vectors are nil.
func (f *Flat) Vectors() ([]uint32, [][]float32) {
	return f.rows, f.unit
}
