package ann

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/vecfuse/columnar"
	"github.com/hupe1980/vecfuse/model"
)

var (
	// ErrDimensionMismatch is returned when a query vector has the wrong dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrNotVectorColumn is returned when building over a non-vector column.
	ErrNotVectorColumn = errors.New("not a vector column")
)

// Key identifies the index of one vector column.
type Key struct {
	VertexType model.VertexType `msgpack:"vt"`
	Column     string           `msgpack:"col"`
}

func (k Key) String() string { return string(k.VertexType) + "." + k.Column }

// Hit is one search result.
type Hit struct {
	Row        uint32
	Similarity float64
}

// Index searches one vector column.
type Index interface {
	// Search returns up to k rows most similar to query, best first. A non-nil
	// allow restricts results to the rows it contains.
	Search(ctx context.Context, query []float32, k int, allow *roaring.Bitmap) ([]Hit, error)
	// Len returns the number of indexed vectors.
	Len() int
	// Dim returns the vector dimension.
	Dim() int
	// Key returns the column the index covers.
	Key() Key
}

// Factory builds an index from the non-null vectors of a column.
type Factory func(key Key, dim int, rows []uint32, vecs [][]float32) (Index, error)

// Build builds an index over column of t with factory. A nil factory builds a Flat.
func Build(t *columnar.Table, column string, factory Factory) (Index, error) {
	if factory == nil {
		factory = NewFlat
	}
	key := Key{VertexType: t.VertexType(), Column: column}
	c := t.Column(column)
	if c == nil {
		return nil, fmt.Errorf("%s: %w", key, columnar.ErrUnknownColumn)
	}
	f := c.Field()
	if f.Type != columnar.TypeVector {
		return nil, fmt.Errorf("%s: %w", key, ErrNotVectorColumn)
	}

	n := int(c.Valid().GetCardinality())
	rows := make([]uint32, 0, n)
	vecs := make([][]float32, 0, n)
	it := c.Valid().Iterator()
	for it.HasNext() {
		row := it.Next()
		v, _ := c.Vector(row)
		rows = append(rows, row)
		vecs = append(vecs, v)
	}
	return factory(key, f.Dim, rows, vecs)
}

// VectorColumns returns the names of the vector columns of t in schema order.
func VectorColumns(t *columnar.Table) []string {
	var out []string
	for _, f := range t.Schema().Fields {
		if f.Type == columnar.TypeVector {
			out = append(out, f.Name)
		}
	}
	return out
}
