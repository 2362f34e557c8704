package columnar

import (
	"fmt"

	"github.com/hupe1980/vecfuse/model"
)

// Batch is a set of rows for one vertex type, merged across sections by id.
// Values holds one slice per column aligned with IDs; nil entries are nulls.
type Batch struct {
	VertexType model.VertexType
	Schema     Schema
	IDs        []string
	Values     map[string][]any
}

// Len returns the number of rows.
func (b *Batch) Len() int { return len(b.IDs) }

// MergeParts combines parts of one vertex type into a single batch. Rows of
// different sections sharing an id become one row. When two parts set the same
// column of the same id, the first part wins.
func MergeParts(vt model.VertexType, parts ...*Part) (*Batch, error) {
	b := &Batch{VertexType: vt, Values: make(map[string][]any)}
	for _, p := range parts {
		s, err := MergeSchema(b.Schema, p.Schema)
		if err != nil {
			return nil, err
		}
		b.Schema = s
	}

	index := make(map[string]int)
	for _, p := range parts {
		for i, id := range p.IDs {
			row, ok := index[id]
			if !ok {
				row = len(b.IDs)
				index[id] = row
				b.IDs = append(b.IDs, id)
				for name := range b.Values {
					b.Values[name] = append(b.Values[name], nil)
				}
			}
			for name, vals := range p.Values {
				if name == model.ColID || vals[i] == nil {
					continue
				}
				col, ok := b.Values[name]
				if !ok {
					col = make([]any, len(b.IDs))
				}
				if col[row] == nil {
					col[row] = vals[i]
				}
				b.Values[name] = col
			}
		}
	}
	for name, vals := range b.Values {
		if len(vals) != len(b.IDs) {
			return nil, fmt.Errorf("batch column %q misaligned", name)
		}
	}
	return b, nil
}
