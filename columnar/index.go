package columnar

import (
	"sync"

	"github.com/hupe1980/vecfuse/model"
)

// Index is the set of tables of one snapshot.
type Index struct {
	mu     sync.Mutex
	tables map[model.VertexType]*Table
	owned  map[model.VertexType]bool
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		tables: make(map[model.VertexType]*Table),
		owned:  make(map[model.VertexType]bool),
	}
}

// Table returns the table of vt, or nil.
func (x *Index) Table(vt model.VertexType) *Table {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.tables[vt]
}

// Tables returns the present tables in canonical vertex type order.
func (x *Index) Tables() []*Table {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []*Table
	for _, vt := range model.AllVertexTypes() {
		if t := x.tables[vt]; t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Clone returns a copy-on-write view of x. Tables are shared until Mutable is
// called for them on the clone.
func (x *Index) Clone() *Index {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := NewIndex()
	for vt, t := range x.tables {
		out.tables[vt] = t
	}
	return out
}

// Mutable returns a table of vt owned by x, cloning a shared one or creating an
// empty one. Tables returned by Mutable of distinct vertex types may be written
// concurrently.
func (x *Index) Mutable(vt model.VertexType) *Table {
	x.mu.Lock()
	defer x.mu.Unlock()
	t := x.tables[vt]
	switch {
	case t == nil:
		t = NewTable(vt)
	case !x.owned[vt]:
		t = t.Clone()
	default:
		return t
	}
	x.tables[vt] = t
	x.owned[vt] = true
	return t
}

// Apply appends b to the table of its vertex type.
func (x *Index) Apply(b *Batch) (added, skipped int, err error) {
	return x.Mutable(b.VertexType).Append(b)
}

// RowCounts returns rows per vertex type.
func (x *Index) RowCounts() map[model.VertexType]int {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[model.VertexType]int, len(x.tables))
	for vt, t := range x.tables {
		out[vt] = t.rows
	}
	return out
}

// TotalRows returns the number of rows across all tables.
func (x *Index) TotalRows() int {
	total := 0
	for _, n := range x.RowCounts() {
		total += n
	}
	return total
}

// Freeze drops ownership so that later clones never alias a table still being written.
func (x *Index) Freeze() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.owned = make(map[model.VertexType]bool)
}

// Put installs t as the table of its vertex type, owned by x.
func (x *Index) Put(t *Table) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.tables[t.vertexType] = t
	x.owned[t.vertexType] = true
}
