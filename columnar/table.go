package columnar

import (
	"fmt"

	"github.com/hupe1980/vecfuse/model"
)

// Table holds all rows of one vertex type.
type Table struct {
	vertexType model.VertexType
	schema     Schema
	cols       map[string]*Column
	ids        map[string]uint32
	rows       int
}

// NewTable returns an empty table.
func NewTable(vt model.VertexType) *Table {
	return &Table{
		vertexType: vt,
		cols:       make(map[string]*Column),
		ids:        make(map[string]uint32),
	}
}

// VertexType returns the vertex type of the table.
func (t *Table) VertexType() model.VertexType { return t.vertexType }

// Schema returns the current schema.
func (t *Table) Schema() Schema { return Schema{Fields: append([]Field(nil), t.schema.Fields...)} }

// Rows returns the number of rows.
func (t *Table) Rows() int { return t.rows }

// Column returns the column named name, or nil.
func (t *Table) Column(name string) *Column { return t.cols[name] }

// Lookup returns the row holding id.
func (t *Table) Lookup(id string) (uint32, bool) {
	row, ok := t.ids[id]
	return row, ok
}

// ID returns the vertex id stored at row.
func (t *Table) ID(row uint32) string {
	if c := t.cols[model.ColID]; c != nil {
		s, _ := c.String(row)
		return s
	}
	return ""
}

// String returns a string attribute of row.
func (t *Table) String(row uint32, col string) (string, bool) {
	if c := t.cols[col]; c != nil {
		return c.String(row)
	}
	return "", false
}

// Int returns an integer attribute of row. Float columns holding whole numbers are
// accepted so widened time columns keep working.
func (t *Table) Int(row uint32, col string) (int64, bool) {
	c := t.cols[col]
	if c == nil {
		return 0, false
	}
	if v, ok := c.Int(row); ok {
		return v, true
	}
	if f, ok := c.Float(row); ok {
		return int64(f), true
	}
	return 0, false
}

// Value returns any attribute of row.
func (t *Table) Value(row uint32, col string) (any, bool) {
	if c := t.cols[col]; c != nil {
		return c.Value(row)
	}
	return nil, false
}

// CheckSchema reports whether s can be merged into the table without conflict.
func (t *Table) CheckSchema(s Schema) error {
	_, err := MergeSchema(t.schema, s)
	return err
}

// Validate reports whether Append(b) would succeed. It does not modify t.
func (t *Table) Validate(b *Batch) error {
	if b.VertexType != t.vertexType {
		return fmt.Errorf("batch for %s validated against %s", b.VertexType, t.vertexType)
	}
	merged, err := MergeSchema(t.schema, b.Schema)
	if err != nil {
		return err
	}
	for _, f := range merged.Fields {
		vals, ok := b.Values[f.Name]
		if f.Name == model.ColID || !ok {
			continue
		}
		if len(vals) != len(b.IDs) {
			return fmt.Errorf("column %q: %d values for %d rows", f.Name, len(vals), len(b.IDs))
		}
		for i, v := range vals {
			if _, exists := t.ids[b.IDs[i]]; exists {
				continue
			}
			if _, err := coerce(f, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Append adds the rows of b whose ids are not yet present. It returns the number of
// rows added and skipped.
func (t *Table) Append(b *Batch) (added, skipped int, err error) {
	if b.VertexType != t.vertexType {
		return 0, 0, fmt.Errorf("batch for %s appended to %s", b.VertexType, t.vertexType)
	}
	merged, err := MergeSchema(t.schema, b.Schema)
	if err != nil {
		return 0, 0, err
	}

	for _, f := range merged.Fields {
		c, ok := t.cols[f.Name]
		switch {
		case !ok:
			t.cols[f.Name] = newNullColumn(f, t.rows)
		case c.field.Type == TypeInt && f.Type == TypeFloat:
			c.widen()
		case c.field.Type == TypeVector && c.field.Dim == 0:
			c.field.Dim = f.Dim
		}
	}
	t.schema = merged

	for i, id := range b.IDs {
		if _, exists := t.ids[id]; exists {
			skipped++
			continue
		}
		row := uint32(t.rows)
		for _, f := range t.schema.Fields {
			var v any
			if f.Name == model.ColID {
				v = id
			} else if vals, ok := b.Values[f.Name]; ok {
				v = vals[i]
			}
			if err := t.cols[f.Name].append(v); err != nil {
				return added, skipped, err
			}
		}
		t.ids[id] = row
		t.rows++
		added++
	}
	return added, skipped, nil
}

// Clone returns an independent copy of t.
func (t *Table) Clone() *Table {
	out := &Table{
		vertexType: t.vertexType,
		schema:     t.Schema(),
		cols:       make(map[string]*Column, len(t.cols)),
		ids:        make(map[string]uint32, len(t.ids)),
		rows:       t.rows,
	}
	for name, c := range t.cols {
		out.cols[name] = c.clone()
	}
	for id, row := range t.ids {
		out.ids[id] = row
	}
	return out
}
