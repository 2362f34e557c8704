package columnar

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/vecfuse/model"
)

// TableData is the serializable form of a Table.
type TableData struct {
	VertexType model.VertexType `msgpack:"vt"`
	Rows       int              `msgpack:"rows"`
	Columns    []ColumnData     `msgpack:"cols"`
}

// ColumnData is the serializable form of a Column.
type ColumnData struct {
	Field  Field       `msgpack:"f"`
	Valid  []byte      `msgpack:"valid"`
	Strs   []string    `msgpack:"s,omitempty"`
	Ints   []int64     `msgpack:"i,omitempty"`
	Floats []float64   `msgpack:"fl,omitempty"`
	Bools  []bool      `msgpack:"b,omitempty"`
	Vecs   [][]float32 `msgpack:"v,omitempty"`
}

// Export returns the serializable form of t, columns in schema order.
func (t *Table) Export() (TableData, error) {
	td := TableData{VertexType: t.vertexType, Rows: t.rows}
	for _, f := range t.schema.Fields {
		c := t.cols[f.Name]
		valid, err := c.valid.ToBytes()
		if err != nil {
			return TableData{}, fmt.Errorf("export %s.%s: %w", t.vertexType, f.Name, err)
		}
		td.Columns = append(td.Columns, ColumnData{
			Field:  c.field,
			Valid:  valid,
			Strs:   c.strs,
			Ints:   c.ints,
			Floats: c.floats,
			Bools:  c.bools,
			Vecs:   c.vecs,
		})
	}
	return td, nil
}

// ImportTable rebuilds a table from its serializable form.
func ImportTable(td TableData) (*Table, error) {
	t := NewTable(td.VertexType)
	t.rows = td.Rows
	for _, cd := range td.Columns {
		c := &Column{
			field:  cd.Field,
			valid:  roaring.New(),
			n:      td.Rows,
			strs:   cd.Strs,
			ints:   cd.Ints,
			floats: cd.Floats,
			bools:  cd.Bools,
			vecs:   cd.Vecs,
		}
		if _, err := c.valid.FromBuffer(cd.Valid); err != nil {
			return nil, fmt.Errorf("import %s.%s: %w", td.VertexType, cd.Field.Name, err)
		}
		// FromBuffer aliases the input; detach so the payload can be released.
		c.valid = c.valid.Clone()
		if got := c.storedLen(); got != td.Rows {
			return nil, fmt.Errorf("import %s.%s: %d values for %d rows", td.VertexType, cd.Field.Name, got, td.Rows)
		}
		t.cols[cd.Field.Name] = c
		t.schema.Fields = append(t.schema.Fields, cd.Field)
	}

	idCol := t.cols[model.ColID]
	if idCol == nil && td.Rows > 0 {
		return nil, fmt.Errorf("import %s: %w", td.VertexType, ErrMissingID)
	}
	for row := 0; row < td.Rows; row++ {
		id, _ := idCol.String(uint32(row))
		t.ids[id] = uint32(row)
	}
	return t, nil
}

func (c *Column) storedLen() int {
	switch c.field.Type {
	case TypeString:
		return len(c.strs)
	case TypeInt:
		return len(c.ints)
	case TypeFloat:
		return len(c.floats)
	case TypeBool:
		return len(c.bools)
	case TypeVector:
		return len(c.vecs)
	}
	return -1
}
