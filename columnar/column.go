package columnar

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// Column stores the values of one field. Null rows hold the zero value and are
// absent from the validity bitmap.
type Column struct {
	field Field
	valid *roaring.Bitmap
	n     int

	strs   []string
	ints   []int64
	floats []float64
	bools  []bool
	vecs   [][]float32
}

func newColumn(f Field) *Column {
	return &Column{field: f, valid: roaring.New()}
}

// newNullColumn returns a column of n nulls.
func newNullColumn(f Field, n int) *Column {
	c := newColumn(f)
	for i := 0; i < n; i++ {
		c.appendNull()
	}
	return c
}

// Field returns the column's field.
func (c *Column) Field() Field { return c.field }

// Len returns the number of rows.
func (c *Column) Len() int { return c.n }

// Valid returns the bitmap of non-null rows. Callers must not modify it.
func (c *Column) Valid() *roaring.Bitmap { return c.valid }

// IsNull reports whether row holds no value.
func (c *Column) IsNull(row uint32) bool { return !c.valid.Contains(row) }

// String returns the string value at row.
func (c *Column) String(row uint32) (string, bool) {
	if c.field.Type != TypeString || c.IsNull(row) {
		return "", false
	}
	return c.strs[row], true
}

// Int returns the int value at row.
func (c *Column) Int(row uint32) (int64, bool) {
	if c.field.Type != TypeInt || c.IsNull(row) {
		return 0, false
	}
	return c.ints[row], true
}

// Float returns the numeric value at row. Int columns are converted.
func (c *Column) Float(row uint32) (float64, bool) {
	if c.IsNull(row) {
		return 0, false
	}
	switch c.field.Type {
	case TypeFloat:
		return c.floats[row], true
	case TypeInt:
		return float64(c.ints[row]), true
	default:
		return 0, false
	}
}

// Bool returns the bool value at row.
func (c *Column) Bool(row uint32) (bool, bool) {
	if c.field.Type != TypeBool || c.IsNull(row) {
		return false, false
	}
	return c.bools[row], true
}

// Vector returns the vector at row. The slice is shared and must not be modified.
func (c *Column) Vector(row uint32) ([]float32, bool) {
	if c.field.Type != TypeVector || c.IsNull(row) {
		return nil, false
	}
	return c.vecs[row], true
}

// Value returns the value at row as string, int64, float64, bool or []float32.
func (c *Column) Value(row uint32) (any, bool) {
	if int(row) >= c.n || c.IsNull(row) {
		return nil, false
	}
	switch c.field.Type {
	case TypeString:
		return c.strs[row], true
	case TypeInt:
		return c.ints[row], true
	case TypeFloat:
		return c.floats[row], true
	case TypeBool:
		return c.bools[row], true
	case TypeVector:
		return c.vecs[row], true
	}
	return nil, false
}

func (c *Column) appendNull() {
	switch c.field.Type {
	case TypeString:
		c.strs = append(c.strs, "")
	case TypeInt:
		c.ints = append(c.ints, 0)
	case TypeFloat:
		c.floats = append(c.floats, 0)
	case TypeBool:
		c.bools = append(c.bools, false)
	case TypeVector:
		c.vecs = append(c.vecs, nil)
	}
	c.n++
}

// append adds v, which must already be of the column's Go type (int64 is accepted
// for float columns).
func (c *Column) append(v any) error {
	if v == nil {
		c.appendNull()
		return nil
	}
	row := uint32(c.n)
	switch c.field.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return c.typeErr(v)
		}
		c.strs = append(c.strs, s)
	case TypeInt:
		i, ok := v.(int64)
		if !ok {
			return c.typeErr(v)
		}
		c.ints = append(c.ints, i)
	case TypeFloat:
		switch x := v.(type) {
		case float64:
			c.floats = append(c.floats, x)
		case int64:
			c.floats = append(c.floats, float64(x))
		default:
			return c.typeErr(v)
		}
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return c.typeErr(v)
		}
		c.bools = append(c.bools, b)
	case TypeVector:
		vec, ok := v.([]float32)
		if !ok || len(vec) != c.field.Dim {
			return c.typeErr(v)
		}
		c.vecs = append(c.vecs, vec)
	}
	c.valid.Add(row)
	c.n++
	return nil
}

func (c *Column) typeErr(v any) error {
	return fmt.Errorf("column %q (%s): cannot store %T", c.field.Name, c.field, v)
}

// widen converts an int column to float in place.
func (c *Column) widen() {
	if c.field.Type != TypeInt {
		return
	}
	c.floats = make([]float64, len(c.ints))
	for i, v := range c.ints {
		c.floats[i] = float64(v)
	}
	c.ints = nil
	c.field.Type = TypeFloat
}

// clone copies the column. Vectors are immutable and shared.
func (c *Column) clone() *Column {
	return &Column{
		field:  c.field,
		valid:  c.valid.Clone(),
		n:      c.n,
		strs:   append([]string(nil), c.strs...),
		ints:   append([]int64(nil), c.ints...),
		floats: append([]float64(nil), c.floats...),
		bools:  append([]bool(nil), c.bools...),
		vecs:   append([][]float32(nil), c.vecs...),
	}
}

// coerce converts a decoded JSON value into the Go type of f.
func coerce(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			if x == math.Trunc(x) {
				return int64(x), nil
			}
		case numberLike:
			if i, err := x.Int64(); err == nil {
				return i, nil
			}
		}
	case TypeFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case numberLike:
			if fl, err := x.Float64(); err == nil {
				return fl, nil
			}
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeVector:
		switch x := v.(type) {
		case []float32:
			if len(x) == f.Dim {
				return x, nil
			}
		case []any:
			if len(x) != f.Dim {
				break
			}
			vec := make([]float32, len(x))
			for i, e := range x {
				fl, err := coerce(Field{Name: f.Name, Type: TypeFloat}, e)
				if err != nil || fl == nil {
					return nil, fmt.Errorf("column %q (%s): invalid vector element %v", f.Name, f, e)
				}
				vec[i] = float32(fl.(float64))
			}
			return vec, nil
		}
	}
	return nil, fmt.Errorf("column %q (%s): invalid value %v", f.Name, f, v)
}

// numberLike matches json.Number without importing encoding/json here.
type numberLike interface {
	Int64() (int64, error)
	Float64() (float64, error)
}
