package columnar

import (
	"fmt"
	"strings"
)

// ColumnType is the logical type of a column.
type ColumnType uint8

const (
	TypeString ColumnType = iota + 1
	TypeInt
	TypeFloat
	TypeBool
	TypeVector
)

// String returns the wire name of t.
func (t ColumnType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeVector:
		return "vector"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ParseColumnType parses a wire name.
func ParseColumnType(s string) (ColumnType, error) {
	switch strings.ToLower(s) {
	case "string", "utf8", "text":
		return TypeString, nil
	case "int", "int64", "integer":
		return TypeInt, nil
	case "float", "float64", "double":
		return TypeFloat, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "vector", "embedding":
		return TypeVector, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", s)
	}
}

// Field is one named, typed column. Dim is set for vector columns only.
type Field struct {
	Name string     `msgpack:"n"`
	Type ColumnType `msgpack:"t"`
	Dim  int        `msgpack:"d,omitempty"`
}

func (f Field) String() string {
	if f.Type == TypeVector {
		return fmt.Sprintf("vector(%d)", f.Dim)
	}
	return f.Type.String()
}

// Schema is an ordered list of fields with unique names.
type Schema struct {
	Fields []Field
}

// Lookup returns the field named name.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns the field names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// MergeSchema returns the union by name of a and b. Fields keep the order of a,
// followed by new fields of b in their order.
func MergeSchema(a, b Schema) (Schema, error) {
	out := Schema{Fields: append([]Field(nil), a.Fields...)}
	idx := make(map[string]int, len(out.Fields))
	for i, f := range out.Fields {
		idx[f.Name] = i
	}

	for _, in := range b.Fields {
		i, ok := idx[in.Name]
		if !ok {
			idx[in.Name] = len(out.Fields)
			out.Fields = append(out.Fields, in)
			continue
		}
		merged, err := mergeField(out.Fields[i], in)
		if err != nil {
			return Schema{}, err
		}
		out.Fields[i] = merged
	}
	return out, nil
}

func mergeField(existing, incoming Field) (Field, error) {
	if existing.Type == incoming.Type {
		// A vector column seen only with null values has no dimension yet.
		if existing.Type == TypeVector && existing.Dim == 0 {
			return Field{Name: existing.Name, Type: TypeVector, Dim: incoming.Dim}, nil
		}
		if existing.Type == TypeVector && incoming.Dim != 0 && existing.Dim != incoming.Dim {
			return Field{}, &SchemaConflictError{Column: existing.Name, Existing: existing, Incoming: incoming}
		}
		return existing, nil
	}
	if numeric(existing.Type) && numeric(incoming.Type) {
		return Field{Name: existing.Name, Type: TypeFloat}, nil
	}
	return Field{}, &SchemaConflictError{Column: existing.Name, Existing: existing, Incoming: incoming}
}

func numeric(t ColumnType) bool {
	return t == TypeInt || t == TypeFloat
}
