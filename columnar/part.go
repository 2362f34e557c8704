package columnar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/vecfuse/internal/compress"
	"github.com/hupe1980/vecfuse/internal/hash"
)

// Part is the decoded content of one part file.
type Part struct {
	Schema Schema
	IDs    []string
	Values map[string][]any
}

// Rows returns the number of rows.
func (p *Part) Rows() int { return len(p.IDs) }

type wirePart struct {
	Columns []wireColumn `json:"columns"`
}

type wireColumn struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Dim    int    `json:"dim,omitempty"`
	Values []any  `json:"values"`
}

// Verify checks data against the row count and content hash recorded in a manifest.
// An empty hash is not checked. Hashes may carry a "sha256:" prefix.
func Verify(uri string, data []byte, contentHash string) error {
	if contentHash == "" {
		return nil
	}
	want := strings.TrimPrefix(strings.ToLower(contentHash), "sha256:")
	if got := hash.SHA256Hex(data); got != want {
		return fmt.Errorf("%w: %s content hash %s, manifest says %s", ErrCorruptPart, uri, got, want)
	}
	return nil
}

// DecodePart decodes the raw bytes of the part file at uri. Files ending in ".zst"
// or ".lz4" are decompressed first. A non-negative wantRows is checked against the
// decoded row count.
func DecodePart(uri string, data []byte, wantRows int) (*Part, error) {
	raw, err := compress.Unframe(compress.ForPath(uri), data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptPart, uri, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var wp wirePart
	if err := dec.Decode(&wp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptPart, uri, err)
	}

	p := &Part{Values: make(map[string][]any)}
	rows := -1
	seen := make(map[string]bool)
	for _, wc := range wp.Columns {
		if wc.Name == "" || seen[wc.Name] {
			return nil, fmt.Errorf("%w: %s: empty or duplicate column name %q", ErrCorruptPart, uri, wc.Name)
		}
		seen[wc.Name] = true
		if rows >= 0 && len(wc.Values) != rows {
			return nil, fmt.Errorf("%w: %s: column %q has %d values, want %d", ErrCorruptPart, uri, wc.Name, len(wc.Values), rows)
		}
		rows = len(wc.Values)

		t, err := ParseColumnType(wc.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptPart, uri, err)
		}
		f := Field{Name: wc.Name, Type: t, Dim: wc.Dim}
		if t == TypeVector && f.Dim == 0 {
			f.Dim = inferDim(wc.Values)
		}

		vals := make([]any, len(wc.Values))
		for i, v := range wc.Values {
			cv, err := coerce(f, v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s row %d: %v", ErrCorruptPart, uri, i, err)
			}
			vals[i] = cv
		}
		p.Schema.Fields = append(p.Schema.Fields, f)
		p.Values[f.Name] = vals
	}

	idField, ok := p.Schema.Lookup("id")
	if !ok || idField.Type != TypeString {
		return nil, fmt.Errorf("%w: %s", ErrMissingID, uri)
	}
	ids := p.Values["id"]
	p.IDs = make([]string, len(ids))
	for i, v := range ids {
		s, _ := v.(string)
		if s == "" {
			return nil, fmt.Errorf("%w: %s row %d has empty id", ErrCorruptPart, uri, i)
		}
		p.IDs[i] = s
	}
	delete(p.Values, "id")

	if wantRows >= 0 && p.Rows() != wantRows {
		return nil, fmt.Errorf("%w: %s has %d rows, manifest says %d", ErrCorruptPart, uri, p.Rows(), wantRows)
	}
	return p, nil
}

func inferDim(values []any) int {
	for _, v := range values {
		if arr, ok := v.([]any); ok {
			return len(arr)
		}
	}
	return 0
}

// EncodePart serializes p in the part file format, compressed according to the
// suffix of uri.
func EncodePart(uri string, p *Part) ([]byte, error) {
	wp := wirePart{Columns: []wireColumn{{Name: "id", Type: TypeString.String(), Values: toAny(p.IDs)}}}
	for _, f := range p.Schema.Fields {
		if f.Name == "id" {
			continue
		}
		vals := p.Values[f.Name]
		if len(vals) != len(p.IDs) {
			return nil, fmt.Errorf("column %q has %d values, want %d", f.Name, len(vals), len(p.IDs))
		}
		wp.Columns = append(wp.Columns, wireColumn{Name: f.Name, Type: f.Type.String(), Dim: f.Dim, Values: vals})
	}
	raw, err := json.Marshal(wp)
	if err != nil {
		return nil, err
	}
	return compress.Frame(compress.ForPath(uri), raw)
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
