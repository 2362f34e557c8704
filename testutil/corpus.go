package testutil

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/hupe1980/vecfuse/blobstore"
	"github.com/hupe1980/vecfuse/columnar"
	"github.com/hupe1980/vecfuse/internal/hash"
	"github.com/hupe1980/vecfuse/manifest"
	"github.com/hupe1980/vecfuse/model"
)

// Row is one record of a part file. It must carry an "id".
type Row map[string]any

// Corpus writes part files and manifests for tests.
type Corpus struct {
	Parts     *blobstore.MemoryStore
	Manifests *manifest.Static

	start time.Time
	seq   int
}

// NewCorpus returns an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{
		Parts:     blobstore.NewMemoryStore(),
		Manifests: manifest.NewStatic(),
		start:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Part writes rows as a part file and returns its manifest entry.
func (c *Corpus) Part(tb testing.TB, vt model.VertexType, section model.Section, rows []Row) manifest.FileRef {
	tb.Helper()
	c.seq++
	return c.PartAt(tb, fmt.Sprintf("parts/%s/%s-%04d.json", vt, section, c.seq), vt, section, rows)
}

// PartAt writes rows as a part file at uri. A ".zst" or ".lz4" suffix compresses it.
func (c *Corpus) PartAt(tb testing.TB, uri string, vt model.VertexType, section model.Section, rows []Row) manifest.FileRef {
	tb.Helper()
	p := PartOf(tb, rows)
	data, err := columnar.EncodePart(uri, p)
	if err != nil {
		tb.Fatalf("encode part %s: %v", uri, err)
	}
	if err := c.Parts.Put(context.Background(), uri, data); err != nil {
		tb.Fatalf("put part %s: %v", uri, err)
	}
	return manifest.FileRef{
		URI:         uri,
		VertexType:  vt,
		Section:     section,
		RowCount:    len(rows),
		Bytes:       int64(len(data)),
		ContentHash: "sha256:" + hash.SHA256Hex(data),
	}
}

// Manifest registers a manifest listing files. Manifests are created one minute
// apart in registration order.
func (c *Corpus) Manifest(tb testing.TB, id string, files ...manifest.FileRef) *manifest.Manifest {
	tb.Helper()
	c.seq++
	m := &manifest.Manifest{
		ID:        id,
		CreatedAt: c.start.Add(time.Duration(c.seq) * time.Minute),
		Files:     files,
	}
	if err := m.Validate(); err != nil {
		tb.Fatalf("manifest %s: %v", id, err)
	}
	c.Manifests.Add(m)
	return m
}

// All returns every registered manifest.
func (c *Corpus) All(tb testing.TB) []*manifest.Manifest {
	tb.Helper()
	ms, err := c.Manifests.List(context.Background())
	if err != nil {
		tb.Fatal(err)
	}
	return ms
}

// PartOf converts rows into a part, inferring the schema from the values.
func PartOf(tb testing.TB, rows []Row) *columnar.Part {
	tb.Helper()
	fields := map[string]columnar.Field{}
	for _, r := range rows {
		for name, v := range r {
			if name == model.ColID || v == nil {
				continue
			}
			f := fieldOf(name, v)
			if prev, ok := fields[name]; ok && prev != f {
				tb.Fatalf("column %s: mixed types %s and %s", name, prev, f)
			}
			fields[name] = f
		}
	}
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)

	p := &columnar.Part{Values: make(map[string][]any, len(names))}
	p.Schema.Fields = append(p.Schema.Fields, columnar.Field{Name: model.ColID, Type: columnar.TypeString})
	for _, n := range names {
		p.Schema.Fields = append(p.Schema.Fields, fields[n])
		p.Values[n] = make([]any, len(rows))
	}
	for i, r := range rows {
		id, ok := r[model.ColID].(string)
		if !ok || id == "" {
			tb.Fatalf("row %d has no id", i)
		}
		p.IDs = append(p.IDs, id)
		for _, n := range names {
			p.Values[n][i] = normalize(r[n])
		}
	}
	return p
}

func fieldOf(name string, v any) columnar.Field {
	switch x := v.(type) {
	case string:
		return columnar.Field{Name: name, Type: columnar.TypeString}
	case int, int64:
		return columnar.Field{Name: name, Type: columnar.TypeInt}
	case float64:
		return columnar.Field{Name: name, Type: columnar.TypeFloat}
	case bool:
		return columnar.Field{Name: name, Type: columnar.TypeBool}
	case []float32:
		return columnar.Field{Name: name, Type: columnar.TypeVector, Dim: len(x)}
	default:
		panic(fmt.Sprintf("testutil: unsupported value %T for %s", v, name))
	}
}

func normalize(v any) any {
	if i, ok := v.(int); ok {
		return int64(i)
	}
	return v
}
