package columnar

import (
	"errors"
	"testing"

	"github.com/hupe1980/vecfuse/internal/hash"
	"github.com/hupe1980/vecfuse/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corePart(ids ...string) *Part {
	assets := make([]any, len(ids))
	for i := range ids {
		assets[i] = "asset-" + ids[i]
	}
	return &Part{
		Schema: Schema{Fields: []Field{{Name: "id", Type: TypeString}, {Name: "asset_id", Type: TypeString}}},
		IDs:    ids,
		Values: map[string][]any{"asset_id": assets},
	}
}

func TestMergeSchema(t *testing.T) {
	a := Schema{Fields: []Field{{Name: "id", Type: TypeString}, {Name: "n", Type: TypeInt}}}

	t.Run("union by name", func(t *testing.T) {
		b := Schema{Fields: []Field{{Name: "extra", Type: TypeBool}, {Name: "id", Type: TypeString}}}
		got, err := MergeSchema(a, b)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "n", "extra"}, got.Names())
	})

	t.Run("int widens to float", func(t *testing.T) {
		b := Schema{Fields: []Field{{Name: "n", Type: TypeFloat}}}
		got, err := MergeSchema(a, b)
		require.NoError(t, err)
		f, _ := got.Lookup("n")
		assert.Equal(t, TypeFloat, f.Type)
	})

	t.Run("type conflict", func(t *testing.T) {
		b := Schema{Fields: []Field{{Name: "n", Type: TypeString}}}
		_, err := MergeSchema(a, b)
		var sce *SchemaConflictError
		require.ErrorAs(t, err, &sce)
		assert.Equal(t, "n", sce.Column)
	})

	t.Run("vector dim conflict", func(t *testing.T) {
		v := Schema{Fields: []Field{{Name: "v", Type: TypeVector, Dim: 4}}}
		w := Schema{Fields: []Field{{Name: "v", Type: TypeVector, Dim: 8}}}
		_, err := MergeSchema(v, w)
		var sce *SchemaConflictError
		assert.ErrorAs(t, err, &sce)
	})

	t.Run("vector without dim adopts the other side", func(t *testing.T) {
		v := Schema{Fields: []Field{{Name: "v", Type: TypeVector, Dim: 4}}}
		unknown := Schema{Fields: []Field{{Name: "v", Type: TypeVector}}}

		s, err := MergeSchema(v, unknown)
		require.NoError(t, err)
		f, _ := s.Lookup("v")
		assert.Equal(t, 4, f.Dim)

		s, err = MergeSchema(unknown, v)
		require.NoError(t, err)
		f, _ = s.Lookup("v")
		assert.Equal(t, 4, f.Dim)
	})
}

func TestTableAppendFirstWriteWins(t *testing.T) {
	tbl := NewTable(model.DocChunk)

	b1, err := MergeParts(model.DocChunk, corePart("c1", "c2"))
	require.NoError(t, err)
	added, skipped, err := tbl.Append(b1)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 0, skipped)

	p := corePart("c2", "c3")
	p.Values["asset_id"][0] = "rewritten"
	b2, err := MergeParts(model.DocChunk, p)
	require.NoError(t, err)
	added, skipped, err = tbl.Append(b2)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 3, tbl.Rows())

	row, ok := tbl.Lookup("c2")
	require.True(t, ok)
	got, _ := tbl.String(row, "asset_id")
	assert.Equal(t, "asset-c2", got)
}

func TestTableNewColumnsBackfillNulls(t *testing.T) {
	tbl := NewTable(model.VideoClip)
	b, err := MergeParts(model.VideoClip, corePart("v1"))
	require.NoError(t, err)
	_, _, err = tbl.Append(b)
	require.NoError(t, err)

	p := corePart("v2")
	p.Schema.Fields = append(p.Schema.Fields, Field{Name: "start_ms", Type: TypeInt})
	p.Values["start_ms"] = []any{int64(1500)}
	b, err = MergeParts(model.VideoClip, p)
	require.NoError(t, err)
	_, _, err = tbl.Append(b)
	require.NoError(t, err)

	col := tbl.Column("start_ms")
	require.NotNil(t, col)
	assert.True(t, col.IsNull(0))
	v, ok := col.Int(1)
	require.True(t, ok)
	assert.Equal(t, int64(1500), v)

	// A float part widens the int column in place.
	p = corePart("v3")
	p.Schema.Fields = append(p.Schema.Fields, Field{Name: "start_ms", Type: TypeFloat})
	p.Values["start_ms"] = []any{2500.5}
	b, err = MergeParts(model.VideoClip, p)
	require.NoError(t, err)
	_, _, err = tbl.Append(b)
	require.NoError(t, err)
	f, ok := tbl.Column("start_ms").Float(1)
	require.True(t, ok)
	assert.Equal(t, 1500.0, f)
	n, ok := tbl.Int(2, "start_ms")
	require.True(t, ok)
	assert.Equal(t, int64(2500), n)
}

func TestMergePartsAcrossSections(t *testing.T) {
	core := corePart("c1", "c2")
	text := &Part{
		Schema: Schema{Fields: []Field{{Name: "id", Type: TypeString}, {Name: "content", Type: TypeString}}},
		IDs:    []string{"c2", "c1"},
		Values: map[string][]any{"content": {"two", "one"}},
	}
	vec := &Part{
		Schema: Schema{Fields: []Field{{Name: "id", Type: TypeString}, {Name: "text_vector", Type: TypeVector, Dim: 2}}},
		IDs:    []string{"c1"},
		Values: map[string][]any{"text_vector": {[]float32{1, 0}}},
	}

	b, err := MergeParts(model.DocChunk, core, text, vec)
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, b.IDs)
	assert.Equal(t, []any{"one", "two"}, b.Values["content"])
	assert.Equal(t, []float32{1, 0}, b.Values["text_vector"][0])
	assert.Nil(t, b.Values["text_vector"][1])
}

func TestDecodePart(t *testing.T) {
	raw := []byte(`{"columns":[
		{"name":"id","type":"string","values":["i1","i2"]},
		{"name":"asset_id","type":"string","values":["a","b"]},
		{"name":"timestamp_ms","type":"int","values":[10,null]},
		{"name":"image_vector","type":"vector","values":[[0.6,0.8],null]}
	]}`)

	p, err := DecodePart("parts/i.json", raw, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"i1", "i2"}, p.IDs)
	f, ok := p.Schema.Lookup("image_vector")
	require.True(t, ok)
	assert.Equal(t, 2, f.Dim)
	assert.Equal(t, int64(10), p.Values["timestamp_ms"][0])
	assert.Nil(t, p.Values["timestamp_ms"][1])

	t.Run("row count mismatch", func(t *testing.T) {
		_, err := DecodePart("parts/i.json", raw, 3)
		assert.ErrorIs(t, err, ErrCorruptPart)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := DecodePart("x.json", []byte(`{"columns":[{"name":"a","type":"int","values":[1]}]}`), -1)
		assert.ErrorIs(t, err, ErrMissingID)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodePart("x.json", []byte("not json"), -1)
		assert.ErrorIs(t, err, ErrCorruptPart)
	})

	t.Run("verify hash", func(t *testing.T) {
		require.NoError(t, Verify("parts/i.json", raw, "sha256:"+hash.SHA256Hex(raw)))
		err := Verify("parts/i.json", raw, "deadbeef")
		assert.True(t, errors.Is(err, ErrCorruptPart))
	})
}

func TestEncodePartCompressed(t *testing.T) {
	p := corePart("c1")
	for _, uri := range []string{"p.json", "p.json.zst", "p.json.lz4"} {
		data, err := EncodePart(uri, p)
		require.NoError(t, err)
		got, err := DecodePart(uri, data, 1)
		require.NoError(t, err, uri)
		assert.Equal(t, []any{"asset-c1"}, got.Values["asset_id"])
	}
}

func TestIndexCopyOnWrite(t *testing.T) {
	base := NewIndex()
	b, err := MergeParts(model.DocChunk, corePart("c1"))
	require.NoError(t, err)
	_, _, err = base.Apply(b)
	require.NoError(t, err)
	base.Freeze()

	next := base.Clone()
	b, err = MergeParts(model.DocChunk, corePart("c2"))
	require.NoError(t, err)
	_, _, err = next.Apply(b)
	require.NoError(t, err)

	assert.Equal(t, 1, base.Table(model.DocChunk).Rows())
	assert.Equal(t, 2, next.Table(model.DocChunk).Rows())
	assert.Equal(t, 2, next.TotalRows())
}

func TestExportImport(t *testing.T) {
	tbl := NewTable(model.ImageAsset)
	p := corePart("i1", "i2")
	p.Schema.Fields = append(p.Schema.Fields, Field{Name: "image_vector", Type: TypeVector, Dim: 2})
	p.Values["image_vector"] = []any{[]float32{1, 0}, nil}
	b, err := MergeParts(model.ImageAsset, p)
	require.NoError(t, err)
	_, _, err = tbl.Append(b)
	require.NoError(t, err)

	td, err := tbl.Export()
	require.NoError(t, err)
	got, err := ImportTable(td)
	require.NoError(t, err)

	assert.Equal(t, tbl.Schema(), got.Schema())
	row, ok := got.Lookup("i2")
	require.True(t, ok)
	assert.True(t, got.Column("image_vector").IsNull(row))
	v, ok := got.Column("image_vector").Vector(0)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, v)
}

func TestTableValidate(t *testing.T) {
	tbl := NewTable(model.DocChunk)
	b, err := MergeParts(model.DocChunk, corePart("c1"))
	require.NoError(t, err)
	require.NoError(t, tbl.Validate(b))
	_, _, err = tbl.Append(b)
	require.NoError(t, err)

	bad := corePart("c2")
	bad.Values["asset_id"][0] = int64(7)
	bb, err := MergeParts(model.DocChunk, bad)
	require.NoError(t, err)
	assert.Error(t, tbl.Validate(bb))
	assert.Equal(t, 1, tbl.Rows())

	// Known ids are skipped by Append, so their values are not checked.
	dup := corePart("c1")
	dup.Values["asset_id"][0] = int64(7)
	db, err := MergeParts(model.DocChunk, dup)
	require.NoError(t, err)
	assert.NoError(t, tbl.Validate(db))
}
