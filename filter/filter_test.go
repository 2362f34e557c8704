package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/vecfuse/columnar"
	"github.com/hupe1980/vecfuse/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapRecord map[string]any

func (m mapRecord) Get(f string) (any, bool) {
	v, ok := m[f]
	return v, ok
}

type staticLookup map[string][]string

func (s staticLookup) AssetsFor(_ context.Context, key string, values []string) ([]string, error) {
	if key == "broken" {
		return nil, errors.New("backend down")
	}
	var out []string
	for _, v := range values {
		out = append(out, s[key+"="+v]...)
	}
	return out, nil
}

func compile(t *testing.T, n Node, lookup AllowlistLookup) *Program {
	t.Helper()
	p, err := Compile(context.Background(), &n, lookup)
	require.NoError(t, err)
	return p
}

func TestMatch(t *testing.T) {
	rec := mapRecord{
		"asset_id":    "vid-1",
		"asset_type":  "video",
		"start_ms":    int64(1000),
		"end_ms":      int64(4000),
		"created_at":  "2024-05-01T10:00:00Z",
		"source_type": "upload",
	}

	tests := []struct {
		name string
		node Node
		want bool
	}{
		{"eq", Eq("asset_id", "vid-1"), true},
		{"ne", Leaf("asset_type", OpNe, "video"), false},
		{"gte number", Leaf("start_ms", OpGte, 1000.0), true},
		{"lt number", Leaf("end_ms", OpLt, 4000), false},
		{"in", In("asset_type", "image", "video"), true},
		{"contains", Leaf("source_type", OpContains, "load"), true},
		{"time gt", Leaf("created_at", OpGt, "2024-01-01T00:00:00Z"), true},
		{"all", And(Eq("asset_id", "vid-1"), Leaf("start_ms", OpLt, 500)), false},
		{"any", Or(Eq("asset_id", "x"), Eq("asset_type", "video")), true},
		{"not", Negate(Eq("asset_id", "x")), true},
		{"missing field", Leaf("duration_ms", OpGt, 0), false},
		{"empty all", Node{All: []Node{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compile(t, tt.node, nil).Match(rec))
		})
	}

	var nilProgram *Program
	assert.True(t, nilProgram.Match(rec))
	assert.True(t, nilProgram.Empty())
}

func TestCompileRejects(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		node Node
	}{
		{"unknown field", Eq("title", "x")},
		{"unknown op", Leaf("asset_id", "like", "x")},
		{"range on string", Leaf("asset_id", OpGt, "a")},
		{"wrong value type", Eq("start_ms", "soon")},
		{"empty in", In("asset_id")},
		{"two kinds", Node{Field: "asset_id", Op: OpEq, Value: "a", Not: &Node{}}},
		{"empty node", Node{}},
		{"nested", And(Eq("asset_id", "a"), Negate(Eq("nope", 1)))},
		{"metadata range", Leaf("metadata.team", OpGt, "a")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(ctx, &tt.node, staticLookup{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidFilter)
			var fe *Error
			assert.ErrorAs(t, err, &fe)
		})
	}

	t.Run("metadata without lookup", func(t *testing.T) {
		n := Eq("metadata.team", "red")
		_, err := Compile(ctx, &n, nil)
		assert.ErrorIs(t, err, ErrInvalidFilter)
	})
}

func TestMetadataResolvesToAssetSet(t *testing.T) {
	lookup := staticLookup{
		"team=red":  {"vid-1", "doc-7"},
		"team=blue": {"img-2"},
	}
	p := compile(t, In("metadata.team", "red", "blue"), lookup)
	assert.True(t, p.Match(mapRecord{"asset_id": "img-2"}))
	assert.True(t, p.Match(mapRecord{"asset_id": "doc-7"}))
	assert.False(t, p.Match(mapRecord{"asset_id": "vid-9"}))

	n := Eq("metadata.broken", "x")
	_, err := Compile(context.Background(), &n, lookup)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidFilter)
}

func TestAllow(t *testing.T) {
	ctx := context.Background()
	p := &columnar.Part{
		Schema: columnar.Schema{Fields: []columnar.Field{
			{Name: "id", Type: columnar.TypeString},
			{Name: "asset_id", Type: columnar.TypeString},
			{Name: "start_ms", Type: columnar.TypeInt},
		}},
		IDs: []string{"t1", "t2", "t3"},
		Values: map[string][]any{
			"asset_id": {"v1", "v1", "v2"},
			"start_ms": {int64(0), int64(5000), nil},
		},
	}
	b, err := columnar.MergeParts(model.Transcript, p)
	require.NoError(t, err)
	tbl := columnar.NewTable(model.Transcript)
	_, _, err = tbl.Append(b)
	require.NoError(t, err)

	prog := compile(t, And(Eq("asset_type", "video"), Leaf("start_ms", OpLt, 1000)), nil)
	allow, err := prog.Allow(ctx, tbl, func(row uint32) Record { return RowRecord{Table: tbl, Row: row} })
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, allow.ToArray())

	var none *Program
	allow, err = none.Allow(ctx, tbl, nil)
	require.NoError(t, err)
	assert.Nil(t, allow)
}
