package bm25

import (
	"context"
	"strings"
	"testing"

	"github.com/hupe1980/vecfuse/lexical"
	"github.com/hupe1980/vecfuse/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(row uint32) lexical.DocRef {
	return lexical.DocRef{VertexType: model.DocChunk, Row: row}
}

func TestMemoryIndex_Basic(t *testing.T) {
	ctx := context.Background()
	idx := New()

	docs := []string{
		"the quick brown fox",
		"jumped over the lazy dog",
		"quick brown dogs",
		"fox and dog",
	}
	for i, d := range docs {
		idx.Add(ref(uint32(i)), d)
	}
	assert.Equal(t, 4, idx.Len())

	results, err := idx.Search(ctx, "fox", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	found := map[uint32]bool{}
	for _, r := range results {
		found[r.Ref.Row] = true
		assert.Greater(t, r.Score, 0.0)
	}
	assert.True(t, found[0])
	assert.True(t, found[3])
}

func TestMemoryIndex_IDLikeExactMatch(t *testing.T) {
	ctx := context.Background()
	idx := New()
	idx.Add(ref(0), "invoice INV-2024-0042 for acme")
	idx.Add(ref(1), "invoice INV-2024-0043 for acme")
	idx.Add(lexical.DocRef{VertexType: model.ImageAsset, Row: 0}, "scanned receipt inv-2024-0042")

	results, err := idx.Search(ctx, "INV-2024-0042", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NotEqual(t, ref(1), r.Ref)
	}
}

func TestMemoryIndex_DuplicateAddIgnored(t *testing.T) {
	ctx := context.Background()
	idx := New()
	idx.Add(ref(0), "alpha")
	idx.Add(ref(0), "alpha beta")
	idx.Add(ref(1), "")
	assert.Equal(t, 1, idx.Len())

	res, err := idx.Search(ctx, "beta", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestMemoryIndex_RepeatedTerm(t *testing.T) {
	ctx := context.Background()
	idx := New()

	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("word ")
	}
	idx.Add(ref(1), b.String())
	idx.Add(ref(2), "word")

	res, err := idx.Search(ctx, "word word", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Greater(t, res[0].Score, 0.0)
}

func TestMemoryIndex_TiesOrderByInsertion(t *testing.T) {
	ctx := context.Background()
	idx := New()
	idx.Add(ref(7), "same text")
	idx.Add(ref(3), "same text")

	res, err := idx.Search(ctx, "same", 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, uint32(7), res[0].Ref.Row)
	assert.Equal(t, uint32(3), res[1].Ref.Row)
}
