package testutil

import (
	"context"
	"testing"

	"github.com/hupe1980/vecfuse/blobstore"
	"github.com/hupe1980/vecfuse/columnar"
	"github.com/hupe1980/vecfuse/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitVectors(t *testing.T) {
	rng := NewRNG(4711)
	v := rng.UnitVectors(8, 32)

	assert.Len(t, v, 8)
	for _, vec := range v {
		require.Len(t, vec, 32)
		var sum float32
		for _, x := range vec {
			sum += x * x
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
	}
	assert.Equal(t, NewRNG(4711).UnitVector(4), NewRNG(4711).UnitVector(4))
}

func TestCorpusPartRoundTrip(t *testing.T) {
	c := NewCorpus()
	f := c.Part(t, model.DocChunk, model.SectionCore, []Row{
		{"id": "c1", "asset_id": "doc-1", "content": "hello", "start_ms": 5, "text_vector": Axis(3, 0)},
		{"id": "c2", "asset_id": "doc-1"},
	})
	m := c.Manifest(t, "m1", f)
	assert.Equal(t, 2, f.RowCount)
	assert.Len(t, c.All(t), 1)
	assert.Equal(t, "m1", m.ID)

	data, err := blobstore.ReadAll(context.Background(), c.Parts, f.URI)
	require.NoError(t, err)
	require.NoError(t, columnar.Verify(f.URI, data, f.ContentHash))

	p, err := columnar.DecodePart(f.URI, data, f.RowCount)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, p.IDs)
	vf, ok := p.Schema.Lookup("text_vector")
	require.True(t, ok)
	assert.Equal(t, 3, vf.Dim)
}
