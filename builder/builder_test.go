package builder

import (
	"context"
	"testing"

	"github.com/hupe1980/vecfuse/ann"
	"github.com/hupe1980/vecfuse/blobstore"
	"github.com/hupe1980/vecfuse/columnar"
	"github.com/hupe1980/vecfuse/internal/compress"
	"github.com/hupe1980/vecfuse/manifest"
	"github.com/hupe1980/vecfuse/model"
	"github.com/hupe1980/vecfuse/snapshot"
	"github.com/hupe1980/vecfuse/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docRows(ids ...string) []testutil.Row {
	rows := make([]testutil.Row, len(ids))
	for i, id := range ids {
		rows[i] = testutil.Row{
			"id":          id,
			"asset_id":    "doc-" + id,
			"content":     "text of " + id,
			"text_vector": testutil.Axis(4, i),
		}
	}
	return rows
}

func clipRows(ids ...string) []testutil.Row {
	rows := make([]testutil.Row, len(ids))
	for i, id := range ids {
		rows[i] = testutil.Row{
			"id":           id,
			"asset_id":     "vid-1",
			"start_ms":     i * 5000,
			"end_ms":       (i + 1) * 5000,
			"video_vector": testutil.Axis(4, i),
		}
	}
	return rows
}

func newBuilder(c *testutil.Corpus, snaps blobstore.BlobStore, optFns ...func(o *Options)) *Builder {
	return New(c.Parts, snaps, optFns...)
}

func TestBuildFromEmpty(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewCorpus()
	m1 := c.Manifest(t, "m1",
		c.Part(t, model.DocChunk, model.SectionCore, docRows("c1", "c2")),
		c.Part(t, model.VideoClip, model.SectionVector, clipRows("v1", "v2", "v3")),
	)
	snaps := blobstore.NewMemoryStore()

	res, err := newBuilder(c, snaps).Build(ctx, nil, c.All(t))
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.NotEmpty(t, res.BuildID)
	assert.Equal(t, 2, res.RowsAddedByTable[model.DocChunk])
	assert.Equal(t, 3, res.RowsAddedByTable[model.VideoClip])
	assert.Equal(t, 5, res.TotalRows)
	assert.Equal(t, []string{"m1"}, res.AppliedManifests)
	assert.Equal(t, manifest.Marker(1, manifest.Fingerprint(map[string]string{"m1": m1.Digest()})), res.SnapshotMarker)
	assert.Equal(t, snapshot.FileName("snapshots", res.SnapshotMarker), res.SnapshotURI)
	assert.Positive(t, res.SizeBytes)
	assert.Equal(t, res.SizeBytes, res.SizeDelta)
	assert.ElementsMatch(t, []string{"DocChunk.text_vector", "VideoClip.video_vector"}, res.RebuiltIndexes)

	require.NotNil(t, res.Snapshot)
	assert.Equal(t, res.SnapshotURI, res.Snapshot.URI())
	assert.NotNil(t, res.Snapshot.Vector(ann.Key{VertexType: model.VideoClip, Column: model.ColVideoVector}))

	report, err := ReadReport(ctx, snaps, "snapshots", res.SnapshotMarker)
	require.NoError(t, err)
	assert.Equal(t, res.BuildID, report.BuildID)
	assert.Equal(t, res.RowsAddedByTable, report.RowsAddedByTable)

	mgr := snapshot.NewManager(snaps)
	loaded, err := mgr.Load(ctx, res.SnapshotURI)
	require.NoError(t, err)
	assert.Equal(t, res.SnapshotMarker, loaded.Marker())
	assert.Equal(t, 5, loaded.Meta().TotalRows())
}

func TestBuildIdempotent(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewCorpus()
	c.Manifest(t, "m1", c.Part(t, model.DocChunk, model.SectionCore, docRows("c1", "c2")))
	c.Manifest(t, "m2", c.Part(t, model.DocChunk, model.SectionCore, docRows("c2", "c3")))

	first, err := newBuilder(c, blobstore.NewMemoryStore()).Build(ctx, nil, c.All(t))
	require.NoError(t, err)
	second, err := newBuilder(c, blobstore.NewMemoryStore()).Build(ctx, nil, c.All(t))
	require.NoError(t, err)

	assert.Equal(t, first.SnapshotMarker, second.SnapshotMarker)
	assert.Equal(t, first.Snapshot.Meta().RowCounts, second.Snapshot.Meta().RowCounts)
	assert.Equal(t, 3, first.TotalRows)
	assert.Equal(t, 1, first.DuplicatesSkipped[model.DocChunk])

	t.Run("replay on top of own result is skipped", func(t *testing.T) {
		snaps := blobstore.NewMemoryStore()
		again, err := newBuilder(c, snaps).Build(ctx, first.Snapshot, c.All(t))
		require.NoError(t, err)
		assert.True(t, again.Skipped)
		assert.Equal(t, first.SnapshotMarker, again.SnapshotMarker)
		names, err := snaps.List(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestBuildIncremental(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewCorpus()
	c.Manifest(t, "m1",
		c.Part(t, model.DocChunk, model.SectionCore, docRows("c1")),
		c.Part(t, model.VideoClip, model.SectionVector, clipRows("v1")),
	)
	snaps := blobstore.NewMemoryStore()
	b := newBuilder(c, snaps)

	base, err := b.Build(ctx, nil, c.All(t))
	require.NoError(t, err)

	c.Manifest(t, "m2", c.Part(t, model.DocChunk, model.SectionCore, []testutil.Row{
		{"id": "c9", "asset_id": "doc-9", "content": "new", "text_vector": testutil.Axis(4, 2), "source_type": "upload"},
	}))
	next, err := b.Build(ctx, base.Snapshot, c.All(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"m2"}, next.NewManifests)
	assert.Equal(t, []string{"m1", "m2"}, next.AppliedManifests)
	assert.Equal(t, []string{"DocChunk.text_vector"}, next.RebuiltIndexes)
	assert.Greater(t, next.SnapshotMarker, base.SnapshotMarker)

	full, err := newBuilder(c, blobstore.NewMemoryStore()).Build(ctx, nil, c.All(t))
	require.NoError(t, err)
	assert.Equal(t, full.SnapshotMarker, next.SnapshotMarker)

	key := ann.Key{VertexType: model.VideoClip, Column: model.ColVideoVector}
	assert.Same(t, base.Snapshot.Vector(key), next.Snapshot.Vector(key))

	tbl := next.Snapshot.Table(model.DocChunk)
	row, ok := tbl.Lookup("c1")
	require.True(t, ok)
	assert.True(t, tbl.Column("source_type").IsNull(row))

	// The base snapshot is unchanged.
	assert.Equal(t, 1, base.Snapshot.Table(model.DocChunk).Rows())
	assert.Nil(t, base.Snapshot.Table(model.DocChunk).Column("source_type"))
}

func TestBuildMultiSectionMerge(t *testing.T) {
	c := testutil.NewCorpus()
	c.Manifest(t, "m1",
		c.Part(t, model.Transcript, model.SectionCore, []testutil.Row{{"id": "t1", "asset_id": "vid-1", "start_ms": 0, "end_ms": 4000}}),
		c.Part(t, model.Transcript, model.SectionText, []testutil.Row{{"id": "t1", "content": "hello world"}}),
		c.PartAt(t, "parts/Transcript/vector.json.zst", model.Transcript, model.SectionVector,
			[]testutil.Row{{"id": "t1", "text_vector": testutil.Axis(4, 1)}}),
	)

	res, err := newBuilder(c, blobstore.NewMemoryStore()).Build(context.Background(), nil, c.All(t))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsAddedByTable[model.Transcript])

	tbl := res.Snapshot.Table(model.Transcript)
	s, ok := tbl.String(0, model.ColContent)
	require.True(t, ok)
	assert.Equal(t, "hello world", s)
	_, ok = tbl.Column(model.ColTextVector).Vector(0)
	assert.True(t, ok)
	assert.Equal(t, 1, res.Snapshot.Lexical().Len())
}

func TestBuildStrictFailure(t *testing.T) {
	c := testutil.NewCorpus()
	c.Manifest(t, "m1", c.Part(t, model.DocChunk, model.SectionCore, docRows("c1")))
	c.Manifest(t, "m2", manifest.FileRef{URI: "parts/gone.json", VertexType: model.DocChunk, Section: model.SectionCore, RowCount: 1})
	snaps := blobstore.NewMemoryStore()

	res, err := newBuilder(c, snaps).Build(context.Background(), nil, c.All(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingPart)

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "m2", be.ManifestID)
	assert.Equal(t, "parts/gone.json", be.URI)

	require.NotNil(t, res)
	assert.NotEmpty(t, res.Error)
	assert.Nil(t, res.Snapshot)
	names, _ := snaps.List(context.Background(), "")
	assert.Empty(t, names)
}

func TestBuildLenientSkipsManifest(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewCorpus()
	c.Manifest(t, "m1", c.Part(t, model.DocChunk, model.SectionCore, docRows("c1")))
	// m3 sends start_ms as a string, conflicting with the int column from m2.
	c.Manifest(t, "m2", c.Part(t, model.VideoClip, model.SectionCore, clipRows("v1")))
	c.Manifest(t, "m3",
		c.Part(t, model.DocChunk, model.SectionCore, docRows("c7")),
		c.Part(t, model.VideoClip, model.SectionCore, []testutil.Row{{"id": "v9", "asset_id": "vid-2", "start_ms": "late"}}),
	)
	c.Manifest(t, "m4", c.Part(t, model.DocChunk, model.SectionCore, docRows("c8")))

	lenient := func(o *Options) { o.Mode = ModeLenient }
	res, err := newBuilder(c, blobstore.NewMemoryStore(), lenient).Build(ctx, nil, c.All(t))
	require.NoError(t, err)

	require.Len(t, res.SkippedManifests, 1)
	assert.Equal(t, "m3", res.SkippedManifests[0].ID)
	assert.Contains(t, res.SkippedManifests[0].Reason, "start_ms")
	assert.Equal(t, []string{"m1", "m2", "m4"}, res.AppliedManifests)

	// Nothing of m3 was applied, including its valid DocChunk part.
	_, ok := res.Snapshot.Table(model.DocChunk).Lookup("c7")
	assert.False(t, ok)
	_, ok = res.Snapshot.Table(model.DocChunk).Lookup("c8")
	assert.True(t, ok)

	t.Run("strict aborts on the same input", func(t *testing.T) {
		_, err := newBuilder(c, blobstore.NewMemoryStore()).Build(ctx, nil, c.All(t))
		var sce *columnar.SchemaConflictError
		assert.ErrorAs(t, err, &sce)
	})
}

func TestBuildCorruptPart(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewCorpus()
	f := c.Part(t, model.DocChunk, model.SectionCore, docRows("c1"))
	require.NoError(t, c.Parts.Put(ctx, f.URI, []byte(`{"columns":[]}`)))
	c.Manifest(t, "m1", f)

	_, err := newBuilder(c, blobstore.NewMemoryStore()).Build(ctx, nil, c.All(t))
	assert.ErrorIs(t, err, columnar.ErrCorruptPart)
}

func TestBuildInProgress(t *testing.T) {
	b := New(blobstore.NewMemoryStore(), blobstore.NewMemoryStore())
	require.True(t, b.opts.Resources.TryAcquireBuild())
	defer b.opts.Resources.ReleaseBuild()

	_, err := b.Build(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrBuildInProgress)
}

func TestBuildCompressionCodecs(t *testing.T) {
	for _, codec := range []compress.Codec{compress.None, compress.LZ4, compress.Zstd} {
		t.Run(codec.String(), func(t *testing.T) {
			ctx := context.Background()
			c := testutil.NewCorpus()
			c.Manifest(t, "m1", c.Part(t, model.DocChunk, model.SectionCore, docRows("c1", "c2")))
			snaps := blobstore.NewMemoryStore()

			res, err := newBuilder(c, snaps, func(o *Options) {
				o.Compression = codec
			}).Build(ctx, nil, c.All(t))
			require.NoError(t, err)

			loaded, err := snapshot.NewManager(snaps).Load(ctx, res.SnapshotURI)
			require.NoError(t, err)
			assert.Equal(t, 2, loaded.Meta().TotalRows())
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, m)
	m, err = ParseMode("lenient")
	require.NoError(t, err)
	assert.Equal(t, ModeLenient, m)
	_, err = ParseMode("yolo")
	assert.Error(t, err)
}

func TestBuildMarkerTracksManifestContent(t *testing.T) {
	ctx := context.Background()
	build := func(content string) *Result {
		c := testutil.NewCorpus()
		rows := docRows("c1")
		rows[0]["content"] = content
		c.Manifest(t, "m1", c.Part(t, model.DocChunk, model.SectionCore, rows))
		res, err := newBuilder(c, blobstore.NewMemoryStore()).Build(ctx, nil, c.All(t))
		require.NoError(t, err)
		return res
	}

	a, b := build("first"), build("second")
	assert.Equal(t, a.AppliedManifests, b.AppliedManifests)
	assert.NotEqual(t, a.SnapshotMarker, b.SnapshotMarker)
	assert.Equal(t, a.SnapshotMarker, build("first").SnapshotMarker)
}

func TestBuildAllNullVectorColumn(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewCorpus()
	c.Manifest(t, "m1", c.Part(t, model.DocChunk, model.SectionCore, docRows("c1", "c2")))

	// A part whose rows have no embedding yet carries an all-null vector column
	// without a dimension.
	data := []byte(`{"columns":[` +
		`{"name":"id","type":"string","values":["c3"]},` +
		`{"name":"asset_id","type":"string","values":["doc-c3"]},` +
		`{"name":"content","type":"string","values":["pending embedding"]},` +
		`{"name":"text_vector","type":"vector","values":[null]}]}`)
	uri := "parts/DocChunk/pending.json"
	require.NoError(t, c.Parts.Put(ctx, uri, data))
	c.Manifest(t, "m2", manifest.FileRef{URI: uri, VertexType: model.DocChunk, Section: model.SectionCore, RowCount: 1, Bytes: int64(len(data))})

	snaps := blobstore.NewMemoryStore()
	b := newBuilder(c, snaps)
	res, err := b.Build(ctx, nil, c.All(t))
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowsAddedByTable[model.DocChunk])
	assert.Empty(t, res.SkippedManifests)

	tbl := res.Snapshot.Table(model.DocChunk)
	assert.Equal(t, 4, tbl.Column(model.ColTextVector).Field().Dim)
	row, ok := tbl.Lookup("c3")
	require.True(t, ok)
	assert.True(t, tbl.Column(model.ColTextVector).IsNull(row))

	key := ann.Key{VertexType: model.DocChunk, Column: model.ColTextVector}
	assert.Equal(t, 2, res.Snapshot.Vector(key).Len())

	t.Run("null column first", func(t *testing.T) {
		c := testutil.NewCorpus()
		require.NoError(t, c.Parts.Put(ctx, uri, data))
		c.Manifest(t, "m1", manifest.FileRef{URI: uri, VertexType: model.DocChunk, Section: model.SectionCore, RowCount: 1})
		c.Manifest(t, "m2", c.Part(t, model.DocChunk, model.SectionCore, docRows("c1")))

		res, err := newBuilder(c, blobstore.NewMemoryStore()).Build(ctx, nil, c.All(t))
		require.NoError(t, err)
		tbl := res.Snapshot.Table(model.DocChunk)
		assert.Equal(t, 4, tbl.Column(model.ColTextVector).Field().Dim)
		assert.Equal(t, 1, res.Snapshot.Vector(key).Len())
	})
}
