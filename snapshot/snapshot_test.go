package snapshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/vecfuse/ann"
	"github.com/hupe1980/vecfuse/blobstore"
	"github.com/hupe1980/vecfuse/columnar"
	"github.com/hupe1980/vecfuse/internal/compress"
	"github.com/hupe1980/vecfuse/manifest"
	"github.com/hupe1980/vecfuse/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex(t *testing.T, ids ...string) *columnar.Index {
	t.Helper()
	assets := make([]any, len(ids))
	content := make([]any, len(ids))
	vecs := make([]any, len(ids))
	for i, id := range ids {
		assets[i] = "asset-" + id
		content[i] = "chunk about " + id
		vecs[i] = []float32{float32(i + 1), 1, 0}
	}
	b := &columnar.Batch{
		VertexType: model.DocChunk,
		Schema: columnar.Schema{Fields: []columnar.Field{
			{Name: model.ColID, Type: columnar.TypeString},
			{Name: model.ColAssetID, Type: columnar.TypeString},
			{Name: model.ColContent, Type: columnar.TypeString},
			{Name: model.ColTextVector, Type: columnar.TypeVector, Dim: 3},
		}},
		IDs: ids,
		Values: map[string][]any{
			model.ColAssetID:    assets,
			model.ColContent:    content,
			model.ColTextVector: vecs,
		},
	}
	idx := columnar.NewIndex()
	_, _, err := idx.Apply(b)
	require.NoError(t, err)
	return idx
}

func testSnapshot(t *testing.T, count int, ids ...string) *Snapshot {
	t.Helper()
	applied := make([]string, count)
	digests := make(map[string]string, count)
	for i := range applied {
		applied[i] = "m" + string(rune('a'+i))
		digests[applied[i]] = "digest-" + applied[i]
	}
	fp := manifest.Fingerprint(digests)
	s, err := Materialize(context.Background(), Meta{
		Marker:              manifest.Marker(count, fp),
		ManifestCount:       count,
		ManifestFingerprint: fp,
		AppliedManifests:    applied,
		ManifestDigests:     digests,
		CreatedAt:           time.Unix(1700000000, 0).UTC(),
	}, testIndex(t, ids...), nil, 2)
	require.NoError(t, err)
	return s
}

func store(t *testing.T, bs blobstore.BlobStore, s *Snapshot) *Snapshot {
	t.Helper()
	data, err := Encode(s, compress.Zstd)
	require.NoError(t, err)
	name := FileName("snapshots", s.Marker())
	require.NoError(t, bs.Put(context.Background(), name, data))
	return s.WithURI(name)
}

func TestEmpty(t *testing.T) {
	s := Empty()
	assert.Equal(t, manifest.Marker(0, manifest.Fingerprint(nil)), s.Marker())
	assert.Equal(t, 0, s.Meta().TotalRows())
	assert.Empty(t, s.Vectors())
	assert.Equal(t, 0, s.Lexical().Len())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, codec := range []compress.Codec{compress.None, compress.LZ4, compress.Zstd} {
		t.Run(codec.String(), func(t *testing.T) {
			orig := testSnapshot(t, 2, "c1", "c2", "c3")
			data, err := Encode(orig, codec)
			require.NoError(t, err)

			got, err := Decode(context.Background(), data, nil, 2)
			require.NoError(t, err)
			assert.Equal(t, orig.Marker(), got.Marker())
			assert.Equal(t, orig.Meta().AppliedManifests, got.Meta().AppliedManifests)
			assert.Equal(t, orig.Meta().ManifestDigests, got.Meta().ManifestDigests)
			assert.Equal(t, 3, got.Meta().RowCounts[model.DocChunk])

			key := ann.Key{VertexType: model.DocChunk, Column: model.ColTextVector}
			require.NotNil(t, got.Vector(key))
			assert.Equal(t, 3, got.Vector(key).Len())
			assert.Equal(t, 3, got.Lexical().Len())

			tbl := got.Table(model.DocChunk)
			row, ok := tbl.Lookup("c2")
			require.True(t, ok)
			a, _ := tbl.String(row, model.ColAssetID)
			assert.Equal(t, "asset-c2", a)
		})
	}
}

func TestDecodeCorrupt(t *testing.T) {
	data, err := Encode(testSnapshot(t, 1, "c1"), compress.Zstd)
	require.NoError(t, err)

	t.Run("truncated", func(t *testing.T) {
		_, err := Decode(context.Background(), data[:5], nil, 1)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] = 'X'
		_, err := Decode(context.Background(), bad, nil, 1)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("flipped payload byte", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[headerSize+3] ^= 0xff
		_, err := Decode(context.Background(), bad, nil, 1)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestAssetRow(t *testing.T) {
	idx := columnar.NewIndex()
	_, _, err := idx.Apply(&columnar.Batch{
		VertexType: model.MediaAsset,
		Schema: columnar.Schema{Fields: []columnar.Field{
			{Name: model.ColID, Type: columnar.TypeString},
			{Name: model.ColAssetID, Type: columnar.TypeString},
		}},
		IDs:    []string{"a1", "a2"},
		Values: map[string][]any{model.ColAssetID: {"asset-1", "asset-2"}},
	})
	require.NoError(t, err)

	s := New(Meta{Marker: "m"}, idx, nil, nil)
	row, ok := s.AssetRow("asset-2")
	require.True(t, ok)
	assert.Equal(t, uint32(1), row)
	_, ok = s.AssetRow("missing")
	assert.False(t, ok)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestManager(bs blobstore.BlobStore, c *clock) *Manager {
	return NewManager(bs, func(o *Options) {
		o.Retention = time.Minute
		o.Now = c.Now
	})
}

func TestManagerActivate(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	c := &clock{now: time.Unix(1700000000, 0)}
	m := newTestManager(bs, c)

	assert.Equal(t, Empty().Marker(), m.Current().Marker())

	s1 := store(t, bs, testSnapshot(t, 1, "c1"))
	require.NoError(t, m.Activate(ctx, s1))
	assert.Equal(t, s1.Marker(), m.Current().Marker())

	ptr, err := blobstore.ReadAll(ctx, bs, PointerName)
	require.NoError(t, err)
	assert.Equal(t, s1.URI(), string(ptr))

	st := m.Status()
	assert.Equal(t, s1.Marker(), st.Active.Marker)
	require.NotNil(t, st.Previous)
	assert.Equal(t, Empty().Marker(), st.Previous.Marker)
	assert.Equal(t, int64(1), st.Activations)

	assert.ErrorIs(t, m.Activate(ctx, nil), ErrInvalidSnapshot)
}

func TestManagerReloadFailureKeepsActive(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	m := newTestManager(bs, &clock{now: time.Unix(1700000000, 0)})

	s1 := store(t, bs, testSnapshot(t, 1, "c1"))
	require.NoError(t, m.Reload(ctx, s1.URI()))

	require.NoError(t, bs.Put(ctx, "snapshots/broken.vfs", []byte("not a snapshot")))
	err := m.Reload(ctx, "snapshots/broken.vfs")

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "snapshots/broken.vfs", le.URI)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, s1.Marker(), m.Current().Marker())
	assert.NotEmpty(t, m.Status().LastLoadError)

	err = m.Reload(ctx, "snapshots/missing.vfs")
	assert.True(t, errors.Is(err, blobstore.ErrNotFound))
	assert.Equal(t, s1.Marker(), m.Current().Marker())
}

func TestManagerRollback(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	c := &clock{now: time.Unix(1700000000, 0)}
	m := newTestManager(bs, c)

	s1 := store(t, bs, testSnapshot(t, 1, "c1"))
	s2 := store(t, bs, testSnapshot(t, 2, "c1", "c2"))
	require.NoError(t, m.Activate(ctx, s1))
	require.NoError(t, m.Activate(ctx, s2))

	t.Run("retained swap", func(t *testing.T) {
		require.NoError(t, m.Rollback(ctx, ""))
		assert.Same(t, s1, m.Current())
	})

	t.Run("reload after retention", func(t *testing.T) {
		require.NoError(t, m.Activate(ctx, s2))
		c.now = c.now.Add(2 * time.Minute)
		require.NoError(t, m.Rollback(ctx, s1.URI()))
		assert.NotSame(t, s1, m.Current())
		assert.Equal(t, s1.Marker(), m.Current().Marker())
	})

	t.Run("nothing to roll back to", func(t *testing.T) {
		fresh := newTestManager(bs, c)
		assert.ErrorIs(t, fresh.Rollback(ctx, ""), ErrNoPrevious)
	})
}

func TestManagerConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	m := newTestManager(bs, &clock{now: time.Unix(1700000000, 0)})

	s1 := store(t, bs, testSnapshot(t, 1, "c1"))
	s2 := store(t, bs, testSnapshot(t, 2, "c1", "c2"))
	require.NoError(t, m.Activate(ctx, s1))
	require.NoError(t, m.Activate(ctx, s2))
	rows := map[string]int{s1.Marker(): 1, s2.Marker(): 2}

	var (
		wg   sync.WaitGroup
		stop atomic.Bool
		seen sync.Map
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				cur := m.Current()
				want, ok := rows[cur.Marker()]
				if !assert.True(t, ok, "unexpected marker %q", cur.Marker()) {
					return
				}
				assert.Equal(t, want, cur.Table(model.DocChunk).Rows())
				assert.Equal(t, want, cur.Meta().RowCounts[model.DocChunk])
				seen.Store(cur.Marker(), true)
			}
		}()
	}

	for range 50 {
		require.NoError(t, m.Rollback(ctx, ""))
	}
	stop.Store(true)
	wg.Wait()

	assert.Same(t, s2, m.Current())
	_, sawFirst := seen.Load(s1.Marker())
	_, sawSecond := seen.Load(s2.Marker())
	assert.True(t, sawFirst || sawSecond)
}

func TestManagerRestore(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	c := &clock{now: time.Unix(1700000000, 0)}

	m := newTestManager(bs, c)
	require.NoError(t, m.Restore(ctx))
	assert.Equal(t, Empty().Marker(), m.Current().Marker())

	s1 := store(t, bs, testSnapshot(t, 1, "c1"))
	require.NoError(t, m.Activate(ctx, s1))

	restarted := newTestManager(bs, c)
	require.NoError(t, restarted.Restore(ctx))
	assert.Equal(t, s1.Marker(), restarted.Current().Marker())
	assert.Equal(t, s1.URI(), restarted.Current().URI())
}

func TestManagerGC(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	m := newTestManager(bs, &clock{now: time.Unix(1700000000, 0)})

	var snaps []*Snapshot
	for i := 1; i <= 4; i++ {
		s := store(t, bs, testSnapshot(t, i, "c1"))
		require.NoError(t, bs.Put(ctx, ReportName("snapshots", s.Marker()), []byte("{}")))
		snaps = append(snaps, s)
	}
	// Activate the oldest: it must survive even beyond keep.
	require.NoError(t, m.Activate(ctx, snaps[0]))

	deleted, err := m.GC(ctx, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		snaps[1].URI(), ReportName("snapshots", snaps[1].Marker()),
	}, deleted)

	names, err := bs.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Contains(t, names, snaps[0].URI())
	assert.Contains(t, names, snaps[2].URI())
	assert.Contains(t, names, snaps[3].URI())

	latest, err := m.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, snaps[3].URI(), latest)
}
