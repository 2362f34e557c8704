package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/hupe1980/vecfuse/ann"
	"github.com/hupe1980/vecfuse/columnar"
	"github.com/hupe1980/vecfuse/lexical"
	"github.com/hupe1980/vecfuse/lexical/bm25"
	"github.com/hupe1980/vecfuse/manifest"
	"github.com/hupe1980/vecfuse/model"
	"golang.org/x/sync/errgroup"
)

// FileExt is the extension of snapshot files.
const FileExt = ".vfs"

// ReportExt is the extension of build report sidecars.
const ReportExt = ".report.json"

// FileName returns the blob name of the snapshot with marker under prefix.
func FileName(prefix, marker string) string {
	return path.Join(prefix, marker+FileExt)
}

// ReportName returns the blob name of the build report sidecar of marker.
func ReportName(prefix, marker string) string {
	return path.Join(prefix, marker+ReportExt)
}

// Timings records build phase durations.
type Timings struct {
	LoadBase     time.Duration `msgpack:"lb"`
	ApplyDeltas  time.Duration `msgpack:"ad"`
	BuildVectors time.Duration `msgpack:"bv"`
	Write        time.Duration `msgpack:"w"`
	Upload       time.Duration `msgpack:"u"`
}

// Total returns the sum of all phases.
func (t Timings) Total() time.Duration {
	return t.LoadBase + t.ApplyDeltas + t.BuildVectors + t.Write + t.Upload
}

type timingsJSON struct {
	LoadBase     float64 `json:"load_base_ms"`
	ApplyDeltas  float64 `json:"apply_deltas_ms"`
	BuildVectors float64 `json:"build_vectors_ms"`
	Write        float64 `json:"write_ms"`
	Upload       float64 `json:"upload_ms"`
	Total        float64 `json:"total_ms"`
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func fromMs(v float64) time.Duration { return time.Duration(v * float64(time.Millisecond)) }

// MarshalJSON renders durations as fractional milliseconds.
func (t Timings) MarshalJSON() ([]byte, error) {
	return json.Marshal(timingsJSON{
		LoadBase:     ms(t.LoadBase),
		ApplyDeltas:  ms(t.ApplyDeltas),
		BuildVectors: ms(t.BuildVectors),
		Write:        ms(t.Write),
		Upload:       ms(t.Upload),
		Total:        ms(t.Total()),
	})
}

// UnmarshalJSON parses the form written by MarshalJSON.
func (t *Timings) UnmarshalJSON(data []byte) error {
	var v timingsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = Timings{
		LoadBase:     fromMs(v.LoadBase),
		ApplyDeltas:  fromMs(v.ApplyDeltas),
		BuildVectors: fromMs(v.BuildVectors),
		Write:        fromMs(v.Write),
		Upload:       fromMs(v.Upload),
	}
	return nil
}

// Meta describes a snapshot.
type Meta struct {
	Marker              string                   `json:"snapshot_marker" msgpack:"marker"`
	URI                 string                   `json:"uri,omitempty" msgpack:"-"`
	BuildID             string                   `json:"build_id,omitempty" msgpack:"build_id"`
	ManifestCount       int                      `json:"manifest_count" msgpack:"mc"`
	ManifestFingerprint string                   `json:"manifest_fingerprint" msgpack:"mf"`
	AppliedManifests    []string                 `json:"applied_manifests" msgpack:"applied"`
	ManifestDigests     map[string]string        `json:"manifest_digests,omitempty" msgpack:"digests,omitempty"`
	RowCounts           map[model.VertexType]int `json:"row_counts" msgpack:"rows"`
	Timings             Timings                  `json:"timings" msgpack:"timings"`
	CreatedAt           time.Time                `json:"created_at" msgpack:"created"`
	Indexes             []ann.Key                `json:"indexes" msgpack:"indexes"`
}

// TotalRows returns the number of rows across all tables.
func (m Meta) TotalRows() int {
	total := 0
	for _, n := range m.RowCounts {
		total += n
	}
	return total
}

// Snapshot is an immutable, queryable materialization.
type Snapshot struct {
	meta    Meta
	index   *columnar.Index
	vectors map[ann.Key]ann.Index
	lexical lexical.Index
	assets  map[string]uint32
}

// Empty returns the snapshot of the empty manifest set.
func Empty() *Snapshot {
	fp := manifest.Fingerprint(nil)
	return New(Meta{
		Marker:              manifest.Marker(0, fp),
		ManifestFingerprint: fp,
		RowCounts:           map[model.VertexType]int{},
	}, columnar.NewIndex(), nil, bm25.New())
}

// New assembles a snapshot. index must no longer be written to.
func New(meta Meta, index *columnar.Index, vectors map[ann.Key]ann.Index, lex lexical.Index) *Snapshot {
	index.Freeze()
	if vectors == nil {
		vectors = map[ann.Key]ann.Index{}
	}
	if lex == nil {
		lex = bm25.New()
	}
	meta.Indexes = meta.Indexes[:0:0]
	for k := range vectors {
		meta.Indexes = append(meta.Indexes, k)
	}
	sort.Slice(meta.Indexes, func(i, j int) bool { return meta.Indexes[i].String() < meta.Indexes[j].String() })
	if meta.RowCounts == nil {
		meta.RowCounts = index.RowCounts()
	}

	s := &Snapshot{
		meta:    meta,
		index:   index,
		vectors: vectors,
		lexical: lex,
		assets:  make(map[string]uint32),
	}
	if t := index.Table(model.MediaAsset); t != nil {
		for row := 0; row < t.Rows(); row++ {
			if a, ok := t.String(uint32(row), model.ColAssetID); ok {
				if _, dup := s.assets[a]; !dup {
					s.assets[a] = uint32(row)
				}
			}
		}
	}
	return s
}

// Meta returns the snapshot metadata.
func (s *Snapshot) Meta() Meta { return s.meta }

// Marker returns the snapshot marker.
func (s *Snapshot) Marker() string { return s.meta.Marker }

// URI returns the blob name the snapshot was stored at, if any.
func (s *Snapshot) URI() string { return s.meta.URI }

// Index returns the columnar index. Callers must not modify it.
func (s *Snapshot) Index() *columnar.Index { return s.index }

// Table returns the table of vt, or nil.
func (s *Snapshot) Table(vt model.VertexType) *columnar.Table { return s.index.Table(vt) }

// Vector returns the vector index of a column, or nil.
func (s *Snapshot) Vector(key ann.Key) ann.Index { return s.vectors[key] }

// Vectors returns all vector indexes. Callers must not modify the map.
func (s *Snapshot) Vectors() map[ann.Key]ann.Index { return s.vectors }

// Lexical returns the keyword index.
func (s *Snapshot) Lexical() lexical.Index { return s.lexical }

// AssetRow returns the MediaAsset row of assetID.
func (s *Snapshot) AssetRow(assetID string) (uint32, bool) {
	row, ok := s.assets[assetID]
	return row, ok
}

// withURI returns a shallow copy carrying uri.
func (s *Snapshot) withURI(uri string) *Snapshot {
	cp := *s
	cp.meta.URI = uri
	return &cp
}

// WithURI returns a copy of s that records the blob name it is stored at.
func (s *Snapshot) WithURI(uri string) *Snapshot { return s.withURI(uri) }

// WithTimings returns a copy of s carrying the final build timings.
func (s *Snapshot) WithTimings(t Timings) *Snapshot {
	cp := *s
	cp.meta.Timings = t
	return &cp
}

// BuildVectors builds the vector indexes of keys concurrently.
func BuildVectors(ctx context.Context, index *columnar.Index, keys []ann.Key, factory ann.Factory, parallelism int) (map[ann.Key]ann.Index, error) {
	out := make(map[ann.Key]ann.Index, len(keys))
	built := make([]ann.Index, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t := index.Table(key.VertexType)
			if t == nil {
				return fmt.Errorf("%s: %w", key, columnar.ErrUnknownColumn)
			}
			idx, err := ann.Build(t, key.Column, factory)
			if err != nil {
				return err
			}
			built[i] = idx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, key := range keys {
		out[key] = built[i]
	}
	return out, nil
}

// AllVectorKeys lists every vector column of index.
func AllVectorKeys(index *columnar.Index) []ann.Key {
	var keys []ann.Key
	for _, t := range index.Tables() {
		for _, col := range ann.VectorColumns(t) {
			keys = append(keys, ann.Key{VertexType: t.VertexType(), Column: col})
		}
	}
	return keys
}

// BuildLexical indexes the text of every text-bearing row of index.
func BuildLexical(index *columnar.Index) *bm25.MemoryIndex {
	lex := bm25.New()
	for _, t := range index.Tables() {
		col := t.VertexType().TextColumn()
		if col == "" || t.Column(col) == nil {
			continue
		}
		for row := 0; row < t.Rows(); row++ {
			if text, ok := t.String(uint32(row), col); ok {
				lex.Add(lexical.DocRef{VertexType: t.VertexType(), Row: uint32(row)}, text)
			}
		}
	}
	return lex
}

// Materialize rebuilds every derived index of a decoded columnar index.
func Materialize(ctx context.Context, meta Meta, index *columnar.Index, factory ann.Factory, parallelism int) (*Snapshot, error) {
	vectors, err := BuildVectors(ctx, index, AllVectorKeys(index), factory, parallelism)
	if err != nil {
		return nil, err
	}
	return New(meta, index, vectors, BuildLexical(index)), nil
}
