package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecfuse/ann"
	"github.com/hupe1980/vecfuse/blobstore"
	"github.com/hupe1980/vecfuse/columnar"
	"github.com/hupe1980/vecfuse/internal/compress"
	"github.com/hupe1980/vecfuse/internal/resource"
	"github.com/hupe1980/vecfuse/manifest"
	"github.com/hupe1980/vecfuse/model"
	"github.com/hupe1980/vecfuse/snapshot"
)

// Mode selects how a failing manifest is handled.
type Mode string

const (
	// ModeStrict aborts the whole build.
	ModeStrict Mode = "strict"
	// ModeLenient skips the offending manifest and records it.
	ModeLenient Mode = "lenient"
)

// ParseMode parses a mode name. The empty string is strict.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeLenient:
		return ModeLenient, nil
	default:
		return "", fmt.Errorf("unknown build mode %q", s)
	}
}

// Options configures a Builder.
type Options struct {
	Mode Mode
	// Parallelism bounds concurrent part fetches and index builds.
	Parallelism int
	// Compression is the snapshot payload codec.
	Compression compress.Codec
	// Prefix is the directory of snapshot files in the snapshot store.
	Prefix string
	// Factory builds vector indexes. Defaults to ann.NewFlat.
	Factory ann.Factory
	// Resources gates concurrent builds and throttles uploads. Nil means a
	// single-build controller without upload limit.
	Resources *resource.Controller
	Logger    *slog.Logger
	Now       func() time.Time
}

// DefaultOptions contains the default build settings.
var DefaultOptions = Options{
	Mode:        ModeStrict,
	Parallelism: 4,
	Compression: compress.Zstd,
	Prefix:      "snapshots",
}

// Builder turns manifests into snapshots.
type Builder struct {
	parts     blobstore.BlobStore
	snapshots blobstore.BlobStore
	opts      Options
	log       *slog.Logger
}

// New creates a builder reading part files from parts and writing snapshots to snapshots.
func New(parts, snapshots blobstore.BlobStore, optFns ...func(o *Options)) *Builder {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Resources == nil {
		opts.Resources = resource.NewController(resource.Config{})
	}
	return &Builder{
		parts:     parts,
		snapshots: snapshots,
		opts:      opts,
		log:       opts.Logger,
	}
}

// Options returns the effective options.
func (b *Builder) Options() Options { return b.opts }

type tableStats struct {
	added, skipped int
}

// Build applies the manifests not yet applied to base and persists the resulting
// snapshot. A nil base is the empty snapshot. When nothing new is applied the
// result is Skipped and nothing is written.
//
// On failure the returned Result carries the error text and no snapshot.
func (b *Builder) Build(ctx context.Context, base *snapshot.Snapshot, manifests []*manifest.Manifest) (*Result, error) {
	if !b.opts.Resources.TryAcquireBuild() {
		return nil, ErrBuildInProgress
	}
	defer b.opts.Resources.ReleaseBuild()

	res := &Result{
		BuildID:           uuid.NewString(),
		Mode:              b.opts.Mode,
		RowsAddedByTable:  make(map[model.VertexType]int),
		DuplicatesSkipped: make(map[model.VertexType]int),
	}
	log := b.log.With("build_id", res.BuildID)

	// Load base.
	start := time.Now()
	if base == nil {
		base = snapshot.Empty()
	}
	res.fromBase(base)
	applied := append([]string(nil), base.Meta().AppliedManifests...)
	digests := make(map[string]string, len(applied))
	for _, id := range applied {
		digests[id] = base.Meta().ManifestDigests[id]
	}
	pending := pendingManifests(applied, manifests)
	index := base.Index().Clone()
	res.Timings.LoadBase = time.Since(start)

	if len(pending) == 0 {
		res.Skipped = true
		log.Info("build skipped, no new manifests", "marker", res.SnapshotMarker)
		return res, nil
	}

	// Apply deltas.
	start = time.Now()
	touched := make(map[model.VertexType]bool)
	for _, m := range pending {
		stats, err := b.applyManifest(ctx, index, m)
		if err != nil {
			if b.opts.Mode == ModeLenient && ctx.Err() == nil {
				res.SkippedManifests = append(res.SkippedManifests, SkippedManifest{ID: m.ID, Reason: err.Error()})
				log.Warn("manifest skipped", "manifest_id", m.ID, "error", err)
				continue
			}
			return b.fail(res, err)
		}
		applied = append(applied, m.ID)
		digests[m.ID] = m.Digest()
		res.NewManifests = append(res.NewManifests, m.ID)
		for vt, s := range stats {
			res.RowsAddedByTable[vt] += s.added
			res.DuplicatesSkipped[vt] += s.skipped
			if s.added > 0 {
				touched[vt] = true
			}
		}
	}
	res.Timings.ApplyDeltas = time.Since(start)

	if len(res.NewManifests) == 0 {
		res.Skipped = true
		log.Warn("build skipped, every new manifest was rejected", "skipped", len(res.SkippedManifests))
		return res, nil
	}

	// Build vectors.
	start = time.Now()
	vectors, rebuilt, err := b.buildVectors(ctx, base, index, touched)
	if err != nil {
		return b.fail(res, &Error{Phase: PhaseBuildVectors, Err: err})
	}
	for _, k := range rebuilt {
		res.RebuiltIndexes = append(res.RebuiltIndexes, k.String())
	}
	lex := snapshot.BuildLexical(index)
	res.Timings.BuildVectors = time.Since(start)

	fp := manifest.Fingerprint(digests)
	meta := snapshot.Meta{
		Marker:              manifest.Marker(len(applied), fp),
		BuildID:             res.BuildID,
		ManifestCount:       len(applied),
		ManifestFingerprint: fp,
		AppliedManifests:    applied,
		ManifestDigests:     digests,
		RowCounts:           index.RowCounts(),
		Timings:             res.Timings,
		CreatedAt:           b.opts.Now().UTC(),
	}
	snap := snapshot.New(meta, index, vectors, lex)

	// Write.
	start = time.Now()
	data, err := snapshot.Encode(snap, b.opts.Compression)
	if err != nil {
		return b.fail(res, &Error{Phase: PhaseWrite, Err: err})
	}
	res.Timings.Write = time.Since(start)

	// Upload.
	start = time.Now()
	uri := snapshot.FileName(b.opts.Prefix, meta.Marker)
	if err := b.opts.Resources.AcquireUpload(ctx, len(data)); err != nil {
		return b.fail(res, &Error{Phase: PhaseUpload, Err: err})
	}
	if err := b.snapshots.Put(ctx, uri, data); err != nil {
		return b.fail(res, &Error{Phase: PhaseUpload, URI: uri, Err: err})
	}
	res.Timings.Upload = time.Since(start)

	res.SnapshotMarker = meta.Marker
	res.SnapshotURI = uri
	res.ManifestCount = meta.ManifestCount
	res.ManifestFingerprint = fp
	res.AppliedManifests = applied
	res.TotalRows = index.TotalRows()
	res.SizeBytes = int64(len(data))
	res.SizeDelta = res.SizeBytes - b.sizeOf(ctx, base.URI())
	res.Snapshot = snap.WithURI(uri).WithTimings(res.Timings)

	if err := b.writeReport(ctx, res); err != nil {
		// The snapshot itself is complete; a missing sidecar only loses the report.
		log.Warn("build report not written", "uri", uri, "error", err)
	}

	log.Info("build complete",
		"marker", res.SnapshotMarker,
		"new_manifests", len(res.NewManifests),
		"skipped_manifests", len(res.SkippedManifests),
		"total_rows", res.TotalRows,
		"size_bytes", res.SizeBytes,
		"duration", res.Timings.Total(),
	)
	return res, nil
}

func (b *Builder) fail(res *Result, err error) (*Result, error) {
	res.Error = err.Error()
	res.Snapshot = nil
	b.log.Error("build failed", "build_id", res.BuildID, "error", err)
	return res, err
}

// pendingManifests returns the manifests whose ids are not in applied, deduplicated
// and ordered by (CreatedAt, ID).
func pendingManifests(applied []string, manifests []*manifest.Manifest) []*manifest.Manifest {
	done := make(map[string]bool, len(applied))
	for _, id := range applied {
		done[id] = true
	}
	var out []*manifest.Manifest
	for _, m := range manifests {
		if m == nil || done[m.ID] {
			continue
		}
		done[m.ID] = true
		out = append(out, m)
	}
	manifest.SortManifests(out)
	return out
}

// applyManifest appends every part of m to index. Nothing is appended unless every
// part decodes and every batch validates against its table.
func (b *Builder) applyManifest(ctx context.Context, index *columnar.Index, m *manifest.Manifest) (map[model.VertexType]tableStats, error) {
	if err := m.Validate(); err != nil {
		return nil, &Error{Phase: PhaseApplyDeltas, ManifestID: m.ID, Err: err}
	}

	parts := make([]*columnar.Part, len(m.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Parallelism)
	for i, f := range m.Files {
		g.Go(func() error {
			p, err := b.loadPart(gctx, f)
			if err != nil {
				return &Error{Phase: PhaseApplyDeltas, ManifestID: m.ID, URI: f.URI, Err: err}
			}
			parts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byType := make(map[model.VertexType][]*columnar.Part)
	for i, f := range m.Files {
		byType[f.VertexType] = append(byType[f.VertexType], parts[i])
	}

	batches := make(map[model.VertexType]*columnar.Batch, len(byType))
	for _, vt := range m.VertexTypes() {
		batch, err := columnar.MergeParts(vt, byType[vt]...)
		if err != nil {
			return nil, &Error{Phase: PhaseApplyDeltas, ManifestID: m.ID, Err: fmt.Errorf("%s: %w", vt, err)}
		}
		t := index.Table(vt)
		if t == nil {
			t = columnar.NewTable(vt)
		}
		if err := t.Validate(batch); err != nil {
			return nil, &Error{Phase: PhaseApplyDeltas, ManifestID: m.ID, Err: fmt.Errorf("%s: %w", vt, err)}
		}
		batches[vt] = batch
	}

	stats := make(map[model.VertexType]tableStats, len(batches))
	results := make([]tableStats, len(batches))
	order := m.VertexTypes()
	g, _ = errgroup.WithContext(ctx)
	for i, vt := range order {
		g.Go(func() error {
			added, skipped, err := index.Mutable(vt).Append(batches[vt])
			if err != nil {
				return &Error{Phase: PhaseApplyDeltas, ManifestID: m.ID, Err: fmt.Errorf("%s: %w", vt, err)}
			}
			results[i] = tableStats{added: added, skipped: skipped}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, vt := range order {
		stats[vt] = results[i]
	}
	return stats, nil
}

func (b *Builder) loadPart(ctx context.Context, f manifest.FileRef) (*columnar.Part, error) {
	data, err := blobstore.ReadAll(ctx, b.parts, f.URI)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrMissingPart
		}
		return nil, err
	}
	if err := columnar.Verify(f.URI, data, f.ContentHash); err != nil {
		return nil, err
	}
	return columnar.DecodePart(f.URI, data, f.RowCount)
}

// buildVectors rebuilds the vector indexes of touched tables and reuses the rest
// from base. It returns the indexes and the rebuilt keys.
func (b *Builder) buildVectors(ctx context.Context, base *snapshot.Snapshot, index *columnar.Index, touched map[model.VertexType]bool) (map[ann.Key]ann.Index, []ann.Key, error) {
	vectors := make(map[ann.Key]ann.Index)
	var rebuild []ann.Key
	for _, key := range snapshot.AllVectorKeys(index) {
		if prev := base.Vector(key); prev != nil && !touched[key.VertexType] {
			vectors[key] = prev
			continue
		}
		rebuild = append(rebuild, key)
	}

	built, err := snapshot.BuildVectors(ctx, index, rebuild, b.opts.Factory, b.opts.Parallelism)
	if err != nil {
		return nil, nil, err
	}
	for k, idx := range built {
		vectors[k] = idx
	}
	sort.Slice(rebuild, func(i, j int) bool { return rebuild[i].String() < rebuild[j].String() })
	return vectors, rebuild, nil
}

func (b *Builder) sizeOf(ctx context.Context, uri string) int64 {
	if uri == "" {
		return 0
	}
	blob, err := b.snapshots.Open(ctx, uri)
	if err != nil {
		return 0
	}
	defer func() { _ = blob.Close() }()
	return blob.Size()
}

func (b *Builder) writeReport(ctx context.Context, res *Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return b.snapshots.Put(ctx, snapshot.ReportName(b.opts.Prefix, res.SnapshotMarker), data)
}

// ReadReport loads the build report sidecar of marker.
func ReadReport(ctx context.Context, store blobstore.BlobStore, prefix, marker string) (*Result, error) {
	data, err := blobstore.ReadAll(ctx, store, snapshot.ReportName(prefix, marker))
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if err := json.Unmarshal(data, res); err != nil {
		return nil, fmt.Errorf("decode build report: %w", err)
	}
	return res, nil
}
