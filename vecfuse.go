package vecfuse

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecfuse/blobstore"
	"github.com/hupe1980/vecfuse/builder"
	"github.com/hupe1980/vecfuse/filter"
	"github.com/hupe1980/vecfuse/fusion"
	"github.com/hupe1980/vecfuse/internal/compress"
	"github.com/hupe1980/vecfuse/internal/resource"
	"github.com/hupe1980/vecfuse/manifest"
	"github.com/hupe1980/vecfuse/model"
	"github.com/hupe1980/vecfuse/rerank"
	"github.com/hupe1980/vecfuse/retrieval"
	"github.com/hupe1980/vecfuse/snapshot"
)

// BuildReport is the result of BuildIndex. It is also stored as the JSON
// sidecar of each snapshot file.
type BuildReport = builder.Result

// Status describes the engine's snapshot state for operator tooling.
type Status struct {
	snapshot.Status
	LastBuild *BuildReport `json:"last_build,omitempty"`
}

// Engine serves searches against the active snapshot and builds new ones.
// It is safe for concurrent use.
type Engine struct {
	cfg       Config
	weights   fusion.WeightSet
	log       *Logger
	metrics   MetricsCollector
	manifests manifest.Store
	snapshots *snapshot.Manager
	builder   *builder.Builder
	retriever *retrieval.Engine
	reranker  *rerank.Stage
	allowlist filter.AllowlistLookup

	lastBuild atomic.Pointer[BuildReport]
	closed    atomic.Bool
}

// Open creates an engine reading manifests from manifests, part files from
// parts and snapshot files from snapshots. A nil cfg uses DefaultConfig.
//
// Open activates the snapshot named by the CURRENT pointer or, without one,
// the newest snapshot file. A snapshot that fails to load leaves the engine on
// the empty snapshot; the failure is logged and reported by SnapshotStatus.
func Open(ctx context.Context, cfg *Config, manifests manifest.Store, parts, snapshots blobstore.BlobStore, optFns ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	o := options{}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.now == nil {
		o.now = time.Now
	}

	mode, err := builder.ParseMode(cfg.Build.Mode)
	if err != nil {
		return nil, err
	}
	codec, err := compress.ParseCodec(cfg.Build.Compression)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       *cfg,
		weights:   cfg.Fusion.WeightSet(),
		log:       o.logger,
		metrics:   o.metricsCollector,
		manifests: manifests,
		allowlist: o.allowlist,
	}

	e.snapshots = snapshot.NewManager(snapshots, func(so *snapshot.Options) {
		so.Prefix = cfg.Build.SnapshotPrefix
		so.Retention = cfg.Snapshot.Retention
		so.PointerStore = o.pointerStore
		so.Parallelism = cfg.Build.Parallelism
		so.Logger = o.logger.Logger
		so.Now = o.now
		if o.factory != nil {
			so.Factory = o.factory
		}
	})

	e.builder = builder.New(parts, snapshots, func(bo *builder.Options) {
		bo.Mode = mode
		bo.Parallelism = cfg.Build.Parallelism
		bo.Compression = codec
		bo.Prefix = cfg.Build.SnapshotPrefix
		bo.Resources = resource.NewController(resource.Config{
			MaxConcurrentBuilds: 1,
			UploadBytesPerSec:   cfg.Build.UploadBytesPerSec,
		})
		bo.Logger = o.logger.Logger
		bo.Now = o.now
		if o.factory != nil {
			bo.Factory = o.factory
		}
	})

	encoder := o.encoder
	if encoder != nil && cfg.Retrieval.EncoderTimeout > 0 {
		encoder = timeoutEncoder{inner: encoder, timeout: cfg.Retrieval.EncoderTimeout}
	}
	e.retriever = retrieval.NewEngine(encoder, func(ro *retrieval.Options) {
		ro.LexicalIDLikeOnly = cfg.Retrieval.LexicalIDLikeOnly
		ro.Timeout = cfg.Retrieval.SearchTimeout
		ro.Logger = o.logger.Logger
		ro.OnModality = func(m model.Modality, d time.Duration, hits int, err error) {
			reason := ""
			if err != nil {
				reason = err.Error()
			}
			e.metrics.RecordModality(m, hits, d, reason)
		}
	})

	var r rerank.Reranker
	if cfg.Rerank.Enabled {
		r = o.reranker
	}
	e.reranker = rerank.NewStage(r, func(ro *rerank.Options) {
		ro.Timeout = cfg.Rerank.Timeout
		ro.MinCandidates = cfg.Rerank.MinCandidates
		ro.MaxCandidates = cfg.Rerank.MaxCandidates
		ro.ConfidenceGap = cfg.Rerank.ConfidenceGap
		ro.Logger = o.logger.Logger
	})

	if err := e.restore(ctx); err != nil {
		e.log.ErrorContext(ctx, "restore snapshot failed, serving empty snapshot", "error", err)
	}
	return e, nil
}

func (e *Engine) restore(ctx context.Context) error {
	if err := e.snapshots.Restore(ctx); err != nil {
		e.metrics.RecordActivate("", err)
		return translateError(err)
	}
	if e.snapshots.Current().Marker() != "" {
		e.metrics.RecordActivate(e.snapshots.Current().Marker(), nil)
		return nil
	}
	uri, err := e.snapshots.Latest(ctx)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return e.reload(ctx, "restore", uri)
}

// Snapshot returns the active snapshot.
func (e *Engine) Snapshot() *snapshot.Snapshot {
	return e.snapshots.Current()
}

// BuildIndex applies all manifests not yet in the active snapshot and, when
// build.activate_on_build is set, activates the result. A failed build leaves
// the active snapshot unchanged and returns a *BuildError alongside the
// report.
func (e *Engine) BuildIndex(ctx context.Context) (*BuildReport, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()

	ms, err := e.manifests.List(ctx)
	if err != nil {
		err = fmt.Errorf("list manifests: %w", err)
		e.metrics.RecordBuild(false, 0, time.Since(start), err)
		e.log.LogBuild(ctx, nil, err)
		return nil, err
	}

	res, err := e.builder.Build(ctx, e.snapshots.Current(), ms)
	rows := 0
	if res != nil {
		for _, n := range res.RowsAddedByTable {
			rows += n
		}
	}
	skipped := res != nil && res.Skipped
	e.metrics.RecordBuild(skipped, rows, time.Since(start), err)
	e.log.LogBuild(ctx, res, err)
	if res != nil {
		e.lastBuild.Store(res)
	}
	if err != nil {
		return res, translateError(err)
	}

	if !res.Skipped && e.cfg.Build.ActivateOnBuild {
		err := e.snapshots.Activate(ctx, res.Snapshot)
		e.metrics.RecordActivate(res.SnapshotMarker, err)
		e.log.LogActivate(ctx, "activate", res.SnapshotMarker, err)
		if err != nil {
			return res, translateError(err)
		}
	}
	return res, nil
}

// ReloadSnapshot loads and activates the snapshot file at uri. On failure the
// active snapshot stays active and a *SnapshotLoadError is returned.
func (e *Engine) ReloadSnapshot(ctx context.Context, uri string) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.reload(ctx, "reload", uri)
}

func (e *Engine) reload(ctx context.Context, op, uri string) error {
	err := e.snapshots.Reload(ctx, uri)
	marker := e.snapshots.Current().Marker()
	e.metrics.RecordActivate(marker, err)
	e.log.LogActivate(ctx, op, marker, err)
	return translateError(err)
}

// Rollback re-activates a previous snapshot. An empty uri selects the
// snapshot retained from the last activation.
func (e *Engine) Rollback(ctx context.Context, uri string) error {
	if e.closed.Load() {
		return ErrClosed
	}
	err := e.snapshots.Rollback(ctx, uri)
	marker := e.snapshots.Current().Marker()
	e.metrics.RecordActivate(marker, err)
	e.log.LogActivate(ctx, "rollback", marker, err)
	return translateError(err)
}

// SnapshotStatus reports the active snapshot, the rollback candidate and the
// last build.
func (e *Engine) SnapshotStatus() Status {
	return Status{
		Status:    e.snapshots.Status(),
		LastBuild: e.lastBuild.Load(),
	}
}

// GC deletes snapshot files beyond the newest keep, never the active or
// retained ones. keep <= 0 uses snapshot.keep from the config.
func (e *Engine) GC(ctx context.Context, keep int) ([]string, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if keep <= 0 {
		keep = e.cfg.Snapshot.Keep
	}
	deleted, err := e.snapshots.GC(ctx, keep)
	if err != nil {
		return deleted, err
	}
	if len(deleted) > 0 {
		e.log.InfoContext(ctx, "snapshot gc completed", "deleted", len(deleted))
	}
	return deleted, nil
}

// Watch runs BuildIndex whenever manifest files appear in dir, until ctx is
// cancelled. Build failures are logged and do not stop watching.
func (e *Engine) Watch(ctx context.Context, dir string) error {
	w := builder.NewWatcher(dir, func(ctx context.Context) error {
		_, err := e.BuildIndex(ctx)
		return err
	}, func(o *builder.WatchOptions) {
		if e.cfg.Build.WatchDebounce > 0 {
			o.Debounce = e.cfg.Build.WatchDebounce
		}
		o.Logger = e.log.Logger
	})
	return w.Run(ctx)
}

// Close marks the engine closed. Searches and operator calls fail with
// ErrClosed afterwards.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

type timeoutEncoder struct {
	inner   retrieval.Encoder
	timeout time.Duration
}

func (t timeoutEncoder) Encode(ctx context.Context, space retrieval.Space, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Encode(ctx, space, text)
}
