package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecfuse/columnar"
	"github.com/hupe1980/vecfuse/filter"
	"github.com/hupe1980/vecfuse/model"
	"github.com/hupe1980/vecfuse/snapshot"
)

var (
	// ErrInvalidTopK is returned for a non-positive top_k.
	ErrInvalidTopK = errors.New("top_k must be positive")

	// ErrInvalidModality is returned for an unknown or unsupported modality.
	ErrInvalidModality = errors.New("invalid modality")
)

// Query is the input of a search.
type Query struct {
	Text string
	// ImageVector, when set, is the vision query instead of the embedded text.
	ImageVector []float32
}

// Result holds the ranked candidates of every modality that ran.
type Result struct {
	Candidates map[model.Modality][]model.Candidate
	// Skipped maps modalities that produced no list to the reason.
	Skipped   map[model.Modality]string
	Durations map[model.Modality]time.Duration
}

// Total returns the number of candidates across modalities.
func (r *Result) Total() int {
	n := 0
	for _, cs := range r.Candidates {
		n += len(cs)
	}
	return n
}

// Options configures an Engine.
type Options struct {
	// Strategies overrides the strategy table. Nil uses DefaultStrategies.
	Strategies map[model.Modality]Strategy
	// LexicalIDLikeOnly restricts fts to queries with identifier-like tokens.
	LexicalIDLikeOnly bool
	// Timeout bounds the modality searches of one Retrieve call. A modality
	// still running at the deadline is skipped with SkipTimeout. Zero disables it.
	Timeout time.Duration
	Logger  *slog.Logger
	// OnModality is called after each modality with its outcome.
	OnModality func(m model.Modality, d time.Duration, hits int, err error)
}

// DefaultOptions contains the default engine settings.
var DefaultOptions = Options{
	LexicalIDLikeOnly: true,
}

// Engine runs per-modality searches.
type Engine struct {
	strategies map[model.Modality]Strategy
	encoder    Encoder
	opts       Options
	log        *slog.Logger
}

// NewEngine creates an engine embedding queries with encoder. encoder may be nil,
// in which case only image-vector and keyword queries run.
func NewEngine(encoder Encoder, optFns ...func(o *Options)) *Engine {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	strategies := opts.Strategies
	if strategies == nil {
		strategies = DefaultStrategies(opts.LexicalIDLikeOnly)
	}
	return &Engine{strategies: strategies, encoder: encoder, opts: opts, log: opts.Logger}
}

// Supports reports whether m has a strategy.
func (e *Engine) Supports(m model.Modality) bool {
	_, ok := e.strategies[m]
	return ok
}

// Request is the per-query state shared by the strategies of one Retrieve call.
type Request struct {
	Snapshot *snapshot.Snapshot
	Query    Query
	Program  *filter.Program
	TopK     int
	Encoder  Encoder

	mu     sync.Mutex
	allows map[model.VertexType]*allowEntry
}

type allowEntry struct {
	once sync.Once
	bm   *roaring.Bitmap
	err  error
}

// allow returns the filter bitmap of a table, computing it once per request.
// nil means unrestricted.
func (r *Request) allow(ctx context.Context, vt model.VertexType) (*roaring.Bitmap, error) {
	if r.Program.Empty() {
		return nil, nil
	}
	r.mu.Lock()
	if r.allows == nil {
		r.allows = make(map[model.VertexType]*allowEntry)
	}
	e, ok := r.allows[vt]
	if !ok {
		e = &allowEntry{}
		r.allows[vt] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		t := r.Snapshot.Table(vt)
		if t == nil {
			e.bm = roaring.New()
			return
		}
		e.bm, e.err = r.Program.Allow(ctx, t, func(row uint32) filter.Record {
			return r.record(t, row)
		})
	})
	return e.bm, e.err
}

func (r *Request) record(t *columnar.Table, row uint32) filter.RowRecord {
	rec := filter.RowRecord{Table: t, Row: row}
	if t.VertexType() == model.MediaAsset {
		return rec
	}
	if asset, ok := t.String(row, model.ColAssetID); ok {
		if arow, ok := r.Snapshot.AssetRow(asset); ok {
			rec.Asset = r.Snapshot.Table(model.MediaAsset)
			rec.AssetRow = arow
			rec.HasAsset = true
		}
	}
	return rec
}

// candidate materializes a hit on row of t.
func (r *Request) candidate(t *columnar.Table, row uint32, m model.Modality, sim float64) model.Candidate {
	c := model.Candidate{
		ID:         t.ID(row),
		VertexType: t.VertexType(),
		Row:        row,
		Modality:   m,
		Similarity: sim,
	}
	c.AssetID, _ = t.String(row, model.ColAssetID)
	if v, ok := r.record(t, row).Get(model.ColAssetType); ok {
		c.AssetType, _ = v.(string)
	}
	if v, ok := t.Int(row, model.ColStartMs); ok {
		c.StartMs = model.Int64(v)
	}
	if v, ok := t.Int(row, model.ColEndMs); ok {
		c.EndMs = model.Int64(v)
	}
	if c.StartMs == nil && c.EndMs == nil {
		if v, ok := t.Int(row, model.ColTimestampMs); ok {
			c.StartMs, c.EndMs = model.Int64(v), model.Int64(v)
		}
	}
	if col := t.VertexType().TextColumn(); col != "" {
		c.Text, _ = t.String(row, col)
	}
	return c
}

// SkipTimeout is the skip reason of a modality that outlived Options.Timeout.
const SkipTimeout = "timeout"

// Retrieve runs the strategies of modalities concurrently against snap. A
// modality that fails or times out is recorded in Result.Skipped; only invalid
// arguments and cancellation of ctx are returned as errors.
func (e *Engine) Retrieve(ctx context.Context, snap *snapshot.Snapshot, q Query, modalities []model.Modality, program *filter.Program, topK int) (*Result, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTopK, topK)
	}
	seen := make(map[model.Modality]bool, len(modalities))
	var run []model.Modality
	for _, m := range modalities {
		if _, ok := e.strategies[m]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidModality, m)
		}
		if !seen[m] {
			seen[m] = true
			run = append(run, m)
		}
	}

	req := &Request{Snapshot: snap, Query: q, Program: program, TopK: topK, Encoder: e.encoder}
	lists := make([][]model.Candidate, len(run))
	errs := make([]error, len(run))
	durs := make([]time.Duration, len(run))

	mctx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	var g errgroup.Group
	for i, m := range run {
		g.Go(func() error {
			start := time.Now()
			cs, err := e.strategies[m].Search(mctx, req)
			durs[i] = time.Since(start)
			lists[i], errs[i] = cs, err
			if e.opts.OnModality != nil {
				e.opts.OnModality(m, durs[i], len(cs), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Candidates: make(map[model.Modality][]model.Candidate, len(run)),
		Skipped:    make(map[model.Modality]string),
		Durations:  make(map[model.Modality]time.Duration, len(run)),
	}
	for i, m := range run {
		res.Durations[m] = durs[i]
		if err := errs[i]; err != nil {
			var s errSkip
			if errors.Is(err, context.DeadlineExceeded) && mctx.Err() != nil {
				res.Skipped[m] = SkipTimeout
				e.log.Warn("modality search timed out", "modality", m, "timeout", e.opts.Timeout)
			} else if errors.As(err, &s) {
				res.Skipped[m] = string(s)
				e.log.Debug("modality skipped", "modality", m, "reason", string(s))
			} else {
				res.Skipped[m] = "error: " + err.Error()
				e.log.Warn("modality search failed", "modality", m, "error", err)
			}
			continue
		}
		cs := lists[i]
		for r := range cs {
			cs[r].Rank = r + 1
		}
		res.Candidates[m] = cs
	}
	return res, nil
}
