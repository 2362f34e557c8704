package rerank

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/hupe1980/vecfuse/model"
)

var (
	// ErrRerankTimeout is reported when the reranker does not answer in time.
	ErrRerankTimeout = errors.New("rerank timeout")

	// ErrRerankUnavailable is returned by rerankers that cannot serve right now.
	ErrRerankUnavailable = errors.New("reranker unavailable")
)

// Document is one text handed to a reranker.
type Document struct {
	ID   string
	Text string
}

// Reranker scores documents against a query. It returns one score per document,
// higher is better.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []Document) ([]float64, error)
}

// Func adapts a function to the Reranker interface.
type Func func(ctx context.Context, query string, docs []Document) ([]float64, error)

// Rerank calls f.
func (f Func) Rerank(ctx context.Context, query string, docs []Document) ([]float64, error) {
	return f(ctx, query, docs)
}

// ConfidenceGap skips reranking when the fused ranking is already decisive: the
// top score is at least MinScore and leads the runner-up by at least Gap.
type ConfidenceGap struct {
	Enabled  bool    `yaml:"enabled"`
	MinScore float64 `yaml:"min_score"`
	Gap      float64 `yaml:"gap"`
}

func (c ConfidenceGap) decisive(ms []model.Moment) bool {
	if !c.Enabled || len(ms) == 0 {
		return false
	}
	top, runner := ms[0].Score, 0.0
	if len(ms) > 1 {
		runner = ms[1].Score
	}
	return top >= c.MinScore && top-runner >= c.Gap
}

// SkipReason says why a stage left the fused order unchanged.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipDisabled      SkipReason = "disabled"
	SkipNoQuery       SkipReason = "no_query_text"
	SkipInsufficient  SkipReason = "insufficient_candidates"
	SkipConfidenceGap SkipReason = "confidence_gap"
	SkipTimeout       SkipReason = "timeout"
	SkipUnavailable   SkipReason = "unavailable"
	SkipError         SkipReason = "error"
)

// Outcome describes what the stage did.
type Outcome struct {
	Applied    bool          `json:"applied"`
	SkipReason SkipReason    `json:"skip_reason,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Candidates int           `json:"candidates"`
	Moved      int           `json:"moved"`
	Duration   time.Duration `json:"duration_ns"`
}

// Options configures a Stage.
type Options struct {
	Timeout       time.Duration
	MinCandidates int
	// MaxCandidates caps how many text-bearing moments, in fused order, are sent.
	MaxCandidates int
	ConfidenceGap ConfidenceGap
	Logger        *slog.Logger
}

// DefaultOptions contains the default stage settings.
var DefaultOptions = Options{
	Timeout:       300 * time.Millisecond,
	MinCandidates: 2,
	MaxCandidates: 50,
}

// Stage applies a Reranker to fused moments.
type Stage struct {
	reranker Reranker
	opts     Options
	log      *slog.Logger
}

// NewStage creates a stage. A nil reranker yields a disabled stage.
func NewStage(r Reranker, optFns ...func(o *Options)) *Stage {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.MinCandidates < 1 {
		opts.MinCandidates = 1
	}
	return &Stage{reranker: r, opts: opts, log: opts.Logger}
}

// Enabled reports whether the stage has a reranker.
func (s *Stage) Enabled() bool { return s != nil && s.reranker != nil }

type result struct {
	scores []float64
	err    error
}

// Apply reranks the text-bearing moments of fused, which must be sorted by
// score. It returns a new slice; fused is not modified. On any skip the returned
// slice has the fused order and scores.
func (s *Stage) Apply(ctx context.Context, fused []model.Moment, query string) ([]model.Moment, Outcome) {
	if !s.Enabled() {
		return fused, Outcome{SkipReason: SkipDisabled}
	}
	if query == "" {
		return fused, Outcome{SkipReason: SkipNoQuery}
	}
	if s.opts.ConfidenceGap.decisive(fused) {
		return fused, Outcome{SkipReason: SkipConfidenceGap}
	}

	var slots []int
	for i := range fused {
		if fused[i].HasText() {
			slots = append(slots, i)
			if s.opts.MaxCandidates > 0 && len(slots) == s.opts.MaxCandidates {
				break
			}
		}
	}
	out := Outcome{Candidates: len(slots)}
	if len(slots) < s.opts.MinCandidates {
		out.SkipReason = SkipInsufficient
		return fused, out
	}

	docs := make([]Document, len(slots))
	for i, pos := range slots {
		docs[i] = Document{ID: fused[pos].PrimaryEvidenceID, Text: *fused[pos].HighlightText}
	}

	start := time.Now()
	scores, err := s.call(ctx, query, docs)
	out.Duration = time.Since(start)
	if err != nil {
		switch {
		case errors.Is(err, ErrRerankTimeout):
			out.SkipReason = SkipTimeout
		case errors.Is(err, ErrRerankUnavailable):
			out.SkipReason = SkipUnavailable
		default:
			out.SkipReason = SkipError
		}
		out.Detail = err.Error()
		s.log.Warn("rerank skipped", "reason", out.SkipReason, "candidates", len(docs), "duration", out.Duration, "error", err)
		return fused, out
	}

	reranked, moved := interleave(fused, slots, scores)
	out.Applied = true
	out.Moved = moved
	return reranked, out
}

// call runs the reranker under the stage timeout. On timeout the call is
// abandoned; its goroutine exits when the reranker returns.
func (s *Stage) call(ctx context.Context, query string, docs []Document) ([]float64, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		scores, err := s.reranker.Rerank(cctx, query, docs)
		done <- result{scores: scores, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, fmt.Errorf("%w after %s", ErrRerankTimeout, s.opts.Timeout)
			}
			return nil, r.err
		}
		if len(r.scores) != len(docs) {
			return nil, fmt.Errorf("reranker returned %d scores for %d documents", len(r.scores), len(docs))
		}
		for _, v := range r.scores {
			if math.IsNaN(v) {
				return nil, errors.New("reranker returned NaN")
			}
		}
		return r.scores, nil
	case <-cctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrRerankTimeout, s.opts.Timeout)
	}
}

// interleave writes the moments at slots back into the same slots ordered by
// scores (ties keep fused order), then reassigns scores by position.
func interleave(fused []model.Moment, slots []int, scores []float64) ([]model.Moment, int) {
	order := make([]int, len(slots))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		default:
			return 0
		}
	})

	out := slices.Clone(fused)
	moved := 0
	for i, pos := range slots {
		src := slots[order[i]]
		if src != pos {
			moved++
		}
		out[pos] = fused[src]
	}

	// Position scores: slot i keeps the fused score of position i. Ties that the
	// tie-break would invert are nudged down so sorting by score keeps this order.
	for i := range out {
		out[i].Score = fused[i].Score
		if i > 0 && model.CompareByScore(&out[i-1], &out[i]) > 0 {
			out[i].Score = math.Nextafter(out[i-1].Score, math.Inf(-1))
		}
	}
	return out, moved
}
