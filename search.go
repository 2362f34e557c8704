package vecfuse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hupe1980/vecfuse/filter"
	"github.com/hupe1980/vecfuse/fusion"
	"github.com/hupe1980/vecfuse/model"
	"github.com/hupe1980/vecfuse/pagination"
	"github.com/hupe1980/vecfuse/rerank"
	"github.com/hupe1980/vecfuse/retrieval"
)

// SearchMode is a named modality preset.
type SearchMode string

const (
	ModeDefault SearchMode = ""
	ModeText    SearchMode = "text"
	ModeVisual  SearchMode = "visual"
	ModeAudio   SearchMode = "audio"
	ModeAll     SearchMode = "all"
)

var modePresets = map[SearchMode][]model.Modality{
	ModeText:   {model.ModalityText, model.ModalityOCR, model.ModalityFTS},
	ModeVisual: {model.ModalityVision, model.ModalityVideo, model.ModalityOCR},
	ModeAudio:  {model.ModalityAudio, model.ModalityText},
	ModeAll:    model.AllModalities(),
}

// SearchRequest is one search. At least one of QueryText and ImageVector is
// required. Modalities, when set, override Mode.
type SearchRequest struct {
	QueryText   string           `json:"query_text,omitempty"`
	ImageVector []float32        `json:"image_vector,omitempty"`
	Mode        SearchMode       `json:"mode,omitempty"`
	Modalities  []model.Modality `json:"modalities,omitempty"`
	Filters     *filter.Node     `json:"filters,omitempty"`
	TopK        int              `json:"top_k,omitempty"`
	GroupBy     string           `json:"group_by,omitempty"`
	SortBy      string           `json:"sort_by,omitempty"`
	PageLimit   int              `json:"page_limit,omitempty"`
	PageToken   string           `json:"page_token,omitempty"`
}

// SearchResponse is one page of results.
type SearchResponse struct {
	Results       []model.Moment       `json:"results"`
	NextPageToken string               `json:"next_page_token,omitempty"`
	Grouping      *pagination.Grouping `json:"grouping,omitempty"`
	Meta          SearchMeta           `json:"meta"`
}

// SearchMeta describes how a response was produced.
type SearchMeta struct {
	FusionMethod     string `json:"fusion_method"`
	WeightVersion    string `json:"weight_version"`
	SnapshotMarker   string `json:"snapshot_marker"`
	QueryFingerprint string `json:"query_fingerprint"`
	// TotalResults counts moments, or groups when grouped, across all pages.
	TotalResults int   `json:"total_results"`
	Trace        Trace `json:"trace"`
}

// Trace explains the stages of a search.
type Trace struct {
	Modalities        []model.Modality          `json:"modalities"`
	SkippedModalities map[model.Modality]string `json:"skipped_modalities,omitempty"`
	Candidates        map[model.Modality]int    `json:"candidates"`
	Fusion            fusion.Stats              `json:"fusion"`
	Rerank            rerank.Outcome            `json:"rerank"`
}

// plan is a validated request with defaults applied.
type plan struct {
	query      retrieval.Query
	modalities []model.Modality
	program    *filter.Program
	topK       int
	sortBy     pagination.SortBy
	groupBy    pagination.GroupBy
	pageLimit  int
}

// Search runs retrieval, fusion, reranking and pagination against the active
// snapshot. The snapshot is captured once; a concurrent activation does not
// affect a running search.
//
// Invalid requests fail with *ValidationError. A page token from a snapshot
// that is no longer active fails with *StaleCursorError. A failing modality
// or reranker never fails the search.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (resp *SearchResponse, err error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	var fingerprint string
	defer func() {
		n := 0
		if resp != nil {
			n = len(resp.Results)
		}
		e.metrics.RecordSearch(n, time.Since(start), err)
		e.log.LogSearch(ctx, fingerprint, n, time.Since(start), err)
	}()

	p, err := e.plan(req)
	if err != nil {
		return nil, translateError(err)
	}
	fingerprint, err = e.fingerprint(req, p)
	if err != nil {
		return nil, err
	}

	snap := e.snapshots.Current()
	if req.PageToken != "" {
		c, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, translateError(err)
		}
		if err := c.Check(fingerprint, snap.Marker(), p.sortBy, p.groupBy); err != nil {
			return nil, translateError(err)
		}
	}

	p.program, err = filter.Compile(ctx, req.Filters, e.allowlist)
	if err != nil {
		return nil, translateError(err)
	}

	retrieved, err := e.retriever.Retrieve(ctx, snap, p.query, p.modalities, p.program, p.topK)
	if err != nil {
		return nil, translateError(err)
	}
	for m, reason := range retrieved.Skipped {
		e.log.LogModalitySkip(ctx, m, reason)
	}

	fused, stats := fusion.Fuse(retrieved.Candidates, e.weights)
	if stats.Dropped > 0 {
		e.log.WarnContext(ctx, "fusion dropped invalid moments", "dropped", stats.Dropped, "reasons", stats.DropReasons)
	}

	ranked, outcome := e.reranker.Apply(ctx, fused, req.QueryText)
	if e.reranker.Enabled() {
		e.metrics.RecordRerank(outcome.Applied, string(outcome.SkipReason), outcome.Duration)
		if !outcome.Applied {
			e.log.LogRerankSkip(ctx, outcome)
		}
	}

	page, err := pagination.Paginate(ranked, pagination.Request{
		PageLimit:          p.pageLimit,
		PageToken:          req.PageToken,
		SortBy:             p.sortBy,
		GroupBy:            p.groupBy,
		QueryFingerprint:   fingerprint,
		SnapshotMarker:     snap.Marker(),
		TopMomentsPerGroup: e.cfg.Pagination.TopMomentsPerGroup,
	})
	if err != nil {
		return nil, translateError(err)
	}

	candidates := make(map[model.Modality]int, len(retrieved.Candidates))
	for m, cs := range retrieved.Candidates {
		candidates[m] = len(cs)
	}
	results := page.Moments
	if results == nil {
		results = []model.Moment{}
	}
	return &SearchResponse{
		Results:       results,
		NextPageToken: page.NextPageToken,
		Grouping:      page.Grouping,
		Meta: SearchMeta{
			FusionMethod:     fusion.Method,
			WeightVersion:    e.weights.Version,
			SnapshotMarker:   snap.Marker(),
			QueryFingerprint: fingerprint,
			TotalResults:     page.Total,
			Trace: Trace{
				Modalities:        p.modalities,
				SkippedModalities: retrieved.Skipped,
				Candidates:        candidates,
				Fusion:            stats,
				Rerank:            outcome,
			},
		},
	}, nil
}

func (e *Engine) plan(req SearchRequest) (*plan, error) {
	p := &plan{query: retrieval.Query{Text: req.QueryText, ImageVector: req.ImageVector}}

	if req.QueryText == "" && len(req.ImageVector) == 0 {
		return nil, &ValidationError{Code: CodeInvalidRequest, Field: "query_text", Message: "query_text or image_vector is required"}
	}

	ms, err := e.modalities(req)
	if err != nil {
		return nil, err
	}
	p.modalities = ms

	switch {
	case req.TopK < 0:
		return nil, invalid(CodeInvalidTopK, "top_k", fmt.Errorf("%w: got %d", retrieval.ErrInvalidTopK, req.TopK))
	case req.TopK == 0:
		p.topK = e.cfg.Retrieval.DefaultTopK
	case req.TopK > e.cfg.Retrieval.MaxTopK:
		return nil, &ValidationError{Code: CodeInvalidTopK, Field: "top_k", Message: fmt.Sprintf("top_k %d exceeds maximum %d", req.TopK, e.cfg.Retrieval.MaxTopK)}
	default:
		p.topK = req.TopK
	}

	switch {
	case req.PageLimit < 0:
		return nil, invalid(CodeInvalidPageLimit, "page_limit", fmt.Errorf("%w: got %d", pagination.ErrInvalidPageLimit, req.PageLimit))
	case req.PageLimit == 0:
		p.pageLimit = e.cfg.Pagination.DefaultPageLimit
	case req.PageLimit > e.cfg.Pagination.MaxPageLimit:
		return nil, &ValidationError{Code: CodeInvalidPageLimit, Field: "page_limit", Message: fmt.Sprintf("page_limit %d exceeds maximum %d", req.PageLimit, e.cfg.Pagination.MaxPageLimit)}
	case req.PageLimit > p.topK:
		return nil, &ValidationError{Code: CodeInvalidPageLimit, Field: "page_limit", Message: fmt.Sprintf("page_limit %d exceeds top_k %d", req.PageLimit, p.topK)}
	default:
		p.pageLimit = req.PageLimit
	}
	p.pageLimit = min(p.pageLimit, p.topK)

	if p.sortBy, err = pagination.ParseSortBy(req.SortBy); err != nil {
		return nil, err
	}
	if p.groupBy, err = pagination.ParseGroupBy(req.GroupBy); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) modalities(req SearchRequest) ([]model.Modality, error) {
	var ms []model.Modality
	switch {
	case len(req.Modalities) > 0:
		ms = req.Modalities
	case req.Mode != ModeDefault:
		preset, ok := modePresets[req.Mode]
		if !ok {
			return nil, &ValidationError{Code: CodeInvalidModality, Field: "mode", Message: fmt.Sprintf("unknown mode %q", req.Mode)}
		}
		ms = preset
	default:
		ms = e.cfg.Retrieval.DefaultModalities
		if len(req.ImageVector) > 0 {
			ms = append(slices.Clone(ms), model.ModalityVision)
		}
	}

	out := make([]model.Modality, 0, len(ms))
	for _, m := range ms {
		if !m.Valid() || !e.retriever.Supports(m) {
			return nil, invalid(CodeInvalidModality, "modalities", fmt.Errorf("%w: %q", retrieval.ErrInvalidModality, m))
		}
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b model.Modality) int { return a.Order() - b.Order() })
	return out, nil
}

// fingerprint hashes everything that determines the result order. Page
// tokens carry it so a token cannot be replayed against another query.
func (e *Engine) fingerprint(req SearchRequest, p *plan) (string, error) {
	canonical := struct {
		Query       string           `json:"q"`
		ImageVector []float32        `json:"img,omitempty"`
		Modalities  []model.Modality `json:"m"`
		Filters     *filter.Node     `json:"f,omitempty"`
		TopK        int              `json:"k"`
		SortBy      string           `json:"s"`
		GroupBy     string           `json:"g"`
		Weights     string           `json:"w"`
		Rerank      bool             `json:"r"`
	}{
		Query:       req.QueryText,
		ImageVector: req.ImageVector,
		Modalities:  p.modalities,
		Filters:     req.Filters,
		TopK:        p.topK,
		SortBy:      string(p.sortBy),
		GroupBy:     string(p.groupBy),
		Weights:     e.weights.String(),
		Rerank:      e.reranker.Enabled(),
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", invalid(CodeInvalidFilter, "filters", errors.Join(filter.ErrInvalidFilter, err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}
