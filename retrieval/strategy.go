package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/vecfuse/ann"
	"github.com/hupe1980/vecfuse/lexical"
	"github.com/hupe1980/vecfuse/model"
)

// errSkip marks a modality that was not attempted. Its message is the skip reason.
type errSkip string

func (e errSkip) Error() string { return string(e) }

func skip(format string, args ...any) error { return errSkip(fmt.Sprintf(format, args...)) }

// Strategy searches one modality.
type Strategy interface {
	Modality() model.Modality
	// Search returns up to req.TopK hits, best first, without ranks.
	Search(ctx context.Context, req *Request) ([]model.Candidate, error)
}

// Target is a vector column searched by a strategy.
type Target struct {
	VertexType model.VertexType
	Column     string
}

// VectorStrategy searches vector columns with a query embedded into Space.
type VectorStrategy struct {
	modality model.Modality
	space    Space
	targets  []Target
	// useImage makes an explicit query image vector override the encoded text.
	useImage bool
}

// NewVectorStrategy returns a strategy over targets.
func NewVectorStrategy(m model.Modality, space Space, targets ...Target) *VectorStrategy {
	return &VectorStrategy{modality: m, space: space, targets: targets, useImage: space == SpaceImage}
}

// Modality implements Strategy.
func (s *VectorStrategy) Modality() model.Modality { return s.modality }

// Search implements Strategy.
func (s *VectorStrategy) Search(ctx context.Context, req *Request) ([]model.Candidate, error) {
	var indexes []ann.Index
	for _, t := range s.targets {
		if idx := req.Snapshot.Vector(ann.Key{VertexType: t.VertexType, Column: t.Column}); idx != nil && idx.Len() > 0 {
			indexes = append(indexes, idx)
		}
	}
	if len(indexes) == 0 {
		return nil, skip("no %s index in snapshot", s.modality)
	}

	query, err := s.queryVector(ctx, req)
	if err != nil {
		return nil, err
	}

	var out []model.Candidate
	for _, idx := range indexes {
		key := idx.Key()
		allow, err := req.allow(ctx, key.VertexType)
		if err != nil {
			return nil, err
		}
		if allow != nil && allow.IsEmpty() {
			continue
		}
		hits, err := idx.Search(ctx, query, req.TopK, allow)
		if err != nil {
			return nil, err
		}
		t := req.Snapshot.Table(key.VertexType)
		for _, h := range hits {
			out = append(out, req.candidate(t, h.Row, s.modality, h.Similarity))
		}
	}
	sortCandidates(out)
	if len(out) > req.TopK {
		out = out[:req.TopK]
	}
	return out, nil
}

func (s *VectorStrategy) queryVector(ctx context.Context, req *Request) ([]float32, error) {
	if s.useImage && len(req.Query.ImageVector) > 0 {
		return req.Query.ImageVector, nil
	}
	if req.Query.Text == "" {
		return nil, skip("no query input for %s", s.modality)
	}
	if req.Encoder == nil {
		return nil, skip("no encoder configured")
	}
	v, err := req.Encoder.Encode(ctx, s.space, req.Query.Text)
	if errors.Is(err, ErrUnsupportedSpace) {
		return nil, skip("encoder does not support %s space", s.space)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s query: %w", s.space, err)
	}
	return v, nil
}

// LexicalStrategy searches the keyword index of the snapshot.
type LexicalStrategy struct {
	// IDLikeOnly restricts keyword search to queries with identifier-like tokens.
	IDLikeOnly bool
}

// Modality implements Strategy.
func (s *LexicalStrategy) Modality() model.Modality { return model.ModalityFTS }

// Search implements Strategy.
func (s *LexicalStrategy) Search(ctx context.Context, req *Request) ([]model.Candidate, error) {
	idx := req.Snapshot.Lexical()
	if idx == nil || idx.Len() == 0 {
		return nil, skip("no keyword index in snapshot")
	}
	if req.Query.Text == "" {
		return nil, skip("no query text")
	}
	if s.IDLikeOnly && !lexical.HasIDLikeToken(req.Query.Text) {
		return nil, skip("query has no id-like token")
	}

	// Filters are applied after scoring, so fetch everything when one is present.
	k := req.TopK
	if !req.Program.Empty() {
		k = idx.Len()
	}
	hits, err := idx.Search(ctx, req.Query.Text, k)
	if err != nil {
		return nil, err
	}

	// BM25 scores are unbounded; scale by the best hit so similarity stays in [0,1].
	var top float64
	if len(hits) > 0 {
		top = hits[0].Score
	}

	var out []model.Candidate
	for _, h := range hits {
		allow, err := req.allow(ctx, h.Ref.VertexType)
		if err != nil {
			return nil, err
		}
		if allow != nil && !allow.Contains(h.Ref.Row) {
			continue
		}
		t := req.Snapshot.Table(h.Ref.VertexType)
		if t == nil {
			continue
		}
		out = append(out, req.candidate(t, h.Ref.Row, model.ModalityFTS, normalizeScore(h.Score, top)))
		if len(out) == req.TopK {
			break
		}
	}
	return out, nil
}

func normalizeScore(score, top float64) float64 {
	if top <= 0 {
		return 0
	}
	return min(max(score/top, 0), 1)
}

// DefaultStrategies returns the strategy table mapping every modality to the
// columns it searches.
func DefaultStrategies(idLikeOnly bool) map[model.Modality]Strategy {
	return map[model.Modality]Strategy{
		model.ModalityText: NewVectorStrategy(model.ModalityText, SpaceText,
			Target{model.DocChunk, model.ColTextVector},
			Target{model.Transcript, model.ColTextVector},
		),
		model.ModalityOCR:    NewVectorStrategy(model.ModalityOCR, SpaceText, Target{model.ImageAsset, model.ColOCRVector}),
		model.ModalityVision: NewVectorStrategy(model.ModalityVision, SpaceImage, Target{model.ImageAsset, model.ColImageVector}),
		model.ModalityAudio:  NewVectorStrategy(model.ModalityAudio, SpaceAudio, Target{model.AudioClip, model.ColAudioVector}),
		model.ModalityVideo:  NewVectorStrategy(model.ModalityVideo, SpaceVideo, Target{model.VideoClip, model.ColVideoVector}),
		model.ModalityFTS:    &LexicalStrategy{IDLikeOnly: idLikeOnly},
	}
}

// sortCandidates orders hits of several columns by similarity, then by vertex
// type and row so the order is total.
func sortCandidates(cs []model.Candidate) {
	order := make(map[model.VertexType]int)
	for i, vt := range model.AllVertexTypes() {
		order[vt] = i
	}
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.VertexType != b.VertexType {
			return order[a.VertexType] < order[b.VertexType]
		}
		return a.Row < b.Row
	})
}
