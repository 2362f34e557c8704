package model

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidMoment is returned by Moment.Validate.
var ErrInvalidMoment = errors.New("invalid moment")

// EvidenceRef points at a vertex record supporting a Moment.
type EvidenceRef struct {
	ID         string     `json:"id" msgpack:"id"`
	VertexType VertexType `json:"vertex_type" msgpack:"vt"`
	Modality   Modality   `json:"modality" msgpack:"m"`
}

// Why explains one contribution to a Moment's score.
type Why struct {
	Modality     Modality `json:"modality" msgpack:"m"`
	Rank         int      `json:"rank" msgpack:"r"`
	Similarity   float64  `json:"similarity" msgpack:"s"`
	Contribution float64  `json:"contribution" msgpack:"c"`
	EvidenceID   string   `json:"evidence_id" msgpack:"e"`
	Note         string   `json:"note,omitempty" msgpack:"n,omitempty"`
}

// Moment is the canonical search result unit.
type Moment struct {
	AssetID           string        `json:"asset_id"`
	AssetType         string        `json:"asset_type"`
	StartMs           *int64        `json:"start_ms"`
	EndMs             *int64        `json:"end_ms"`
	Score             float64       `json:"score"`
	Modality          Modality      `json:"modality"`
	HighlightText     *string       `json:"highlight_text"`
	PrimaryEvidenceID string        `json:"primary_evidence_id"`
	EvidenceRefs      []EvidenceRef `json:"evidence_refs"`
	Why               []Why         `json:"why"`
}

// MomentKey is the fusion identity of a moment: one asset and one time range.
// Untimed evidence (document chunks, still images without timestamps) is keyed by its
// own record id so unrelated chunks of one asset never collapse into each other.
type MomentKey string

// KeyFor returns the moment identity of a candidate.
func KeyFor(c Candidate) MomentKey {
	if c.StartMs == nil && c.EndMs == nil {
		return MomentKey(c.AssetID + "\x00id:" + c.ID)
	}
	return MomentKey(c.AssetID + "\x00t:" + fmtMs(c.StartMs) + "-" + fmtMs(c.EndMs))
}

func fmtMs(v *int64) string {
	if v == nil {
		return "_"
	}
	return strconv.FormatInt(*v, 10)
}

// HasText reports whether the moment carries extractable text.
func (m *Moment) HasText() bool {
	return m.HighlightText != nil && strings.TrimSpace(*m.HighlightText) != ""
}

// Clone returns a deep copy of m.
func (m Moment) Clone() Moment {
	out := m
	if m.StartMs != nil {
		out.StartMs = Int64(*m.StartMs)
	}
	if m.EndMs != nil {
		out.EndMs = Int64(*m.EndMs)
	}
	if m.HighlightText != nil {
		out.HighlightText = String(*m.HighlightText)
	}
	out.EvidenceRefs = append([]EvidenceRef(nil), m.EvidenceRefs...)
	out.Why = append([]Why(nil), m.Why...)
	return out
}

// MomentError reports a violated evidence invariant.
type MomentError struct {
	AssetID string
	// Reason describes the violation without naming the asset.
	Reason string
}

func (e *MomentError) Error() string {
	if e.AssetID == "" {
		return fmt.Sprintf("%v: %s", ErrInvalidMoment, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrInvalidMoment, e.AssetID, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidMoment) hold.
func (e *MomentError) Is(target error) bool { return target == ErrInvalidMoment }

// Validate checks the evidence invariants of a moment. Violations are *MomentError.
func (m *Moment) Validate() error {
	bad := func(format string, args ...any) error {
		return &MomentError{AssetID: m.AssetID, Reason: fmt.Sprintf(format, args...)}
	}
	if m.AssetID == "" {
		return bad("missing asset_id")
	}
	if m.PrimaryEvidenceID == "" || len(m.EvidenceRefs) == 0 {
		return bad("no evidence")
	}
	if m.Score < 0 || m.Score > 1 {
		return bad("score %v out of range", m.Score)
	}

	docsOnly := true
	for _, ref := range m.EvidenceRefs {
		if ref.VertexType != DocChunk {
			docsOnly = false
			break
		}
	}
	if docsOnly {
		if m.StartMs != nil || m.EndMs != nil {
			return bad("document moment has a time range")
		}
		if !m.HasText() {
			return bad("document moment has no highlight")
		}
	}

	switch {
	case m.Modality.TextBearing():
		if !m.HasText() || !m.hasRef(DocChunk, Transcript, ImageAsset) {
			return bad("%s moment lacks text evidence", m.Modality)
		}
	case m.Modality == ModalityVision:
		if !m.hasRef(ImageAsset) {
			return bad("vision moment lacks image evidence")
		}
	case m.Modality == ModalityAudio:
		if !m.hasRef(AudioClip) {
			return bad("audio moment lacks audio evidence")
		}
	case m.Modality == ModalityVideo:
		if !m.hasRef(VideoClip) {
			return bad("video moment lacks video evidence")
		}
	default:
		return bad("unknown modality %q", m.Modality)
	}
	return nil
}

func (m *Moment) hasRef(types ...VertexType) bool {
	for _, ref := range m.EvidenceRefs {
		for _, t := range types {
			if ref.VertexType == t {
				return true
			}
		}
	}
	return false
}

// CompareTieBreak orders moments by asset_id, then start_ms (untimed first), then
// primary_evidence_id. Distinct moments never compare equal.
func CompareTieBreak(a, b *Moment) int {
	if c := cmp.Compare(a.AssetID, b.AssetID); c != 0 {
		return c
	}
	switch {
	case a.StartMs == nil && b.StartMs != nil:
		return -1
	case a.StartMs != nil && b.StartMs == nil:
		return 1
	case a.StartMs != nil && b.StartMs != nil:
		if c := cmp.Compare(*a.StartMs, *b.StartMs); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.PrimaryEvidenceID, b.PrimaryEvidenceID)
}

// CompareByScore orders moments by score descending, then CompareTieBreak.
func CompareByScore(a, b *Moment) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return CompareTieBreak(a, b)
}
