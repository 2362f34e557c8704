package model

import "fmt"

// Modality identifies a retrieval channel.
type Modality string

const (
	ModalityText   Modality = "text"
	ModalityOCR    Modality = "ocr"
	ModalityVision Modality = "vision"
	ModalityAudio  Modality = "audio"
	ModalityVideo  Modality = "video"
	ModalityFTS    Modality = "fts"
)

var allModalities = []Modality{
	ModalityText,
	ModalityOCR,
	ModalityVision,
	ModalityAudio,
	ModalityVideo,
	ModalityFTS,
}

// AllModalities returns every modality in canonical order.
func AllModalities() []Modality {
	out := make([]Modality, len(allModalities))
	copy(out, allModalities)
	return out
}

// Valid reports whether m is a known modality.
func (m Modality) Valid() bool {
	return m.Order() >= 0
}

// Order returns the canonical position of m, or -1 if unknown.
// It is used as the final tie-breaker wherever modalities compete.
func (m Modality) Order() int {
	for i, v := range allModalities {
		if v == m {
			return i
		}
	}
	return -1
}

// TextBearing reports whether moments primarily attributed to m must carry text evidence.
func (m Modality) TextBearing() bool {
	return m == ModalityText || m == ModalityOCR || m == ModalityFTS
}

// VertexType identifies an ingestion table.
type VertexType string

const (
	DocChunk   VertexType = "DocChunk"
	Transcript VertexType = "Transcript"
	ImageAsset VertexType = "ImageAsset"
	AudioClip  VertexType = "AudioClip"
	VideoClip  VertexType = "VideoClip"
	MediaAsset VertexType = "MediaAsset"
)

var allVertexTypes = []VertexType{DocChunk, Transcript, ImageAsset, AudioClip, VideoClip, MediaAsset}

// AllVertexTypes returns every vertex type in canonical order.
func AllVertexTypes() []VertexType {
	out := make([]VertexType, len(allVertexTypes))
	copy(out, allVertexTypes)
	return out
}

// Valid reports whether v is a known vertex type.
func (v VertexType) Valid() bool {
	for _, t := range allVertexTypes {
		if t == v {
			return true
		}
	}
	return false
}

// DefaultAssetType is the asset type assumed for rows of v when neither the row nor its
// MediaAsset carries one.
func (v VertexType) DefaultAssetType() string {
	switch v {
	case DocChunk:
		return "document"
	case ImageAsset:
		return "image"
	case AudioClip:
		return "audio"
	case VideoClip, Transcript:
		return "video"
	default:
		return "unknown"
	}
}

// TextColumn returns the column holding the extractable text of v, or "" when
// rows of v carry no text.
func (v VertexType) TextColumn() string {
	switch v {
	case DocChunk, Transcript:
		return ColContent
	case ImageAsset:
		return ColOCRText
	default:
		return ""
	}
}

// Section identifies which part of a vertex record a manifest file carries.
type Section string

const (
	SectionCore   Section = "core"
	SectionText   Section = "text"
	SectionVector Section = "vector"
)

// Valid reports whether s is a known section.
func (s Section) Valid() bool {
	return s == SectionCore || s == SectionText || s == SectionVector
}

// Well-known column names shared by ingestion and retrieval.
const (
	ColID           = "id"
	ColAssetID      = "asset_id"
	ColAssetType    = "asset_type"
	ColStartMs      = "start_ms"
	ColEndMs        = "end_ms"
	ColTimestampMs  = "timestamp_ms"
	ColDurationMs   = "duration_ms"
	ColCreatedAt    = "created_at"
	ColSourceType   = "source_type"
	ColContent      = "content"
	ColOCRText      = "ocr_text"
	ColModelVersion = "model_version"

	ColTextVector  = "text_vector"
	ColOCRVector   = "ocr_vector"
	ColImageVector = "image_vector"
	ColAudioVector = "audio_vector"
	ColVideoVector = "video_vector"
)

// Candidate is a single per-modality retrieval hit.
type Candidate struct {
	ID         string
	VertexType VertexType
	Row        uint32
	AssetID    string
	AssetType  string
	StartMs    *int64
	EndMs      *int64
	// Text is the extractable text of the row, empty when the row carries none.
	Text string

	Modality Modality
	// Rank is 1-based within the modality's list.
	Rank int
	// Similarity is the raw modality score (cosine similarity in [0,1] or BM25).
	Similarity float64
}

// String returns a compact representation for logs.
func (c Candidate) String() string {
	return fmt.Sprintf("%s/%s#%d(%s r=%d)", c.VertexType, c.ID, c.Row, c.Modality, c.Rank)
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
