package manifest

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/vecfuse/internal/hash"
	"github.com/hupe1980/vecfuse/model"
)

// Manifest is the immutable record of one ingestion run.
type Manifest struct {
	ID        string    `json:"manifest_id"`
	CreatedAt time.Time `json:"created_at"`
	Files     []FileRef `json:"files"`
}

// FileRef describes a single columnar part file.
type FileRef struct {
	URI         string           `json:"uri"`
	VertexType  model.VertexType `json:"vertex_type"`
	Section     model.Section    `json:"section"`
	RowCount    int              `json:"row_count"`
	Bytes       int64            `json:"bytes"`
	ContentHash string           `json:"content_hash"`
}

// Validate checks that m is structurally sound.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: empty manifest_id", ErrInvalidManifest)
	}
	for i, f := range m.Files {
		if f.URI == "" {
			return fmt.Errorf("%w: %s file %d has no uri", ErrInvalidManifest, m.ID, i)
		}
		if !f.VertexType.Valid() {
			return fmt.Errorf("%w: %s file %s has unknown vertex type %q", ErrInvalidManifest, m.ID, f.URI, f.VertexType)
		}
		if !f.Section.Valid() {
			return fmt.Errorf("%w: %s file %s has unknown section %q", ErrInvalidManifest, m.ID, f.URI, f.Section)
		}
		if f.RowCount < 0 {
			return fmt.Errorf("%w: %s file %s has negative row_count", ErrInvalidManifest, m.ID, f.URI)
		}
	}
	return nil
}

// Digest hashes the id and the content of every file of m. Two manifests with the
// same id but different part contents have different digests.
func (m *Manifest) Digest() string {
	files := make([]string, len(m.Files))
	for i, f := range m.Files {
		files[i] = fmt.Sprintf("%s|%s|%s|%d|%s", f.URI, f.VertexType, f.Section, f.RowCount, f.ContentHash)
	}
	sort.Strings(files)
	return hash.SHA256Strings(append([]string{m.ID}, files...))
}

// VertexTypes returns the distinct vertex types touched by m in canonical order.
func (m *Manifest) VertexTypes() []model.VertexType {
	seen := make(map[model.VertexType]bool, len(m.Files))
	for _, f := range m.Files {
		seen[f.VertexType] = true
	}
	var out []model.VertexType
	for _, vt := range model.AllVertexTypes() {
		if seen[vt] {
			out = append(out, vt)
		}
	}
	return out
}

// Parse decodes and validates a JSON manifest document.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Marshal encodes m as an indented JSON document.
func Marshal(m *Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
