package builder

import (
	"github.com/hupe1980/vecfuse/model"
	"github.com/hupe1980/vecfuse/snapshot"
)

// SkippedManifest records a manifest left out of a lenient build. It is not marked
// applied and is retried by the next build.
type SkippedManifest struct {
	ID     string `json:"manifest_id"`
	Reason string `json:"reason"`
}

// Result is the build report. It is also persisted as the JSON sidecar of the
// snapshot.
type Result struct {
	BuildID             string                   `json:"build_id"`
	Skipped             bool                     `json:"skipped"`
	Mode                Mode                     `json:"mode"`
	RowsAddedByTable    map[model.VertexType]int `json:"rows_added_by_table"`
	DuplicatesSkipped   map[model.VertexType]int `json:"duplicates_skipped"`
	TotalRows           int                      `json:"total_rows"`
	SnapshotMarker      string                   `json:"snapshot_marker"`
	SnapshotURI         string                   `json:"snapshot_uri,omitempty"`
	ManifestCount       int                      `json:"manifest_count"`
	ManifestFingerprint string                   `json:"manifest_fingerprint"`
	AppliedManifests    []string                 `json:"applied_manifests"`
	NewManifests        []string                 `json:"new_manifests"`
	SkippedManifests    []SkippedManifest        `json:"skipped_manifests,omitempty"`
	RebuiltIndexes      []string                 `json:"rebuilt_indexes,omitempty"`
	Timings             snapshot.Timings         `json:"timings"`
	SizeBytes           int64                    `json:"size_bytes"`
	SizeDelta           int64                    `json:"size_delta"`
	Error               string                   `json:"error,omitempty"`

	// Snapshot is the built snapshot, nil when skipped or failed.
	Snapshot *snapshot.Snapshot `json:"-"`
}

func (r *Result) fromBase(base *snapshot.Snapshot) {
	meta := base.Meta()
	r.SnapshotMarker = meta.Marker
	r.SnapshotURI = meta.URI
	r.ManifestCount = meta.ManifestCount
	r.ManifestFingerprint = meta.ManifestFingerprint
	r.AppliedManifests = append([]string(nil), meta.AppliedManifests...)
	r.TotalRows = meta.TotalRows()
}
