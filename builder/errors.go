package builder

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingPart is returned when a manifest references a part file that does not exist.
	ErrMissingPart = errors.New("missing part")

	// ErrBuildInProgress is returned when another build holds the build slot.
	ErrBuildInProgress = errors.New("build already in progress")
)

// Phase names a build phase.
type Phase string

const (
	PhaseLoadBase     Phase = "load_base"
	PhaseApplyDeltas  Phase = "apply_deltas"
	PhaseBuildVectors Phase = "build_vectors"
	PhaseWrite        Phase = "write"
	PhaseUpload       Phase = "upload"
)

// Error reports a failed build.
type Error struct {
	Phase      Phase
	ManifestID string
	URI        string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.URI != "":
		return fmt.Sprintf("build %s: manifest %s: %s: %v", e.Phase, e.ManifestID, e.URI, e.Err)
	case e.ManifestID != "":
		return fmt.Sprintf("build %s: manifest %s: %v", e.Phase, e.ManifestID, e.Err)
	default:
		return fmt.Sprintf("build %s: %v", e.Phase, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }
