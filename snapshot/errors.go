package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt is returned when a snapshot file is malformed or fails its checksum.
	ErrCorrupt = errors.New("corrupt snapshot")

	// ErrUnsupportedVersion is returned for files written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")

	// ErrNoPrevious is returned by Rollback when there is nothing to roll back to.
	ErrNoPrevious = errors.New("no previous snapshot")

	// ErrInvalidSnapshot is returned when activating a snapshot without a marker.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// LoadError reports a snapshot that could not be read or decoded. The previously
// active snapshot stays active.
type LoadError struct {
	URI string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load snapshot %s: %v", e.URI, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
