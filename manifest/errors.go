package manifest

import "errors"

var (
	// ErrNotFound is returned when a manifest does not exist.
	ErrNotFound = errors.New("manifest not found")

	// ErrInvalidManifest is returned when a manifest fails validation or cannot be parsed.
	ErrInvalidManifest = errors.New("invalid manifest")
)
