package filter

import (
	"errors"
	"fmt"
)

// ErrInvalidFilter is matched by every *Error.
var ErrInvalidFilter = errors.New("invalid filter")

// Error describes why a filter was rejected.
type Error struct {
	// Path locates the offending node, e.g. "all[1].not".
	Path    string
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid filter at %s (field %q): %s", e.Path, e.Field, e.Message)
	}
	return fmt.Sprintf("invalid filter at %s: %s", e.Path, e.Message)
}

// Is makes errors.Is(err, ErrInvalidFilter) hold.
func (e *Error) Is(target error) bool { return target == ErrInvalidFilter }
