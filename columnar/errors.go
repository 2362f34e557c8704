package columnar

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptPart is returned when a part file cannot be decoded or fails verification.
	ErrCorruptPart = errors.New("corrupt part")

	// ErrMissingID is returned when a part has no string "id" column.
	ErrMissingID = errors.New("part has no id column")

	// ErrUnknownColumn is returned when reading a column a table does not have.
	ErrUnknownColumn = errors.New("unknown column")
)

// SchemaConflictError reports an incompatible type change of a column.
type SchemaConflictError struct {
	Column   string
	Existing Field
	Incoming Field
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("schema conflict on column %q: %s vs %s", e.Column, e.Existing, e.Incoming)
}
