package pagination

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPageLimit is returned for a page limit <= 0.
	ErrInvalidPageLimit = errors.New("page_limit must be > 0")

	// ErrInvalidSort is returned for an unknown sort_by value.
	ErrInvalidSort = errors.New("invalid sort_by")

	// ErrInvalidGroupBy is returned for an unknown group_by value.
	ErrInvalidGroupBy = errors.New("invalid group_by")
)

// MalformedCursorError reports a page token that cannot be decoded.
type MalformedCursorError struct {
	Reason string
	Err    error
}

func (e *MalformedCursorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed page token: %s: %v", e.Reason, e.Err)
	}
	return "malformed page token: " + e.Reason
}

func (e *MalformedCursorError) Unwrap() error { return e.Err }

// StaleCursorError reports a page token minted against a snapshot that is no
// longer active. Callers must restart from the first page.
type StaleCursorError struct {
	CursorMarker string
	ActiveMarker string
}

func (e *StaleCursorError) Error() string {
	return fmt.Sprintf("stale page token: issued for snapshot %s, active snapshot is %s", e.CursorMarker, e.ActiveMarker)
}

// CursorMismatchError reports a well-formed page token that belongs to a
// different query.
type CursorMismatchError struct {
	Field string
}

func (e *CursorMismatchError) Error() string {
	return fmt.Sprintf("page token does not match request: %s differs", e.Field)
}
