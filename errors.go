package vecfuse

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecfuse/builder"
	"github.com/hupe1980/vecfuse/filter"
	"github.com/hupe1980/vecfuse/fusion"
	"github.com/hupe1980/vecfuse/pagination"
	"github.com/hupe1980/vecfuse/rerank"
	"github.com/hupe1980/vecfuse/retrieval"
	"github.com/hupe1980/vecfuse/snapshot"
)

var (
	// ErrClosed is returned by operations on a closed Engine.
	ErrClosed = errors.New("engine closed")

	// ErrBuildInProgress is returned when BuildIndex is called while another
	// build is running.
	ErrBuildInProgress = builder.ErrBuildInProgress

	// ErrNoPrevious is returned by Rollback when there is nothing to roll back to.
	ErrNoPrevious = snapshot.ErrNoPrevious

	// ErrRerankTimeout and ErrRerankUnavailable never reach Search callers; the
	// rerank stage recovers from them and records a skip reason.
	ErrRerankTimeout     = rerank.ErrRerankTimeout
	ErrRerankUnavailable = rerank.ErrRerankUnavailable
)

// ErrorCode is the machine-readable code of a ValidationError.
type ErrorCode string

const (
	CodeInvalidPageLimit ErrorCode = "invalid_page_limit"
	CodeInvalidPageToken ErrorCode = "invalid_page_token"
	CodeCursorMismatch   ErrorCode = "cursor_mismatch"
	CodeInvalidFilter    ErrorCode = "invalid_filter"
	CodeInvalidTopK      ErrorCode = "invalid_top_k"
	CodeInvalidModality  ErrorCode = "invalid_modality"
	CodeInvalidRequest   ErrorCode = "invalid_request"
	CodeInvalidSort      ErrorCode = "invalid_sort"
	CodeInvalidGroupBy   ErrorCode = "invalid_group_by"
)

// ValidationError reports a request the engine refuses to serve.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ValidationError struct {
	Code    ErrorCode
	Field   string
	Message string
	cause   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.cause }

func invalid(code ErrorCode, field string, cause error) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: cause.Error(), cause: cause}
}

// StaleCursorError reports a page token minted against a snapshot that is no
// longer active. It is not a ValidationError: the caller must restart from the
// first page.
type StaleCursorError = pagination.StaleCursorError

// BuildError reports a failed index build. No snapshot was activated.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type BuildError struct {
	Phase      string
	ManifestID string
	URI        string
	cause      error
}

func (e *BuildError) Error() string { return e.cause.Error() }

func (e *BuildError) Unwrap() error { return e.cause }

// SnapshotLoadError reports a snapshot that could not be activated. The
// previously active snapshot stays active.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type SnapshotLoadError struct {
	URI   string
	cause error
}

func (e *SnapshotLoadError) Error() string { return e.cause.Error() }

func (e *SnapshotLoadError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Cursor failures. Staleness passes through unchanged.
	var stale *pagination.StaleCursorError
	if errors.As(err, &stale) {
		return err
	}
	var malformed *pagination.MalformedCursorError
	if errors.As(err, &malformed) {
		return invalid(CodeInvalidPageToken, "page_token", err)
	}
	var mismatch *pagination.CursorMismatchError
	if errors.As(err, &mismatch) {
		return invalid(CodeCursorMismatch, "page_token", err)
	}

	// Request validation.
	switch {
	case errors.Is(err, pagination.ErrInvalidPageLimit):
		return invalid(CodeInvalidPageLimit, "page_limit", err)
	case errors.Is(err, pagination.ErrInvalidSort):
		return invalid(CodeInvalidSort, "sort_by", err)
	case errors.Is(err, pagination.ErrInvalidGroupBy):
		return invalid(CodeInvalidGroupBy, "group_by", err)
	case errors.Is(err, filter.ErrInvalidFilter):
		return invalid(CodeInvalidFilter, "filters", err)
	case errors.Is(err, retrieval.ErrInvalidTopK):
		return invalid(CodeInvalidTopK, "top_k", err)
	case errors.Is(err, retrieval.ErrInvalidModality):
		return invalid(CodeInvalidModality, "modalities", err)
	case errors.Is(err, fusion.ErrInvalidWeights):
		return invalid(CodeInvalidRequest, "weights", err)
	}

	// Operator errors.
	var be *builder.Error
	if errors.As(err, &be) {
		return &BuildError{Phase: string(be.Phase), ManifestID: be.ManifestID, URI: be.URI, cause: err}
	}
	var le *snapshot.LoadError
	if errors.As(err, &le) {
		return &SnapshotLoadError{URI: le.URI, cause: err}
	}

	return err
}
