package vecfuse

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/vecfuse/builder"
	"github.com/hupe1980/vecfuse/model"
	"github.com/hupe1980/vecfuse/rerank"
)

// Logger wraps slog.Logger with vecfuse-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithSnapshot adds the snapshot marker to the logger.
func (l *Logger) WithSnapshot(marker string) *Logger {
	return &Logger{
		Logger: l.Logger.With("snapshot_marker", marker),
	}
}

// LogBuild logs a build attempt.
func (l *Logger) LogBuild(ctx context.Context, res *builder.Result, err error) {
	switch {
	case err != nil:
		attrs := []any{"error", err}
		if res != nil {
			attrs = append(attrs, "build_id", res.BuildID, "mode", res.Mode)
		}
		l.ErrorContext(ctx, "build failed", attrs...)
	case res.Skipped:
		l.InfoContext(ctx, "build skipped, no new manifests",
			"build_id", res.BuildID,
			"snapshot_marker", res.SnapshotMarker,
		)
	default:
		l.InfoContext(ctx, "build completed",
			"build_id", res.BuildID,
			"snapshot_marker", res.SnapshotMarker,
			"new_manifests", len(res.NewManifests),
			"skipped_manifests", len(res.SkippedManifests),
			"total_rows", res.TotalRows,
			"size_delta", res.SizeDelta,
			"duration", res.Timings.Total(),
		)
	}
}

// LogActivate logs a snapshot activation, reload or rollback.
func (l *Logger) LogActivate(ctx context.Context, op, marker string, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, op+" completed",
		"snapshot_marker", marker,
	)
}

// LogSearch logs a search.
func (l *Logger) LogSearch(ctx context.Context, fingerprint string, results int, d time.Duration, err error) {
	if err != nil {
		l.DebugContext(ctx, "search failed",
			"query_fingerprint", fingerprint,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "search completed",
		"query_fingerprint", fingerprint,
		"results", results,
		"duration", d,
	)
}

// LogModalitySkip logs a modality that contributed nothing to a search.
// Search failures are already logged at Warn by the retrieval engine.
func (l *Logger) LogModalitySkip(ctx context.Context, m model.Modality, reason string) {
	l.DebugContext(ctx, "modality skipped",
		"modality", m,
		"reason", reason,
	)
}

// LogRerankSkip logs a rerank stage that fell back to the fused order.
func (l *Logger) LogRerankSkip(ctx context.Context, out rerank.Outcome) {
	switch out.SkipReason {
	case rerank.SkipTimeout, rerank.SkipUnavailable, rerank.SkipError:
		l.WarnContext(ctx, "rerank fell back to fused order",
			"reason", out.SkipReason,
			"detail", out.Detail,
			"candidates", out.Candidates,
			"duration", out.Duration,
		)
	default:
		l.DebugContext(ctx, "rerank skipped",
			"reason", out.SkipReason,
		)
	}
}
