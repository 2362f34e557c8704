package vecfuse

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecfuse/model"
)

// MetricsCollector receives operational metrics from an Engine.
// Implement it to integrate with a monitoring system; see package prommetrics
// for a Prometheus implementation.
type MetricsCollector interface {
	// RecordBuild is called after every build attempt. skipped is true when no
	// new manifests were found.
	RecordBuild(skipped bool, rowsAdded int, duration time.Duration, err error)

	// RecordActivate is called after every activation, reload or rollback.
	RecordActivate(marker string, err error)

	// RecordSearch is called after each search. results is the page size.
	RecordSearch(results int, duration time.Duration, err error)

	// RecordModality is called once per modality searched. A non-empty
	// skipReason means the modality contributed nothing.
	RecordModality(m model.Modality, hits int, duration time.Duration, skipReason string)

	// RecordRerank is called when the rerank stage ran or was skipped.
	RecordRerank(applied bool, skipReason string, duration time.Duration)
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBuild(bool, int, time.Duration, error)               {}
func (NoopMetricsCollector) RecordActivate(string, error)                              {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)                    {}
func (NoopMetricsCollector) RecordModality(model.Modality, int, time.Duration, string) {}
func (NoopMetricsCollector) RecordRerank(bool, string, time.Duration)                  {}

// BasicMetricsCollector keeps in-memory counters.
// Useful for debugging and tests.
type BasicMetricsCollector struct {
	BuildCount       atomic.Int64
	BuildSkipped     atomic.Int64
	BuildErrors      atomic.Int64
	BuildRowsAdded   atomic.Int64
	ActivateCount    atomic.Int64
	ActivateErrors   atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	ModalitySkipped  atomic.Int64
	RerankApplied    atomic.Int64
	RerankSkipped    atomic.Int64
	RerankTimeouts   atomic.Int64
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(skipped bool, rowsAdded int, _ time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildRowsAdded.Add(int64(rowsAdded))
	if skipped {
		b.BuildSkipped.Add(1)
	}
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordActivate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordActivate(_ string, err error) {
	b.ActivateCount.Add(1)
	if err != nil {
		b.ActivateErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordModality implements MetricsCollector.
func (b *BasicMetricsCollector) RecordModality(_ model.Modality, _ int, _ time.Duration, skipReason string) {
	if skipReason != "" {
		b.ModalitySkipped.Add(1)
	}
}

// RecordRerank implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRerank(applied bool, skipReason string, _ time.Duration) {
	if applied {
		b.RerankApplied.Add(1)
		return
	}
	b.RerankSkipped.Add(1)
	if skipReason == "timeout" {
		b.RerankTimeouts.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		BuildCount:      b.BuildCount.Load(),
		BuildSkipped:    b.BuildSkipped.Load(),
		BuildErrors:     b.BuildErrors.Load(),
		BuildRowsAdded:  b.BuildRowsAdded.Load(),
		ActivateCount:   b.ActivateCount.Load(),
		ActivateErrors:  b.ActivateErrors.Load(),
		SearchCount:     b.SearchCount.Load(),
		SearchErrors:    b.SearchErrors.Load(),
		ModalitySkipped: b.ModalitySkipped.Load(),
		RerankApplied:   b.RerankApplied.Load(),
		RerankSkipped:   b.RerankSkipped.Load(),
		RerankTimeouts:  b.RerankTimeouts.Load(),
	}
	if s.SearchCount > 0 {
		s.SearchAvgNanos = b.SearchTotalNanos.Load() / s.SearchCount
	}
	return s
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BuildCount      int64
	BuildSkipped    int64
	BuildErrors     int64
	BuildRowsAdded  int64
	ActivateCount   int64
	ActivateErrors  int64
	SearchCount     int64
	SearchErrors    int64
	SearchAvgNanos  int64
	ModalitySkipped int64
	RerankApplied   int64
	RerankSkipped   int64
	RerankTimeouts  int64
}
