// Package prommetrics exports engine metrics to Prometheus.
package prommetrics

import (
	"time"

	"github.com/hupe1980/vecfuse/model"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements vecfuse.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency       *prometheus.HistogramVec
	builds          *prometheus.CounterVec
	rowsAdded       prometheus.Counter
	activations     *prometheus.CounterVec
	snapshotInfo    *prometheus.GaugeVec
	modalityLatency *prometheus.HistogramVec
	modalityHits    *prometheus.HistogramVec
	modalitySkips   *prometheus.CounterVec
	reranks         *prometheus.CounterVec
	lastMarker      string
}

// New creates a Collector and registers it with reg. A nil reg uses the
// default registerer.
func New(namespace string, reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of engine operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Index builds by outcome",
		}, []string{"outcome"}),
		rowsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_rows_added_total",
			Help:      "Rows added by successful builds",
		}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_activations_total",
			Help:      "Snapshot activations by status",
		}, []string{"status"}),
		snapshotInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_active_info",
			Help:      "Active snapshot marker",
		}, []string{"marker"}),
		modalityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modality_latency_seconds",
			Help:      "Per-modality candidate search latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"modality"}),
		modalityHits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modality_candidates",
			Help:      "Candidates returned per modality search",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"modality"}),
		modalitySkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modality_skipped_total",
			Help:      "Modality searches that contributed nothing",
		}, []string{"modality"}),
		reranks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_total",
			Help:      "Rerank stage outcomes",
		}, []string{"outcome"}),
	}

	for _, col := range []prometheus.Collector{
		c.opLatency, c.builds, c.rowsAdded, c.activations, c.snapshotInfo,
		c.modalityLatency, c.modalityHits, c.modalitySkips, c.reranks,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordBuild implements vecfuse.MetricsCollector.
func (c *Collector) RecordBuild(skipped bool, rowsAdded int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("build", status(err)).Observe(d.Seconds())
	switch {
	case err != nil:
		c.builds.WithLabelValues("error").Inc()
	case skipped:
		c.builds.WithLabelValues("skipped").Inc()
	default:
		c.builds.WithLabelValues("built").Inc()
		c.rowsAdded.Add(float64(rowsAdded))
	}
}

// RecordActivate implements vecfuse.MetricsCollector. Calls must not race;
// the engine serializes activations.
func (c *Collector) RecordActivate(marker string, err error) {
	c.activations.WithLabelValues(status(err)).Inc()
	if err != nil || marker == c.lastMarker {
		return
	}
	if c.lastMarker != "" {
		c.snapshotInfo.DeleteLabelValues(c.lastMarker)
	}
	c.snapshotInfo.WithLabelValues(marker).Set(1)
	c.lastMarker = marker
}

// RecordSearch implements vecfuse.MetricsCollector.
func (c *Collector) RecordSearch(_ int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("search", status(err)).Observe(d.Seconds())
}

// RecordModality implements vecfuse.MetricsCollector.
func (c *Collector) RecordModality(m model.Modality, hits int, d time.Duration, skipReason string) {
	c.modalityLatency.WithLabelValues(string(m)).Observe(d.Seconds())
	if skipReason != "" {
		c.modalitySkips.WithLabelValues(string(m)).Inc()
		return
	}
	c.modalityHits.WithLabelValues(string(m)).Observe(float64(hits))
}

// RecordRerank implements vecfuse.MetricsCollector.
func (c *Collector) RecordRerank(applied bool, skipReason string, d time.Duration) {
	if applied {
		c.reranks.WithLabelValues("applied").Inc()
		c.opLatency.WithLabelValues("rerank", "success").Observe(d.Seconds())
		return
	}
	c.reranks.WithLabelValues(skipReason).Inc()
}
