package vecfuse

import (
	"time"

	"github.com/hupe1980/vecfuse/ann"
	"github.com/hupe1980/vecfuse/blobstore"
	"github.com/hupe1980/vecfuse/filter"
	"github.com/hupe1980/vecfuse/rerank"
	"github.com/hupe1980/vecfuse/retrieval"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	reranker         rerank.Reranker
	encoder          retrieval.Encoder
	allowlist        filter.AllowlistLookup
	pointerStore     blobstore.BlobStore
	factory          ann.Factory
	now              func() time.Time
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger. Defaults to NoopLogger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector.
//
// If nil is passed, metrics are discarded.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithReranker sets the second-stage reranker. Without one, or with
// rerank.enabled false in the config, results keep the fused order.
func WithReranker(r rerank.Reranker) Option {
	return func(o *options) {
		o.reranker = r
	}
}

// WithEncoder sets the query embedding backend. Without one only image-vector
// and full-text searches run.
func WithEncoder(e retrieval.Encoder) Option {
	return func(o *options) {
		o.encoder = e
	}
}

// WithAllowlist sets the lookup resolving metadata.<key> filters to asset ids.
// Without one, metadata filters are rejected as invalid.
func WithAllowlist(l filter.AllowlistLookup) Option {
	return func(o *options) {
		o.allowlist = l
	}
}

// WithPointerStore sets where the CURRENT snapshot pointer lives, e.g. an
// s3.DDBPointerStore. Defaults to the snapshot store.
func WithPointerStore(s blobstore.BlobStore) Option {
	return func(o *options) {
		o.pointerStore = s
	}
}

// WithANNFactory sets the vector index implementation. Defaults to ann.NewFlat.
func WithANNFactory(f ann.Factory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithClock sets the clock used for snapshot timestamps and retention.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
