package prommetrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/vecfuse"
	"github.com/hupe1980/vecfuse/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ vecfuse.MetricsCollector = (*Collector)(nil)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New("vecfuse", reg)
	require.NoError(t, err)

	c.RecordBuild(false, 10, time.Second, nil)
	c.RecordBuild(true, 0, time.Millisecond, nil)
	c.RecordBuild(false, 0, time.Millisecond, errors.New("missing part"))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.rowsAdded))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.builds.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.builds.WithLabelValues("error")))

	c.RecordModality(model.ModalityText, 5, time.Millisecond, "")
	c.RecordModality(model.ModalityVision, 0, time.Millisecond, "no image vector")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.modalitySkips.WithLabelValues("vision")))

	c.RecordRerank(false, "timeout", 300*time.Millisecond)
	c.RecordRerank(true, "", 20*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reranks.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reranks.WithLabelValues("applied")))
}

func TestCollectorActiveSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New("vecfuse", reg)
	require.NoError(t, err)

	c.RecordActivate("00000001-aaaa", nil)
	c.RecordActivate("00000002-bbbb", nil)
	c.RecordActivate("00000003-cccc", errors.New("corrupt"))

	expected := `
# HELP vecfuse_snapshot_active_info Active snapshot marker
# TYPE vecfuse_snapshot_active_info gauge
vecfuse_snapshot_active_info{marker="00000002-bbbb"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "vecfuse_snapshot_active_info"))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activations.WithLabelValues("error")))
}

func TestCollectorDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New("vecfuse", reg)
	require.NoError(t, err)
	_, err = New("vecfuse", reg)
	require.Error(t, err)
}
