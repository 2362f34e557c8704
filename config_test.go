package vecfuse

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/vecfuse/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "rrf-v1;k=60;audio=0.8;fts=1.2;ocr=1;text=1;video=1;vision=0.8", cfg.Fusion.WeightSet().String())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("VECFUSE_TEST_MODE", "lenient")
	path := filepath.Join(t.TempDir(), "vecfuse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fusion:
  weight_version: rrf-v2
  weights:
    text: 1.0
    vision: 0.5
rerank:
  enabled: true
  timeout: 150ms
  confidence_gap:
    enabled: true
    min_score: 0.03
    gap: 0.01
build:
  mode: ${VECFUSE_TEST_MODE}
  compression: lz4
snapshot:
  retention: 1h
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "rrf-v2", cfg.Fusion.WeightVersion)
	assert.Equal(t, 60.0, cfg.Fusion.K, "unset fields keep defaults")
	assert.Equal(t, map[model.Modality]float64{model.ModalityText: 1, model.ModalityVision: 0.5}, cfg.Fusion.Weights)
	assert.True(t, cfg.Rerank.Enabled)
	assert.Equal(t, 150*time.Millisecond, cfg.Rerank.Timeout)
	assert.True(t, cfg.Rerank.ConfidenceGap.Enabled)
	assert.Equal(t, "lenient", cfg.Build.Mode)
	assert.Equal(t, "lz4", cfg.Build.Compression)
	assert.Equal(t, time.Hour, cfg.Snapshot.Retention)
	assert.Equal(t, 20, cfg.Pagination.DefaultPageLimit)
}

func TestParseConfigRejects(t *testing.T) {
	cases := map[string]string{
		"unknown build mode":   "build:\n  mode: yolo\n",
		"unknown compression":  "build:\n  compression: brotli\n",
		"negative weight":      "fusion:\n  weights:\n    text: -1\n",
		"unknown modality":     "fusion:\n  weights:\n    smell: 1\n",
		"page limits inverted": "pagination:\n  default_page_limit: 50\n  max_page_limit: 10\n",
		"zero top_k":           "retrieval:\n  default_top_k: 0\n",
		"gap out of range":     "rerank:\n  confidence_gap:\n    gap: 2\n",
		"not yaml":             "fusion: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
