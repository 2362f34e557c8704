package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Mixed", []float32{1, -1, 2}, []float32{1, 1, -2}, -4},
		{"Empty", []float32{}, []float32{}, 0},
		{"Unrolled", []float32{1, 1, 1, 1, 1}, []float32{2, 2, 2, 2, 2}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Dot(tt.a, tt.b), 1e-5)
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, Similarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	// Opposite vectors would score -1 and are clamped.
	assert.Equal(t, 0.0, Similarity([]float32{1, 0}, []float32{-1, 0}))
	assert.Equal(t, 0.0, Similarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
	assert.Equal(t, 1.0, Clamp01(1.5))
}

func TestNormalize(t *testing.T) {
	v, ok := NormalizeL2Copy([]float32{3, 4})
	require.True(t, ok)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	_, ok = NormalizeL2Copy([]float32{0, 0})
	assert.False(t, ok)
}
