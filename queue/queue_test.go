package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopK(t *testing.T) {
	tk := NewTopK(3)
	for i, s := range []float64{0.1, 0.9, 0.5, 0.9, 0.7, 0.2} {
		tk.Push(uint32(i), s)
	}
	got := tk.Sorted()
	assert.Equal(t, []Item{{ID: 1, Score: 0.9}, {ID: 3, Score: 0.9}, {ID: 4, Score: 0.7}}, got)
}

func TestTopKTieKeepsLowerID(t *testing.T) {
	tk := NewTopK(1)
	tk.Push(5, 0.5)
	tk.Push(2, 0.5)
	tk.Push(9, 0.5)
	assert.Equal(t, []Item{{ID: 2, Score: 0.5}}, tk.Sorted())
}

func TestTopKZero(t *testing.T) {
	tk := NewTopK(0)
	tk.Push(1, 1)
	assert.Equal(t, 0, tk.Len())
	assert.Empty(t, tk.Sorted())
}
