package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32CStreamingMatchesOneShot(t *testing.T) {
	data := []byte("moments and evidence")
	h := NewCRC32C()
	_, _ = h.Write(data[:7])
	_, _ = h.Write(data[7:])
	assert.Equal(t, CRC32C(data), h.Sum32())
	// Known vector for the Castagnoli polynomial.
	assert.Equal(t, uint32(0xE3069283), CRC32C([]byte("123456789")))
}

func TestSHA256Strings(t *testing.T) {
	a := SHA256Strings([]string{"ab", "c"})
	b := SHA256Strings([]string{"a", "bc"})
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, SHA256Strings([]string{"ab", "c"}))
	assert.Len(t, SHA256Hex(nil), 64)
}
