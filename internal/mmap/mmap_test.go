package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte("snapshot bytes"), 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "snapshot bytes", string(m.Bytes()))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestOpen_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, m.Bytes())
	require.NoError(t, m.Close())
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
