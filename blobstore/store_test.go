package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStoreLifecycle(t *testing.T, store BlobStore) {
	t.Helper()
	ctx := context.Background()

	data := []byte("hello world, this is a test blob")
	require.NoError(t, store.Put(ctx, "snapshots/a.vfs", data))
	require.NoError(t, store.Put(ctx, "snapshots/b.vfs", []byte("b")))
	require.NoError(t, store.Put(ctx, "manifests/m1.json", []byte("{}")))

	blob, err := store.Open(ctx, "snapshots/a.vfs")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	_, err = blob.ReadAt(ctx, buf, int64(len(data)))
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, blob.Close())

	all, err := ReadAll(ctx, store, "snapshots/a.vfs")
	require.NoError(t, err)
	assert.Equal(t, data, all)

	names, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/a.vfs", "snapshots/b.vfs"}, names)

	require.NoError(t, store.Put(ctx, "snapshots/b.vfs", []byte("bb")))
	all, err = ReadAll(ctx, store, "snapshots/b.vfs")
	require.NoError(t, err)
	assert.Equal(t, "bb", string(all))

	require.NoError(t, store.Delete(ctx, "snapshots/a.vfs"))
	require.NoError(t, store.Delete(ctx, "snapshots/a.vfs"))
	_, err = store.Open(ctx, "snapshots/a.vfs")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	testStoreLifecycle(t, NewMemoryStore())
}

func TestLocalStore_Lifecycle(t *testing.T) {
	testStoreLifecycle(t, NewLocalStore(t.TempDir()))
}

func TestLocalStore_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	require.NoError(t, store.Put(context.Background(), "x/y.bin", []byte("data")))

	entries, err := os.ReadDir(filepath.Join(dir, "x"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "y.bin", entries[0].Name())
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "missing"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryStore_PutCopies(t *testing.T) {
	store := NewMemoryStore()
	data := []byte("abc")
	require.NoError(t, store.Put(context.Background(), "k", data))
	data[0] = 'z'

	got, err := ReadAll(context.Background(), store, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
