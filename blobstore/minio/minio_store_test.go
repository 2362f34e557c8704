package minio

import (
	"context"
	"testing"

	"github.com/hupe1980/vecfuse/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_KeyMapping(t *testing.T) {
	s := NewStore(nil, "bucket", "prod/")
	assert.Equal(t, "prod/snapshots/a.vfs", s.key("snapshots/a.vfs"))
	assert.Equal(t, "snapshots/a.vfs", s.rel("prod/snapshots/a.vfs"))

	root := NewStore(nil, "bucket", "")
	assert.Equal(t, "CURRENT", root.key("CURRENT"))
	assert.Equal(t, "CURRENT", root.rel("CURRENT"))
}

// TestMinioStore_Integration requires a running MinIO instance.
func TestMinioStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping MinIO integration test in short mode")
	}
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	bucket := "test-vecfuse"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "parts/p1.json", data))

	got, err := blobstore.ReadAll(ctx, store, "parts/p1.json")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err := store.List(ctx, "parts/")
	require.NoError(t, err)
	assert.Contains(t, names, "parts/p1.json")

	require.NoError(t, store.Delete(ctx, "parts/p1.json"))
	_, err = store.Open(ctx, "parts/p1.json")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	require.NoError(t, store.Delete(ctx, "parts/p1.json"))
}
