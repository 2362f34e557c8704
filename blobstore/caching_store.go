package blobstore

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachingStore wraps a BlobStore and keeps the full contents of small blobs in an LRU.
//
// Part files are content addressed and never rewritten, so repeated builds over a
// remote store read each part once. Put and Delete invalidate the cached entry.
type CachingStore struct {
	inner    BlobStore
	cache    *lru.Cache[string, []byte]
	maxBlob  int64
	hits     atomic.Int64
	misses   atomic.Int64
	bypassed atomic.Int64
}

// NewCachingStore creates a CachingStore holding up to entries blobs.
// Blobs larger than maxBlobSize bytes are never cached; 0 selects 16MB.
func NewCachingStore(inner BlobStore, entries int, maxBlobSize int64) (*CachingStore, error) {
	if maxBlobSize <= 0 {
		maxBlobSize = 16 << 20
	}
	c, err := lru.New[string, []byte](entries)
	if err != nil {
		return nil, err
	}
	return &CachingStore{inner: inner, cache: c, maxBlob: maxBlobSize}, nil
}

// Open returns a cached blob when present, otherwise reads through.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	if data, ok := s.cache.Get(name); ok {
		s.hits.Add(1)
		return &memoryBlob{data: data}, nil
	}
	s.misses.Add(1)

	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	if b.Size() > s.maxBlob {
		s.bypassed.Add(1)
		return b, nil
	}
	defer func() { _ = b.Close() }()

	data := make([]byte, b.Size())
	if len(data) > 0 {
		n, err := b.ReadAt(ctx, data, 0)
		if n != len(data) {
			return nil, err
		}
	}
	s.cache.Add(name, data)
	return &memoryBlob{data: data}, nil
}

// Put invalidates the cached entry and writes through.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.cache.Remove(name)
	return s.inner.Put(ctx, name, data)
}

// Delete invalidates the cached entry and deletes from the wrapped store.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.cache.Remove(name)
	return s.inner.Delete(ctx, name)
}

// List is never cached.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits     int64
	Misses   int64
	Bypassed int64
	Entries  int
}

// Stats returns a snapshot of the cache counters.
func (s *CachingStore) Stats() CacheStats {
	return CacheStats{
		Hits:     s.hits.Load(),
		Misses:   s.misses.Load(),
		Bypassed: s.bypassed.Load(),
		Entries:  s.cache.Len(),
	}
}
