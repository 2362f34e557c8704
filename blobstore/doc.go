// Package blobstore provides the storage abstraction for manifests, part files and
// snapshots.
//
// Everything vecfuse persists is addressed by a slash-separated name relative to a
// store root. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests and embedded use
//   - LocalStore: local filesystem with atomic writes and mmap reads
//   - s3.Store: Amazon S3 (with an optional DynamoDB-backed CURRENT pointer)
//   - minio.Store: MinIO and other S3-compatible services
//   - CachingStore: LRU read-through cache for immutable part files
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Put(ctx, name, data) error   // atomic
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
