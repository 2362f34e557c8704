// Package snapshot holds immutable, queryable materializations of applied
// manifests and the manager that owns the active one.
//
// A Snapshot bundles the columnar tables, one vector index per vector column, a BM25
// index over text-bearing rows and an asset lookup. It is never mutated after
// construction, so any number of queries may read it without locking.
//
// # File format
//
//	[magic "VFSN"][version uint16][codec uint8][reserved uint8]
//	[block: compressed msgpack payload]
//	[crc32c uint32 over everything before]
//
// Only tables and metadata are persisted. Vector and keyword indexes are rebuilt
// when a file is decoded.
//
// # Manager
//
// The Manager keeps the active snapshot behind an atomic pointer. Activation and
// rollback are serialized by a mutex; readers never block. The manager starts
// with an empty snapshot and never holds nil.
package snapshot
