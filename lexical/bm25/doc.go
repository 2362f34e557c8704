// Package bm25 provides a BM25-based lexical search index.
//
// The index is in-memory with document-at-a-time (DAAT) scoring over posting
// lists that are kept in document order. Documents are append-only; snapshots
// rebuild the index from their text columns on load.
//
// # Parameters
//
// Uses standard BM25 parameters: k1=1.2, b=0.75
//
// # Thread Safety
//
// The index is safe for concurrent reads and writes.
package bm25
