// Package lexical defines the keyword index contract of a snapshot.
//
// Lexical search complements vector search for exact-match queries such as
// invoice numbers, SKUs or ticket ids, where embeddings are weak.
//
// # Built-in Implementation
//
// The bm25 subpackage provides an in-memory BM25 index:
//
//	idx := bm25.New()
//	idx.Add(lexical.DocRef{VertexType: model.DocChunk, Row: 0}, "invoice INV-2024-0042")
//	hits, _ := idx.Search(ctx, "INV-2024-0042", 10)
package lexical
