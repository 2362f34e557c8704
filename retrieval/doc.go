// Package retrieval runs the per-modality candidate searches of a query against
// one snapshot.
//
// Each modality is served by a Strategy looked up once per request in a
// capability-keyed table. Vector strategies embed the query through an Encoder
// and search one or more vector columns; the fts strategy searches the keyword
// index. Filters are applied before ranking as roaring allow bitmaps, computed
// once per table and shared across modalities.
//
// A failing modality never fails the request: it is skipped and the reason is
// recorded in the Result.
package retrieval
