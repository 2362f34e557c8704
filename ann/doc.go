// Package ann defines the vector index contract of a snapshot and ships an exact
// flat implementation.
//
// One index exists per (vertex type, vector column). Similarity is
// 1 - cosine distance clamped to [0,1]; ties order by row. Rows without a vector are
// not indexed and therefore never returned. Approximate implementations plug in
// through a Factory.
package ann
