// Package distance provides the vector math used by similarity search.
//
// Embedding backends deliver fixed-dimension, pre-normalized vectors, but nothing
// downstream relies on that: Cosine normalizes by the norms it computes.
//
//	sim := distance.Similarity(query, row) // 1 - cosine distance, clamped to [0,1]
//	unit, ok := distance.NormalizeL2Copy(vec)
package distance
