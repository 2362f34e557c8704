// Package rerank implements the optional, time-bounded second stage that
// reorders the text-bearing moments of a fused list.
//
// The stage never fails a query. When the reranker times out, is unavailable,
// errors, or too few moments carry text, the fused order is returned unchanged
// and the Outcome records why. A timed-out call is abandoned, not retried.
//
// Reranked moments are written back into the positions the text-bearing moments
// occupied, so moments without text keep their fused slots. Scores are then
// reassigned by position, keeping the list sorted by score.
package rerank
