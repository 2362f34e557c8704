// Package fusion merges per-modality ranked candidate lists into one list of
// moments using weighted Reciprocal Rank Fusion:
//
//	score(moment) = Σ_m weight[m] / (k + rank_m)
//
// where rank_m is the best 1-based rank of any candidate of the moment in the
// list of modality m. Modalities without a candidate for a moment contribute
// nothing. Every moment explains its score with one Why entry per contributing
// modality.
package fusion
