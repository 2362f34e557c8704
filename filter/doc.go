// Package filter compiles and evaluates request filters.
//
// A filter is a tree of all/any/not nodes over leaf comparisons. Leaves may name the
// system fields of a moment (asset_id, asset_type, duration_ms, created_at,
// source_type, start_ms, end_ms) or a custom metadata.<key> field. Metadata is not
// stored in snapshots: Compile resolves such leaves through an AllowlistLookup into an
// asset_id restriction, so evaluation never calls out.
//
// Compiled programs run as pre-filters: Allow produces a roaring bitmap of the rows of
// a table that pass, which vector and keyword search then honor.
package filter
