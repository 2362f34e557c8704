// Package pagination turns a ranked moment list into pages with opaque,
// snapshot-bound continuation cursors, optionally grouped by asset.
//
// Pages are deterministic: for a fixed snapshot and request, every moment has
// a position in a strict total order and a cursor resumes strictly after the
// last sort key it carries.
package pagination
