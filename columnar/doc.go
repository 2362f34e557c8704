// Package columnar holds the in-memory vertex tables of a snapshot.
//
// Each vertex type owns one Table. Tables are column oriented: every Column stores
// typed values plus a roaring bitmap of non-null rows. Schemas evolve additively by
// union-by-name. A column a table has never seen is backfilled with typed nulls, and
// int columns widen to float when a part carries floats. Any other type change is a
// SchemaConflictError.
//
// Rows are keyed by the globally unique vertex id. Appending an id that is already
// present is skipped (first write wins), which makes replaying manifests safe.
//
// Index clones are copy-on-write per table: a build starting from a base snapshot
// shares every table it does not touch.
package columnar
