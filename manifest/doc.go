// Package manifest reads ingestion manifests and derives the version boundary of a
// snapshot from the set of manifests applied to it.
//
// A manifest is immutable. It lists the columnar part files one ingestion run wrote,
// per vertex type and section. The builder never keeps a mutable "last seen" cursor:
// new work is the set difference between everything listed and what a base snapshot
// already applied, so replaying the same set is always a no-op.
package manifest
