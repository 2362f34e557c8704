// Package builder applies manifests to a base snapshot and persists the result.
//
// A build runs five phases in order: load base, apply deltas, build vectors,
// write, upload. Within a phase work is parallel: the parts of a manifest are
// fetched and decoded concurrently, tables of different vertex types are appended
// concurrently, and the vector index of every touched column is rebuilt
// concurrently. Untouched vector indexes are reused from the base.
//
// Builds are additive and idempotent. Record ids already present are skipped, and
// the set of applied manifests (not a cursor) decides what is new, so replaying
// the same manifests yields the same snapshot marker and row counts.
//
//	b := builder.New(parts, snapshots, func(o *builder.Options) {
//	    o.Mode = builder.ModeLenient
//	})
//	res, err := b.Build(ctx, mgr.Current(), manifests)
//	if err == nil && !res.Skipped {
//	    err = mgr.Activate(ctx, res.Snapshot)
//	}
package builder
