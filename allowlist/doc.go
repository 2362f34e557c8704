// Package allowlist resolves custom metadata filters (metadata.<key>) to asset ids.
//
// Asset metadata lives outside snapshots. Implementations answer a single question:
// which assets have metadata key equal to one of the given values.
//
//   - Map: in-memory, for tests and small static deployments
//   - SQLite: table asset_metadata(asset_id, key, value) via modernc.org/sqlite
//   - Cached: LRU with expiry in front of any other implementation
package allowlist
