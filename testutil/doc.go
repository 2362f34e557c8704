// Package testutil provides fixtures for tests.
//
// This package is intended for use in tests only. It generates seeded random
// unit vectors and writes small corpora of part files and manifests into an
// in-memory blob store:
//
//	c := testutil.NewCorpus()
//	f := c.Part(t, model.DocChunk, model.SectionCore, []testutil.Row{
//	    {"id": "c1", "asset_id": "doc-1", "content": "hello"},
//	})
//	m := c.Manifest(t, "m1", f)
package testutil
