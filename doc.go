// Package vecfuse provides a multimodal retrieval fusion engine over
// incrementally built, versioned index snapshots.
//
// Ingestion writes manifests that reference columnar part files per vertex
// type (DocChunk, Transcript, ImageAsset, AudioClip, VideoClip, MediaAsset).
// BuildIndex applies the manifests a snapshot has not seen yet, builds one
// vector index per vector column and persists a new immutable snapshot. The
// engine activates it atomically; searches already running keep the snapshot
// they started with.
//
// # Quick Start
//
//	ctx := context.Background()
//	store := blobstore.NewLocalStore("./data")
//	eng, _ := vecfuse.Open(ctx, nil,
//		manifest.NewBlobStore(store, "manifests"), store, store,
//		vecfuse.WithEncoder(myEncoder))
//	defer eng.Close()
//
//	report, _ := eng.BuildIndex(ctx)
//	fmt.Println(report.SnapshotMarker, report.TotalRows)
//
//	resp, _ := eng.Search(ctx, vecfuse.SearchRequest{
//		QueryText: "quarterly revenue chart",
//		Mode:      vecfuse.ModeAll,
//		PageLimit: 10,
//	})
//	for _, m := range resp.Results {
//		fmt.Println(m.AssetID, m.StartMs, m.Score, m.Modality)
//	}
//
// # Search Pipeline
//
// Each modality (text, ocr, vision, audio, video, fts) is searched
// independently with top_k candidates. Results are merged per moment, an
// asset plus time range, with weighted Reciprocal Rank Fusion:
//
//	score = Σ weight[m] / (k + rank[m])
//
// A modality that did not find a moment contributes nothing. An optional
// reranker reorders the text-bearing moments under a timeout and falls back to
// the fused order on timeout or failure. Pages are cut in a strict total order
// (score, asset_id, start_ms, primary_evidence_id) and carry a page token
// bound to the query and the snapshot.
//
// # Operations
//
//   - BuildIndex: apply new manifests, strict or lenient.
//   - ReloadSnapshot, Rollback: switch the active snapshot.
//   - SnapshotStatus: active and retained snapshot plus the last build report.
//   - GC: delete old snapshot files.
//   - Watch: build whenever manifests appear in a directory.
//
// # Storage
//
// Snapshots and parts live in a blobstore.BlobStore: local disk, memory, S3
// (with a DynamoDB-backed CURRENT pointer) or MinIO.
package vecfuse
