// Package model defines core types shared across vecfuse.
//
// # Identity Types
//
//   - VertexType: ingestion table a record belongs to (DocChunk, Transcript, ...)
//   - Modality: retrieval channel a candidate came from (text, ocr, vision, ...)
//   - Section: manifest part section (core, text, vector)
//
// # Result Types
//
//   - Candidate: one per-modality retrieval hit against a snapshot
//   - Moment: canonical fused result unit with time range, score and evidence
//
// Moments are constructed per query and never persisted. Moment.Validate enforces
// the evidence rules every returned moment must satisfy.
package model
