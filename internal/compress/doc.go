// Package compress wraps the zstd and LZ4 codecs used for snapshot payloads and
// ingestion part files.
//
// Two formats are supported:
//
//   - Blocks: [uncompressed uint32][compressed uint32][data]. Used inside snapshot
//     files. A compressed size of 0 marks data stored raw because compression did
//     not pay off.
//   - Frames: standard zstd and LZ4 frame streams as written by external tools. Used
//     for part files named "*.zst" or "*.lz4".
package compress
