// Package hash provides the checksums used for snapshot and part file integrity.
//
// Snapshot files end with a CRC32-Castagnoli footer over the header and payload.
// The S3 blob store sends the same checksum with PutObject so the service can
// verify uploads server side.
//
// For one-shot checksums:
//
//	checksum := hash.CRC32C(data)
//
// For streaming checksums:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
//
// Content hashes of part files use SHA-256 and are exposed through SHA256Hex.
package hash
