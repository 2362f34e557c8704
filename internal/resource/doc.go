// Package resource governs the background work of index builds.
//
// A Controller bounds two things:
//
//   - Builds: how many builds may run at once (one by default, builds are
//     single-writer batch work).
//
//   - Upload IO: a token bucket over snapshot upload bytes so that a large
//     upload does not starve foreground reads of the same store.
//
// Typical use:
//
//	rc := resource.NewController(resource.Config{UploadBytesPerSec: 64 << 20})
//	if err := rc.AcquireBuild(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBuild()
//
// All methods are safe on a nil Controller and then impose no limit.
package resource
