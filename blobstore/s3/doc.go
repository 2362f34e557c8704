// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("search/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
// # Features
//
//   - Range reads for snapshot and part files
//   - Multipart uploads for large snapshots
//   - Automatic pagination for listing
//   - DDBPointerStore: DynamoDB conditional writes for the CURRENT snapshot pointer
package s3
