package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/vecfuse/blobstore"
	"github.com/hupe1980/vecfuse/internal/hash"
)

// Client is the subset of the S3 API used by Store.
type Client interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// UploadConfig configures multipart uploads.
type UploadConfig struct {
	// PartSize is the minimum part size for multipart uploads.
	// Blobs at or below this size are written with a single PutObject.
	// Default: 8MB
	PartSize int64

	// Concurrency is the number of concurrent part uploads.
	// Default: 5
	Concurrency int
}

// DefaultUploadConfig returns the default upload settings.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:    8 * 1024 * 1024,
		Concurrency: 5,
	}
}

// Store implements blobstore.BlobStore for S3.
type Store struct {
	client   Client
	bucket   string
	prefix   string
	upload   UploadConfig
	uploader *manager.Uploader
}

// Option configures New.
type Option func(*newOptions)

type newOptions struct {
	prefix string
	region string
	upload UploadConfig
}

// WithPrefix sets the key prefix prepended to every blob name.
func WithPrefix(prefix string) Option {
	return func(o *newOptions) { o.prefix = prefix }
}

// WithRegion overrides the AWS region from the default config chain.
func WithRegion(region string) Option {
	return func(o *newOptions) { o.region = region }
}

// WithUploadConfig overrides the multipart upload settings.
func WithUploadConfig(cfg UploadConfig) Option {
	return func(o *newOptions) { o.upload = cfg }
}

// New creates a Store using the default AWS credential chain.
func New(ctx context.Context, bucket string, optFns ...Option) (*Store, error) {
	o := newOptions{upload: DefaultUploadConfig()}
	for _, fn := range optFns {
		fn(&o)
	}

	var cfgOpts []func(*config.LoadOptions) error
	if o.region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(o.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	st := NewStore(s3.NewFromConfig(cfg), bucket, o.prefix)
	st.setUploadConfig(o.upload)
	return st, nil
}

// NewStore creates a new S3 blob store.
// rootPrefix is prepended to all keys (e.g. "search/").
func NewStore(client Client, bucket, rootPrefix string) *Store {
	s := &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
	s.setUploadConfig(DefaultUploadConfig())
	return s
}

func (s *Store) setUploadConfig(cfg UploadConfig) {
	s.upload = cfg
	s.uploader = manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = cfg.PartSize
		u.Concurrency = cfg.Concurrency
	})
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open opens a blob for reading.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}

	return &s3Blob{
		client: s.client,
		bucket: s.bucket,
		key:    key,
		size:   aws.ToInt64(head.ContentLength),
	}, nil
}

// Put writes a blob. Small blobs carry a CRC32C checksum; large blobs use multipart upload.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	key := s.key(name)

	if int64(len(data)) <= s.upload.PartSize {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:         aws.String(s.bucket),
			Key:            aws.String(key),
			Body:           bytes.NewReader(data),
			ContentLength:  aws.Int64(int64(len(data))),
			ChecksumCRC32C: aws.String(computeCRC32C(data)),
		})
		return err
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

// Delete removes a blob.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// List returns all blob names with the given prefix, relative to the store root.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.key(prefix)
	if strings.HasSuffix(prefix, "/") && !strings.HasSuffix(fullPrefix, "/") {
		fullPrefix += "/"
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			rel = strings.TrimPrefix(rel, "/")
			if rel != "" {
				keys = append(keys, rel)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

// computeCRC32C computes the CRC32C checksum and returns it as base64 (S3 format).
func computeCRC32C(data []byte) string {
	sum := hash.CRC32C(data)
	b := []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	return base64.StdEncoding.EncodeToString(b)
}

// s3Blob implements blobstore.Blob with ranged GETs.
type s3Blob struct {
	client Client
	bucket string
	key    string
	size   int64
}

func (b *s3Blob) Close() error {
	return nil
}

func (b *s3Blob) Size() int64 {
	return b.size
}

func (b *s3Blob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off >= b.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	end := off + int64(len(p)) - 1
	if end >= b.size {
		end = b.size - 1
	}

	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	want := int(end - off + 1)
	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil {
		return n, err
	}
	if want < len(p) {
		return n, io.EOF
	}
	return n, nil
}
