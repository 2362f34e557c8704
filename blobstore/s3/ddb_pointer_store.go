package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/vecfuse/blobstore"
)

// PointerName is the blob name intercepted by DDBPointerStore.
const PointerName = "CURRENT"

// ErrConcurrentModification is returned when a concurrent pointer write is detected.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DDBPointerStore wraps a BlobStore and keeps the CURRENT snapshot pointer in DynamoDB.
//
// Object stores lack compare-and-swap, so concurrent activations could otherwise lose
// updates. Every pointer write is a new version row guarded by a conditional put; reads
// return the highest version.
//
// Table schema:
//   - Partition key: base_uri (string)
//   - Sort key: version (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name vecfuse-pointers \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBPointerStore struct {
	inner     blobstore.BlobStore
	ddbClient DDBClient
	tableName string
	baseURI   string
}

// NewDDBPointerStore creates a pointer store. baseURI partitions pointers of different
// deployments sharing one table (e.g. "s3://bucket/prefix").
func NewDDBPointerStore(inner blobstore.BlobStore, ddbClient DDBClient, tableName, baseURI string) *DDBPointerStore {
	return &DDBPointerStore{
		inner:     inner,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Open opens a blob for reading. CURRENT is served from DynamoDB.
func (s *DDBPointerStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name != PointerName {
		return s.inner.Open(ctx, name)
	}
	version, target, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, blobstore.ErrNotFound
	}
	return &pointerBlob{content: []byte(target)}, nil
}

// Put writes a blob. CURRENT is committed with a DynamoDB conditional write.
func (s *DDBPointerStore) Put(ctx context.Context, name string, data []byte) error {
	if name != PointerName {
		return s.inner.Put(ctx, name, data)
	}
	return s.commit(ctx, string(data))
}

// Delete deletes a blob. The pointer history is append-only and never deleted.
func (s *DDBPointerStore) Delete(ctx context.Context, name string) error {
	if name == PointerName {
		return nil
	}
	return s.inner.Delete(ctx, name)
}

// List lists blobs with prefix from the wrapped store.
func (s *DDBPointerStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *DDBPointerStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute in DynamoDB")
	}
	targetAttr, ok := item["target"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid target attribute in DynamoDB")
	}
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse version: %w", err)
	}
	return version, targetAttr.Value, nil
}

func (s *DDBPointerStore) commit(ctx context.Context, target string) error {
	current, _, err := s.latest(ctx)
	if err != nil {
		return err
	}

	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(current+1, 10)},
			"target":   &types.AttributeValueMemberS{Value: target},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit pointer to DynamoDB: %w", err)
	}
	return nil
}

// pointerBlob is an in-memory blob holding the pointer target.
type pointerBlob struct {
	content []byte
}

func (b *pointerBlob) Close() error { return nil }

func (b *pointerBlob) Size() int64 { return int64(len(b.content)) }

func (b *pointerBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off >= int64(len(b.content)) {
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
