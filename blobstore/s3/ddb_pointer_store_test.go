package s3

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/vecfuse/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient keeps items in memory keyed by base_uri and version.
type mockDDBClient struct {
	mu    sync.Mutex
	items map[string]map[uint64]string
	// raceOnce simulates another writer committing between read and write.
	raceOnce bool
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[uint64]string)}
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uri := params.Item["base_uri"].(*types.AttributeValueMemberS).Value
	v, _ := strconv.ParseUint(params.Item["version"].(*types.AttributeValueMemberN).Value, 10, 64)
	target := params.Item["target"].(*types.AttributeValueMemberS).Value

	rows := m.items[uri]
	if rows == nil {
		rows = make(map[uint64]string)
		m.items[uri] = rows
	}
	if m.raceOnce {
		m.raceOnce = false
		rows[v] = "other"
	}
	if _, exists := rows[v]; exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	rows[v] = target
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uri := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value
	var best uint64
	for v := range m.items[uri] {
		if v > best {
			best = v
		}
	}
	if best == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{{
		"base_uri": &types.AttributeValueMemberS{Value: uri},
		"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(best, 10)},
		"target":   &types.AttributeValueMemberS{Value: m.items[uri][best]},
	}}}, nil
}

func TestDDBPointerStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	inner := blobstore.NewMemoryStore()
	store := NewDDBPointerStore(inner, newMockDDBClient(), "pointers", "s3://bucket/search")

	_, err := store.Open(ctx, PointerName)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	for i := 1; i <= 11; i++ {
		require.NoError(t, store.Put(ctx, PointerName, []byte("snap-"+strconv.Itoa(i))))
	}

	got, err := blobstore.ReadAll(ctx, store, PointerName)
	require.NoError(t, err)
	assert.Equal(t, "snap-11", string(got))

	// The pointer never lands in the wrapped store.
	names, err := inner.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	// Other names pass through.
	require.NoError(t, store.Put(ctx, "snapshots/a.vfs", []byte("x")))
	names, err = store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/a.vfs"}, names)
	require.NoError(t, store.Delete(ctx, PointerName))
}

func TestDDBPointerStore_ConcurrentModification(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()
	store := NewDDBPointerStore(blobstore.NewMemoryStore(), ddb, "pointers", "uri")

	ddb.raceOnce = true
	err := store.Put(ctx, PointerName, []byte("mine"))
	assert.ErrorIs(t, err, ErrConcurrentModification)
}
