package kvstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/registry"
)

// fakeDynamo keeps items in memory. When unprocessOnce is set, the first
// BatchWriteItem call reports its last request as unprocessed.
type fakeDynamo struct {
	mu            sync.Mutex
	items         map[string]map[string]types.AttributeValue
	batchCalls    int
	unprocessOnce bool
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["key"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := &dynamodb.BatchWriteItemOutput{}
	for table, reqs := range in.RequestItems {
		if f.unprocessOnce && len(reqs) > 1 {
			f.unprocessOnce = false
			last := len(reqs) - 1
			out.UnprocessedItems = map[string][]types.WriteRequest{table: reqs[last:]}
			reqs = reqs[:last]
		}
		for _, req := range reqs {
			f.items[keyOf(req.PutRequest.Item)] = req.PutRequest.Item
		}
	}
	return out, nil
}

func TestDynamoDBKVStore(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	store := NewDynamoDBKVStore(fake, "journal", nil)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	ok, err := store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
	ok, err = store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDynamoDBKVStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewDynamoDBKVStore(newFakeDynamo(), "journal", nil)
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := store.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
	ok, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDynamoDBKVStoreBatchSet(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	fake.unprocessOnce = true
	store := NewDynamoDBKVStore(fake, "journal", nil)

	items := make(map[string][]byte, 30)
	for i := 0; i < 30; i++ {
		items[fmt.Sprintf("k%02d", i)] = []byte{byte(i)}
	}
	require.NoError(t, store.BatchSet(ctx, items, time.Hour))

	assert.Len(t, fake.items, 30)
	// Two chunks plus one resubmission of the unprocessed request.
	assert.Equal(t, 3, fake.batchCalls)
	for key, want := range items {
		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestClosedStore(t *testing.T) {
	store := NewDynamoDBKVStore(newFakeDynamo(), "journal", nil)
	require.NoError(t, store.Close())

	_, err := store.Get(context.Background(), "a")
	assert.Error(t, err)
	assert.Error(t, store.Set(context.Background(), "a", nil, 0))
}

func TestFactoriesRegistered(t *testing.T) {
	assert.Equal(t, []string{"dynamodb", "redis"}, GetRegisteredTypes())
	assert.True(t, IsTypeRegistered("redis"))
	assert.False(t, IsTypeRegistered("etcd"))

	_, ok := registry.GetValidator("redis")
	assert.True(t, ok)
	_, ok = registry.GetValidator("dynamodb")
	assert.True(t, ok)
}

func TestCreateRejectsBadConfig(t *testing.T) {
	_, err := Create(context.Background(), KVStoreConfig{}, nil)
	assert.Error(t, err)

	_, err = Create(context.Background(), KVStoreConfig{Type: "etcd"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")

	_, err = Create(context.Background(), KVStoreConfig{Type: "redis"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestJournalConfigValidation(t *testing.T) {
	base := registry.DefaultInternalConfig().Journal.KVStore
	tests := []struct {
		name    string
		mutate  func(*registry.InternalKVStoreConfig)
		wantErr string
	}{
		{"redis defaults", func(*registry.InternalKVStoreConfig) {}, ""},
		{"redis db out of range", func(c *registry.InternalKVStoreConfig) { c.RedisConfig.DB = 16 }, "between 0 and 15"},
		{"redis pool size", func(c *registry.InternalKVStoreConfig) { c.RedisConfig.PoolSize = 0 }, "pool_size"},
		{"zero timeout", func(c *registry.InternalKVStoreConfig) { c.ReadTimeout = 0 }, "read_timeout"},
		{"dynamodb without region", func(c *registry.InternalKVStoreConfig) {
			c.Type = "dynamodb"
			c.DynamoDBConfig.TableName = "journal"
		}, "region"},
		{"dynamodb", func(c *registry.InternalKVStoreConfig) {
			c.Type = "dynamodb"
			c.DynamoDBConfig = registry.InternalDynamoDBConfig{Region: "eu-west-1", TableName: "journal"}
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.RedisConfig.Endpoints = append([]string(nil), base.RedisConfig.Endpoints...)
			tt.mutate(&cfg)
			validator, ok := registry.GetValidator(cfg.Type)
			require.True(t, ok)
			err := validator.Validate(&cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
