package journal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failSet bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, core.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("store down")
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *memStore) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	for k, v := range items {
		if err := m.Set(ctx, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func TestAppendAndGet(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	j := New(store, "test", time.Hour, nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	stmt := core.Statement{
		SQL:    "INSERT INTO `t` (`a`, `b`) VALUES (?, LOWER(:b))",
		Args:   []any{"x"},
		Params: map[string]any{"b": "Y"},
		Table:  "t",
		Op:     core.OperationInsert,
	}
	id, err := j.Append(ctx, stmt)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entry, err := j.Get(ctx, "t", id)
	require.NoError(t, err)
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, core.OperationInsert, entry.Operation)
	assert.Equal(t, "INSERT INTO `t` (`a`, `b`) VALUES (?, LOWER(?))", entry.SQL)
	assert.Equal(t, []any{"x", "Y"}, entry.Args)
	assert.True(t, fixed.Equal(entry.Timestamp))

	assert.Len(t, store.keys("test:t:entry:"), 1)
	assert.Len(t, store.keys("test:t:timestamp:"), 1)
	assert.Equal(t, time.Hour, store.ttls["test:t:entry:"+id])
}

func TestAcknowledge(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	j := New(store, "", 0, nil)

	id, err := j.Append(ctx, core.Statement{SQL: "DELETE FROM `t`", Table: "t", Op: core.OperationDelete})
	require.NoError(t, err)

	ok, err := j.IsAcknowledged(ctx, "t", id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, j.Acknowledge(ctx, "t", id))
	ok, err = j.IsAcknowledged(ctx, "t", id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7*defaultTTL, store.ttls[defaultPrefix+":t:ack:"+id])

	require.NoError(t, j.Discard(ctx, "t", id))
	_, err = j.Get(ctx, "t", id)
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
	ok, err = j.IsAcknowledged(ctx, "t", id)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, j.Acknowledge(ctx, "t", ""))
}

func TestAppendErrors(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	j := New(store, "", 0, nil)

	_, err := j.Append(ctx, core.Statement{SQL: "SELECT :missing", Table: "t"})
	assert.Error(t, err)

	store.failSet = true
	_, err = j.Append(ctx, core.Statement{SQL: "DELETE FROM `t`", Table: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}
