package client

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/relbatch/internal/batch"
	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/events"
)

type yamlProvider string

func (p yamlProvider) GetYAML() ([]byte, error) {
	return []byte(p), nil
}

type failingProvider struct{}

func (failingProvider) GetYAML() ([]byte, error) {
	return nil, errors.New("no config")
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
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

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
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

func (m *memStore) keys(substr string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.data {
		if strings.Contains(k, substr) {
			out = append(out, k)
		}
	}
	return out
}

func ordersSpec() *core.Spec {
	return &core.Spec{
		Table:         "orders",
		PrimaryKey:    []string{"id"},
		AutoIncrement: "id",
		Columns: map[string]core.Column{
			"id":   {Name: "id", Type: "int", AutoIncrement: true},
			"name": {Name: "name", Type: "varchar(32)"},
			"qty":  {Name: "qty", Type: "int", Default: "0"},
		},
		Relations: []core.Relation{{Name: "items"}},
	}
}

func itemsSpec() *core.Spec {
	return &core.Spec{
		Table:      "items",
		PrimaryKey: []string{"order_id", "sku"},
		Columns: map[string]core.Column{
			"order_id": {Name: "order_id", Type: "int"},
			"sku":      {Name: "sku", Type: "varchar(16)"},
			"qty":      {Name: "qty", Type: "int", Nullable: true},
		},
	}
}

func newClient(t *testing.T, config string, opts Options) (*ClientImpl, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	opts.DB = db
	c, err := NewClientImpl(context.Background(), yamlProvider(config), opts)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.Register(ctx, ordersSpec())
	require.NoError(t, err)
	_, err = c.Register(ctx, itemsSpec())
	require.NoError(t, err)
	return c, mock
}

func TestNewClientImplErrors(t *testing.T) {
	_, err := NewClientImpl(context.Background(), nil, Options{})
	assert.Error(t, err)

	_, err = NewClientImpl(context.Background(), failingProvider{}, Options{})
	assert.ErrorContains(t, err, "no config")

	_, err = NewClientImpl(context.Background(), yamlProvider("database:\n  port: 0\n"), Options{})
	assert.ErrorContains(t, err, "database.port")
}

func TestRegisterDefaultsLink(t *testing.T) {
	c, _ := newClient(t, "", Options{})

	spec, err := c.Registry().Lookup("orders")
	require.NoError(t, err)
	require.Len(t, spec.Relations, 1)
	assert.Equal(t, "items", spec.Relations[0].Target)
	assert.Equal(t, map[string]string{"order_id": "id"}, spec.Relations[0].Link)
}

func TestCreateSingleBody(t *testing.T) {
	c, mock := newClient(t, "", Options{})
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `orders` (`name`) VALUES (?)")).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `items` (`order_id`, `qty`, `sku`) VALUES (?, ?, ?)")).
		WithArgs(int64(7), 1, "A").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := c.Create(context.Background(), "orders", map[string]any{
		"name":  "a",
		"items": []any{map[string]any{"sku": "A", "qty": 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(7), res.Rows[0]["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateList(t *testing.T) {
	t.Run("flat rows insert in one statement", func(t *testing.T) {
		c, mock := newClient(t, "", Options{})
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `orders` (`name`) VALUES (?), (?)")).
			WithArgs("a", "b").
			WillReturnResult(sqlmock.NewResult(0, 2))

		res, err := c.Create(context.Background(), "orders", []any{
			map[string]any{"name": "a"},
			map[string]any{"name": "b"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Affected)
		assert.Empty(t, res.Rows)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rows with relations upsert children first", func(t *testing.T) {
		c, mock := newClient(t, "", Options{})
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `items` (`order_id`, `sku`) VALUES (?, ?)")).
			WithArgs(1, "A").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `orders` (`id`, `name`) VALUES (?, ?)")).
			WithArgs(1, "a").
			WillReturnResult(sqlmock.NewResult(0, 1))

		res, err := c.Create(context.Background(), "orders", []map[string]any{
			{"id": 1, "name": "a", "items": []any{map[string]any{"sku": "A"}}},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Affected)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateRejectsBadPayload(t *testing.T) {
	c, mock := newClient(t, "", Options{})

	_, err := c.Create(context.Background(), "orders", "not a row")
	require.Error(t, err)
	assert.True(t, core.IsInvalidArgument(err))

	_, err = c.Create(context.Background(), "customers", map[string]any{"name": "a"})
	assert.ErrorIs(t, err, core.ErrSpecNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate(t *testing.T) {
	t.Run("where and attributes update every match", func(t *testing.T) {
		c, mock := newClient(t, "", Options{})
		mock.ExpectExec(regexp.QuoteMeta("UPDATE `orders` SET `name` = ? WHERE `qty` = ?")).
			WithArgs("x", 3).
			WillReturnResult(sqlmock.NewResult(0, 4))

		res, err := c.Update(context.Background(), "orders", map[string]any{
			"where":      map[string]any{"qty": 3},
			"attributes": map[string]any{"name": "x"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(4), res.Affected)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty where updates nothing", func(t *testing.T) {
		c, mock := newClient(t, "", Options{})

		res, err := c.Update(context.Background(), "orders", map[string]any{
			"where":      map[string]any{},
			"attributes": map[string]any{"name": "x"},
		})
		require.NoError(t, err)
		assert.Zero(t, res.Affected)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("single body updates the stored row", func(t *testing.T) {
		c, mock := newClient(t, "", Options{})
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `orders`")).
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "qty"}).AddRow(int64(1), "a", int64(2)))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE `orders` SET `name` = ? WHERE `id` = ?")).
			WithArgs("b", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		res, err := c.Update(context.Background(), "orders", map[string]any{"id": 1, "name": "b"})
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "b", res.Rows[0]["name"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list updates with one case statement", func(t *testing.T) {
		c, mock := newClient(t, "", Options{})
		mock.ExpectExec(regexp.QuoteMeta(
			"UPDATE `orders` SET `name` = CASE WHEN `id` = ? THEN ? WHEN `id` = ? THEN ? ELSE `name` END WHERE `id` IN (?, ?)")).
			WithArgs(1, "a", 2, "b", 1, 2).
			WillReturnResult(sqlmock.NewResult(0, 2))

		res, err := c.Update(context.Background(), "orders", []any{
			map[string]any{"id": 1, "name": "a"},
			map[string]any{"id": 2, "name": "b"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Affected)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("configured table upserts lists", func(t *testing.T) {
		c, mock := newClient(t, "tables:\n  orders:\n    upsert_update: true\n", Options{})
		mock.ExpectExec(regexp.QuoteMeta(
			"INSERT INTO `orders` (`id`, `name`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `name` = VALUES(`name`)")).
			WithArgs(1, "a").
			WillReturnResult(sqlmock.NewResult(0, 1))

		res, err := c.Update(context.Background(), "orders", []map[string]any{{"id": 1, "name": "a"}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Affected)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("configured reference columns", func(t *testing.T) {
		c, mock := newClient(t, "tables:\n  orders:\n    reference_columns: [name]\n", Options{})
		mock.ExpectExec(regexp.QuoteMeta(
			"UPDATE `orders` SET `qty` = CASE WHEN `name` = ? THEN ? ELSE `qty` END WHERE `name` IN (?)")).
			WithArgs("a", 5, "a").
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := c.UpdateMany(context.Background(), "orders", []map[string]any{{"name": "a", "qty": 5}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDelete(t *testing.T) {
	c, mock := newClient(t, "", Options{})
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `orders` WHERE `name` = ?")).
		WithArgs("x").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `orders` WHERE `id` IN (?, ?)")).
		WithArgs(1, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := c.Delete(context.Background(), "orders", map[string]any{"where": map[string]any{"name": "x"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = c.DeleteMany(context.Background(), "orders", []map[string]any{{"id": 1}, {"id": 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJournalAndEvents(t *testing.T) {
	store := &memStore{}
	config := "journal:\n  enabled: true\nevents:\n  enabled: true\n  queue_type: memory\n"
	c, mock := newClient(t, config, Options{KVStore: store})
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `orders` (`name`) VALUES (?)")).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(3, 1))

	var got []*core.MutationEvent
	require.NoError(t, c.Subscribe("orders", func(_ context.Context, e *core.MutationEvent) error {
		got = append(got, e)
		return nil
	}))

	_, err := c.Insert(context.Background(), "orders", []map[string]any{{"name": "a"}}, batch.ModeInsert)
	require.NoError(t, err)

	assert.Len(t, store.keys(":orders:entry:"), 1)
	assert.Len(t, store.keys(":orders:ack:"), 1)

	n, err := c.Dispatcher().Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, got, 1)
	assert.Equal(t, core.OperationInsert, got[0].Operation)
	assert.Equal(t, int64(3), got[0].LastInsertID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventsDisabled(t *testing.T) {
	c, _ := newClient(t, "", Options{})
	err := c.Subscribe("", func(context.Context, *core.MutationEvent) error { return nil })
	assert.ErrorIs(t, err, ErrEventsDisabled)
	assert.Nil(t, c.Dispatcher())
	require.NoError(t, c.Start(context.Background()))
	assert.False(t, c.IsRunning())
	require.NoError(t, c.Stop())
}

func TestStartStop(t *testing.T) {
	queue := events.NewMemoryQueue(10)
	c, _ := newClient(t, "events:\n  enabled: true\n", Options{Queue: queue})

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.IsRunning())
	require.NoError(t, c.Stop())
	assert.False(t, c.IsRunning())
}

func TestTransaction(t *testing.T) {
	t.Run("commits", func(t *testing.T) {
		c, mock := newClient(t, "", Options{})
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `orders` (`name`) VALUES (?)")).
			WithArgs("a").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `orders` WHERE `id` IN (?)")).
			WithArgs(9).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := c.Transaction(context.Background(), func(tx *ClientImpl) error {
			if _, err := tx.Create(context.Background(), "orders", []any{map[string]any{"name": "a"}}); err != nil {
				return err
			}
			_, err := tx.DeleteMany(context.Background(), "orders", []map[string]any{{"id": 9}})
			return err
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		c, mock := newClient(t, "", Options{})
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `orders`")).
			WillReturnError(errors.New("deadlock"))
		mock.ExpectRollback()

		err := c.Transaction(context.Background(), func(tx *ClientImpl) error {
			_, err := tx.Insert(context.Background(), "orders", []map[string]any{{"name": "a"}}, batch.ModeInsert)
			return err
		})
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClose(t *testing.T) {
	c, mock := newClient(t, "", Options{})
	mock.ExpectClose()

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Create(context.Background(), "orders", map[string]any{"name": "a"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Register(context.Background(), itemsSpec())
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}
