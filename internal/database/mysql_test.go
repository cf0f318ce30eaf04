package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

func newMock(t *testing.T) (*MySQLDatabase, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewFromDB(db), mock
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{
		Host:              "db",
		Port:              3306,
		Database:          "shop",
		Username:          "app",
		Password:          "secret",
		ConnectionTimeout: 5 * time.Second,
	}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "app:secret@tcp(db:3306)/shop")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "timeout=5s")
}

func TestQuoting(t *testing.T) {
	m, _ := newMock(t)
	assert.Equal(t, "`orders`", m.QuoteTableName("orders"))
	assert.Equal(t, "`shop`.`orders`", m.QuoteTableName("shop.orders"))
	assert.Equal(t, "`we``ird`", m.QuoteColumnName("we`ird"))
	assert.Equal(t, "`id`", m.QuoteColumnName("`id`"))
}

func TestExecBindsNamedParams(t *testing.T) {
	m, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `t` SET `n` = `n` + ? WHERE `id` = ?")).
		WithArgs(2, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := m.Exec(context.Background(), core.Statement{
		SQL:    "UPDATE `t` SET `n` = `n` + :step WHERE `id` = ?",
		Args:   []any{7},
		Params: map[string]any{"step": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecWrapsDriverError(t *testing.T) {
	m, mock := newMock(t)
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1' for key 'PRIMARY'"}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `t` (`id`) VALUES (?)")).
		WithArgs(1).
		WillReturnError(dup)

	_, err := m.Exec(context.Background(), core.Statement{SQL: "INSERT INTO `t` (`id`) VALUES (?)", Args: []any{1}})
	require.Error(t, err)
	var me *mysql.MySQLError
	assert.True(t, errors.As(err, &me))
	assert.True(t, IsUniqueConstraintError(err))
	assert.True(t, IsConstraintError(err))
	assert.False(t, IsForeignKeyConstraintError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryReturnsRowMaps(t *testing.T) {
	m, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `t` WHERE `id` IN (?, ?)")).
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "a").
			AddRow(int64(2), []byte("b")))

	rows, err := m.Query(context.Background(), core.Statement{
		SQL:  "SELECT * FROM `t` WHERE `id` IN (?, ?)",
		Args: []any{1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"id": int64(1), "name": "a"},
		{"id": int64(2), "name": "b"},
	}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClosedDatabase(t *testing.T) {
	m, mock := newMock(t)
	mock.ExpectClose()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Exec(context.Background(), core.Statement{SQL: "DELETE FROM `t`"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Query(context.Background(), core.Statement{SQL: "SELECT 1"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.GetSchema(context.Background(), "t")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTransaction(t *testing.T) {
	m, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `t` WHERE `id` = ?")).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := m.BeginTx(context.Background())
	require.NoError(t, err)

	var conn core.Conn = tx
	res, err := conn.Exec(context.Background(), core.Statement{SQL: "DELETE FROM `t` WHERE `id` = ?", Args: []any{3}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSchema(t *testing.T) {
	m, mock := newMock(t)
	mock.ExpectQuery("SELECT COLUMN_NAME, COLUMN_TYPE").
		WithArgs("order_items").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "COLUMN_KEY", "EXTRA"}).
			AddRow("order_id", "int", "NO", nil, "PRI", "").
			AddRow("sku", "varchar(32)", "NO", nil, "PRI", "").
			AddRow("qty", "int", "NO", "1", "", "").
			AddRow("note", "text", "YES", nil, "", ""))
	mock.ExpectQuery("SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE").
		WithArgs("order_items").
		WillReturnRows(sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME", "NON_UNIQUE"}).
			AddRow("PRIMARY", "order_id", 0).
			AddRow("PRIMARY", "sku", 0))

	s, err := m.GetSchema(context.Background(), "order_items")
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "sku"}, s.PrimaryKey)
	assert.Empty(t, s.AutoIncrement)
	require.Len(t, s.Columns, 4)
	assert.Equal(t, "1", s.Columns[2].Default)
	assert.True(t, s.Columns[3].Nullable)
	assert.Equal(t, int64(4), s.Columns[2].Cast("4"))
	require.Len(t, s.Indexes, 1)
	assert.True(t, s.Indexes[0].Primary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSchemaAutoIncrement(t *testing.T) {
	m, mock := newMock(t)
	mock.ExpectQuery("SELECT COLUMN_NAME, COLUMN_TYPE").
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "COLUMN_KEY", "EXTRA"}).
			AddRow("id", "bigint unsigned", "NO", nil, "PRI", "auto_increment").
			AddRow("name", "varchar(64)", "NO", nil, "", ""))
	mock.ExpectQuery("SELECT INDEX_NAME").
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME", "NON_UNIQUE"}).
			AddRow("PRIMARY", "id", 0))

	s, err := m.GetSchema(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "id", s.AutoIncrement)
	assert.True(t, s.Columns[0].AutoIncrement)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSchemaWithoutPrimaryKey(t *testing.T) {
	m, mock := newMock(t)
	mock.ExpectQuery("SELECT COLUMN_NAME").
		WithArgs("logs").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "COLUMN_KEY", "EXTRA"}).
			AddRow("msg", "text", "YES", nil, "", ""))
	mock.ExpectQuery("SELECT INDEX_NAME").
		WithArgs("logs").
		WillReturnRows(sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME", "NON_UNIQUE"}))

	_, err := m.GetSchema(context.Background(), "logs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary key")
}

func TestConstraintClassificationFallback(t *testing.T) {
	assert.True(t, IsForeignKeyConstraintError(fmt.Errorf("Error 1452: Cannot add or update a child row")))
	assert.True(t, IsCheckConstraintError(&mysql.MySQLError{Number: 3819}))
	assert.False(t, IsConstraintError(nil))
}
