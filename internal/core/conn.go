package core

import (
	"context"
)

// Conn is the connection boundary every statement goes through.
// Each call is a blocking round trip to the storage engine.
type Conn interface {
	// QuoteTableName quotes a table name for the dialect.
	QuoteTableName(name string) string

	// QuoteColumnName quotes a column name for the dialect.
	QuoteColumnName(name string) string

	// Exec runs a mutating statement and reports what the driver returned.
	Exec(ctx context.Context, stmt Statement) (Result, error)

	// Query runs a SELECT statement and returns every row as a column map.
	Query(ctx context.Context, stmt Statement) ([]map[string]any, error)
}

// Result is what the driver reports for a mutating statement.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// SchemaProvider loads column metadata for a table.
type SchemaProvider interface {
	GetSchema(ctx context.Context, tableName string) (*Schema, error)
}
