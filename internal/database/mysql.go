package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/schema"
)

// ErrClosed is returned by every operation on a closed database.
var ErrClosed = errors.New("database is closed")

// Config holds the connection settings for a MySQL database.
type Config struct {
	Host              string
	Port              int
	Database          string
	Username          string
	Password          string
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxLifetime   time.Duration
	ConnMaxIdleTime   time.Duration
	ConnectionTimeout time.Duration

	// StatementRate caps statements per second. Zero means unlimited.
	StatementRate int
}

// DSN returns the driver data source name for the config.
func (c Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.Timeout = c.ConnectionTimeout
	return mc.FormatDSN()
}

// Option configures a MySQLDatabase.
type Option func(*MySQLDatabase)

// WithLogger sets the logger statements are logged to.
func WithLogger(logger *zap.Logger) Option {
	return func(m *MySQLDatabase) {
		if logger != nil {
			m.logger = logger.Named("mysql")
		}
	}
}

// WithStatementRate limits the number of statements per second.
func WithStatementRate(perSecond int) Option {
	return func(m *MySQLDatabase) {
		if perSecond > 0 {
			m.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

// MySQLDatabase is the MySQL connection boundary. It implements core.Conn and
// core.SchemaProvider.
type MySQLDatabase struct {
	executor
	db     *sql.DB
	closed bool
}

// NewMySQLDatabase opens a connection pool and pings the server.
func NewMySQLDatabase(cfg Config, opts ...Option) (*MySQLDatabase, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewFromDB(db, append([]Option{WithStatementRate(cfg.StatementRate)}, opts...)...), nil
}

// NewFromDB wraps an already opened *sql.DB.
func NewFromDB(db *sql.DB, opts ...Option) *MySQLDatabase {
	m := &MySQLDatabase{
		executor: executor{
			q:      db,
			logger: zap.NewNop(),
			mapper: schema.NewTypeMapper(),
		},
		db: db,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Exec runs a mutating statement.
func (m *MySQLDatabase) Exec(ctx context.Context, stmt core.Statement) (core.Result, error) {
	if m.closed {
		return core.Result{}, ErrClosed
	}
	return m.executor.Exec(ctx, stmt)
}

// Query runs a SELECT statement.
func (m *MySQLDatabase) Query(ctx context.Context, stmt core.Statement) ([]map[string]any, error) {
	if m.closed {
		return nil, ErrClosed
	}
	return m.executor.Query(ctx, stmt)
}

// BeginTx starts a transaction. The returned Tx is itself a core.Conn, so a
// whole cascade can run inside it.
func (m *MySQLDatabase) BeginTx(ctx context.Context) (*Tx, error) {
	if m.closed {
		return nil, ErrClosed
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	e := m.executor
	e.q = tx
	return &Tx{executor: e, tx: tx}, nil
}

// GetSchema reads column metadata for a table from INFORMATION_SCHEMA.
func (m *MySQLDatabase) GetSchema(ctx context.Context, tableName string) (*core.Schema, error) {
	if m.closed {
		return nil, ErrClosed
	}

	s := &core.Schema{TableName: tableName}

	rows, err := m.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT, COLUMN_KEY, EXTRA
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name, colType, nullable, key, extra string
			def                                 sql.NullString
		)
		if err := rows.Scan(&name, &colType, &nullable, &def, &key, &extra); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col := core.Column{
			Name:          name,
			Type:          colType,
			Nullable:      nullable == "YES",
			AutoIncrement: strings.Contains(strings.ToLower(extra), "auto_increment"),
			Caster:        m.mapper.Caster(colType),
		}
		if def.Valid {
			col.Default = def.String
		}
		if col.AutoIncrement {
			s.AutoIncrement = name
		}
		s.Columns = append(s.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	if len(s.Columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist or has no columns", tableName)
	}

	idxRows, err := m.db.QueryContext(ctx, `
		SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer idxRows.Close()

	byName := make(map[string]int)
	for idxRows.Next() {
		var (
			indexName, columnName string
			nonUnique             int
		)
		if err := idxRows.Scan(&indexName, &columnName, &nonUnique); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		i, ok := byName[indexName]
		if !ok {
			i = len(s.Indexes)
			byName[indexName] = i
			s.Indexes = append(s.Indexes, core.Index{
				Name:    indexName,
				Unique:  nonUnique == 0,
				Primary: indexName == "PRIMARY",
			})
		}
		s.Indexes[i].Columns = append(s.Indexes[i].Columns, columnName)
		if indexName == "PRIMARY" {
			s.PrimaryKey = append(s.PrimaryKey, columnName)
		}
	}
	if err := idxRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating indexes: %w", err)
	}
	if len(s.PrimaryKey) == 0 {
		return nil, fmt.Errorf("table %s does not have a primary key", tableName)
	}

	return s, nil
}

// Close closes the connection pool.
func (m *MySQLDatabase) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Tx is a transaction-scoped connection.
type Tx struct {
	executor
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// executor runs bound statements against a pool or a transaction.
type executor struct {
	q       execQuerier
	logger  *zap.Logger
	limiter *rate.Limiter
	mapper  *schema.TypeMapper
}

// QuoteTableName quotes a table name, including a schema qualifier.
func (e executor) QuoteTableName(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// QuoteColumnName quotes a column name.
func (e executor) QuoteColumnName(name string) string {
	return quoteIdent(name)
}

func quoteIdent(name string) string {
	if strings.HasPrefix(name, "`") && strings.HasSuffix(name, "`") {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (e executor) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for statement rate limit: %w", err)
	}
	return nil
}

// Exec binds and runs a mutating statement.
func (e executor) Exec(ctx context.Context, stmt core.Statement) (core.Result, error) {
	query, args, err := stmt.Bind()
	if err != nil {
		return core.Result{}, fmt.Errorf("failed to bind statement: %w", err)
	}
	if err := e.wait(ctx); err != nil {
		return core.Result{}, err
	}

	e.logger.Debug("executing statement",
		zap.String("table", stmt.Table),
		zap.String("op", string(stmt.Op)),
		zap.String("sql", query),
		zap.Int("args", len(args)))

	res, err := e.q.ExecContext(ctx, query, args...)
	if err != nil {
		e.logger.Error("statement failed", zap.String("sql", query), zap.Error(err))
		return core.Result{}, fmt.Errorf("failed to execute statement: %w", err)
	}

	var out core.Result
	if out.RowsAffected, err = res.RowsAffected(); err != nil {
		return core.Result{}, fmt.Errorf("failed to read rows affected: %w", err)
	}
	// Not every statement yields an insert id.
	out.LastInsertID, _ = res.LastInsertId()

	e.logger.Debug("statement executed", zap.Int64("rows_affected", out.RowsAffected))
	return out, nil
}

// Query binds and runs a SELECT statement.
func (e executor) Query(ctx context.Context, stmt core.Statement) ([]map[string]any, error) {
	query, args, err := stmt.Bind()
	if err != nil {
		return nil, fmt.Errorf("failed to bind statement: %w", err)
	}
	if err := e.wait(ctx); err != nil {
		return nil, err
	}

	e.logger.Debug("executing query", zap.String("sql", query), zap.Int("args", len(args)))

	rows, err := e.q.QueryContext(ctx, query, args...)
	if err != nil {
		e.logger.Error("query failed", zap.String("sql", query), zap.Error(err))
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(types))
		for i, ct := range types {
			row[ct.Name()] = e.mapper.FromDB(values[i], ct.DatabaseTypeName())
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
