// Package relbatch persists nested, relation-aware payloads to MySQL in as
// few statements as possible: multi-row inserts, upserts with
// ON DUPLICATE KEY UPDATE, CASE-based batch updates and tuple deletes,
// cascading into the child tables a spec declares.
package relbatch

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/relbatch/internal/client"
	"github.com/rzpsarthak13/relbatch/internal/core"
)

// Client is the main interface for persisting payloads.
//
// Typical usage:
//
//	client, _ := relbatch.NewClient(ctx, config)
//	defer client.Close()
//
//	client.Register(ctx, &relbatch.Spec{Table: "orders", Relations: []relbatch.Relation{{Name: "items"}}})
//	client.Register(ctx, &relbatch.Spec{Table: "items"})
//
//	client.Create(ctx, "orders", map[string]any{"name": "a", "items": []any{...}})
type Client interface {
	// Register completes a spec from the table schema when it declares no
	// columns or key, merges configured relations and makes it available
	// under its name. The completed spec is returned.
	Register(ctx context.Context, spec *Spec) (*Spec, error)

	// Lookup returns a registered spec.
	Lookup(name string) (*Spec, error)

	// Table returns a handle bound to one registered spec.
	Table(name string) (Table, error)

	// Create persists payload. A single body is created with its nested
	// children and returned with generated keys. A list is inserted in one
	// statement, or upserted level by level when rows carry relations.
	Create(ctx context.Context, table string, payload any) (*Result, error)

	// Update persists payload. {"where": ..., "attributes": ...} updates every
	// matching row. A single body updates its stored row, or creates it, and
	// cascades into its children. A list is updated with one CASE statement.
	Update(ctx context.Context, table string, payload any) (*Result, error)

	// Delete deletes a row by key, rows matching {"where": ...}, or a list of rows.
	Delete(ctx context.Context, table string, payload any) (int64, error)

	// Insert writes bodies with one INSERT, REPLACE or INSERT IGNORE statement.
	Insert(ctx context.Context, table string, bodies []map[string]any, mode Mode) (int64, error)

	// Upsert writes bodies and their children with INSERT statements, adding
	// ON DUPLICATE KEY UPDATE when allowUpdate is set.
	Upsert(ctx context.Context, table string, bodies []map[string]any, allowUpdate bool) (int64, error)

	// UpdateMany updates bodies matched on refCols with one statement.
	UpdateMany(ctx context.Context, table string, bodies []map[string]any, refCols ...string) (int64, error)

	// DeleteMany deletes bodies by primary key.
	DeleteMany(ctx context.Context, table string, bodies []map[string]any) (int64, error)

	// FindExists returns the stored rows whose keys appear among rows.
	FindExists(ctx context.Context, table string, rows []map[string]any) ([]map[string]any, error)

	// Transaction runs fn with a client bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx Client) error) error

	// Subscribe registers a mutation event handler for table, or for every
	// table when table is empty. Events must be enabled.
	Subscribe(table string, h Handler) error

	// Start starts dispatching mutation events in the background.
	// It is a no-op when events are disabled.
	Start(ctx context.Context) error

	// Stop gracefully stops the event dispatcher.
	Stop() error

	// IsRunning returns whether events are being dispatched.
	IsRunning() bool

	// Close stops the dispatcher and closes all connections.
	Close() error
}

// Option configures NewClient.
type Option func(*client.Options)

// WithDB uses an already opened database handle instead of connecting.
func WithDB(db *sql.DB) Option {
	return func(o *client.Options) {
		o.DB = db
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *client.Options) {
		o.Logger = logger
	}
}

// WithKVStore uses store for the journal instead of connecting to the
// configured one.
func WithKVStore(store core.KVStore) Option {
	return func(o *client.Options) {
		o.KVStore = store
	}
}

// WithEventQueue uses queue for mutation events instead of the configured one.
func WithEventQueue(queue core.EventQueue) Option {
	return func(o *client.Options) {
		o.Queue = queue
	}
}

// configProvider implements client.ConfigProvider to provide config as YAML without import cycles.
type configProvider struct {
	config *Config
}

func (cp *configProvider) GetYAML() ([]byte, error) {
	return yaml.Marshal(cp.config)
}

// clientWrapper wraps the internal client implementation to provide the public Client interface.
type clientWrapper struct {
	impl *client.ClientImpl
}

// NewClient creates a new client with the provided configuration. It connects
// to the database and, when enabled, to the journal store and event queue.
//
// After creating the client:
// 1. Call Register() for every table payloads touch
// 2. Call Subscribe() and Start() to consume mutation events
// 3. Call Stop() and Close() when done
func NewClient(ctx context.Context, config *Config, opts ...Option) (Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	var options client.Options
	for _, opt := range opts {
		opt(&options)
	}

	impl, err := client.NewClientImpl(ctx, &configProvider{config: config}, options)
	if err != nil {
		return nil, err
	}
	return &clientWrapper{impl: impl}, nil
}

func (cw *clientWrapper) Register(ctx context.Context, spec *Spec) (*Spec, error) {
	return cw.impl.Register(ctx, spec)
}

func (cw *clientWrapper) Lookup(name string) (*Spec, error) {
	return cw.impl.Registry().Lookup(name)
}

func (cw *clientWrapper) Table(name string) (Table, error) {
	if _, err := cw.Lookup(name); err != nil {
		return nil, err
	}
	return &tableWrapper{client: cw, name: name}, nil
}

func (cw *clientWrapper) Create(ctx context.Context, table string, payload any) (*Result, error) {
	return cw.impl.Create(ctx, table, payload)
}

func (cw *clientWrapper) Update(ctx context.Context, table string, payload any) (*Result, error) {
	return cw.impl.Update(ctx, table, payload)
}

func (cw *clientWrapper) Delete(ctx context.Context, table string, payload any) (int64, error) {
	return cw.impl.Delete(ctx, table, payload)
}

func (cw *clientWrapper) Insert(ctx context.Context, table string, bodies []map[string]any, mode Mode) (int64, error) {
	return cw.impl.Insert(ctx, table, bodies, mode)
}

func (cw *clientWrapper) Upsert(ctx context.Context, table string, bodies []map[string]any, allowUpdate bool) (int64, error) {
	return cw.impl.Upsert(ctx, table, bodies, allowUpdate)
}

func (cw *clientWrapper) UpdateMany(ctx context.Context, table string, bodies []map[string]any, refCols ...string) (int64, error) {
	return cw.impl.UpdateMany(ctx, table, bodies, refCols...)
}

func (cw *clientWrapper) DeleteMany(ctx context.Context, table string, bodies []map[string]any) (int64, error) {
	return cw.impl.DeleteMany(ctx, table, bodies)
}

func (cw *clientWrapper) FindExists(ctx context.Context, table string, rows []map[string]any) ([]map[string]any, error) {
	return cw.impl.FindExists(ctx, table, rows)
}

func (cw *clientWrapper) Transaction(ctx context.Context, fn func(tx Client) error) error {
	return cw.impl.Transaction(ctx, func(tx *client.ClientImpl) error {
		return fn(&clientWrapper{impl: tx})
	})
}

func (cw *clientWrapper) Subscribe(table string, h Handler) error {
	return cw.impl.Subscribe(table, h)
}

func (cw *clientWrapper) Start(ctx context.Context) error {
	return cw.impl.Start(ctx)
}

func (cw *clientWrapper) Stop() error {
	return cw.impl.Stop()
}

func (cw *clientWrapper) IsRunning() bool {
	return cw.impl.IsRunning()
}

func (cw *clientWrapper) Close() error {
	return cw.impl.Close()
}
