// Package client wires the connection, registry, batch builder, cascade
// engine, journal and event queue together from one configuration and
// dispatches payloads to the right write path by shape.
package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/relbatch/internal/batch"
	"github.com/rzpsarthak13/relbatch/internal/cascade"
	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/database"
	"github.com/rzpsarthak13/relbatch/internal/events"
	"github.com/rzpsarthak13/relbatch/internal/journal"
	"github.com/rzpsarthak13/relbatch/internal/kvstore"
	"github.com/rzpsarthak13/relbatch/internal/query"
	"github.com/rzpsarthak13/relbatch/internal/registry"
)

// ErrClosed is returned by every operation on a closed client.
var ErrClosed = errors.New("client is closed")

// ErrEventsDisabled is returned when subscribing while events are disabled.
var ErrEventsDisabled = errors.New("mutation events are disabled")

// ConfigProvider provides configuration as YAML without importing the public package.
type ConfigProvider interface {
	GetYAML() ([]byte, error)
}

// Options inject pre-built dependencies. Zero fields are built from configuration.
type Options struct {
	DB      *sql.DB
	KVStore core.KVStore
	Queue   core.EventQueue
	Logger  *zap.Logger
}

// Result is what Create and Update report: the number of rows written and,
// for single-row payloads, the stored row with its nested children.
type Result struct {
	Affected int64
	Rows     []map[string]any
}

// ClientImpl is the default client implementation.
type ClientImpl struct {
	mu         sync.RWMutex
	configMgr  *registry.ConfigManager
	db         *database.MySQLDatabase
	kvStore    core.KVStore
	journal    database.Journal
	queue      core.EventQueue
	dispatcher *events.Dispatcher
	registry   *registry.Registry
	ops        *operations
	logger     *zap.Logger
	closed     bool
}

// operations are the write paths bound to one connection.
type operations struct {
	conn    core.Conn
	builder *batch.Builder
	engine  *cascade.Engine
}

// NewClientImpl creates a client from the YAML the provider returns.
func NewClientImpl(ctx context.Context, configProvider ConfigProvider, opts Options) (*ClientImpl, error) {
	if configProvider == nil {
		return nil, fmt.Errorf("config provider cannot be nil")
	}

	configMgr := registry.NewConfigManager()
	yamlData, err := configProvider.GetYAML()
	if err != nil {
		return nil, fmt.Errorf("failed to get config YAML: %w", err)
	}
	if err := configMgr.LoadFromYAML(yamlData); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &ClientImpl{
		configMgr: configMgr,
		logger:    logger.Named("client"),
	}
	if err := c.initializeConnections(ctx, opts, logger); err != nil {
		_ = c.release()
		return nil, fmt.Errorf("failed to initialize connections: %w", err)
	}

	c.registry = registry.NewRegistry(c.db, configMgr, nil, logger)
	c.ops = c.bind(c.db)
	return c, nil
}

func (c *ClientImpl) initializeConnections(ctx context.Context, opts Options, logger *zap.Logger) error {
	config := c.configMgr.GetConfig()
	dbOpts := []database.Option{
		database.WithLogger(logger),
		database.WithStatementRate(config.Database.StatementRate),
	}

	if opts.DB != nil {
		c.db = database.NewFromDB(opts.DB, dbOpts...)
	} else {
		dbc := config.Database
		db, err := database.NewMySQLDatabase(database.Config{
			Host:              dbc.Host,
			Port:              dbc.Port,
			Database:          dbc.Database,
			Username:          dbc.Username,
			Password:          dbc.Password,
			MaxOpenConns:      dbc.MaxOpenConns,
			MaxIdleConns:      dbc.MaxIdleConns,
			ConnMaxLifetime:   dbc.ConnMaxLifetime,
			ConnMaxIdleTime:   dbc.ConnMaxIdleTime,
			ConnectionTimeout: dbc.ConnectionTimeout,
			StatementRate:     dbc.StatementRate,
		}, database.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		c.db = db
	}

	if config.Journal.Enabled {
		store := opts.KVStore
		if store == nil {
			created, err := kvstore.Create(ctx, kvstore.ConfigFromInternal(config.Journal.KVStore), logger)
			if err != nil {
				return fmt.Errorf("failed to create journal KV store: %w", err)
			}
			store = created
		}
		c.kvStore = store
		c.journal = journal.New(store, config.Journal.KeyPrefix, config.Journal.EntryTTL, logger)
	}

	if config.Events.Enabled {
		queue := opts.Queue
		if queue == nil {
			created, err := events.NewQueue(ctx, config.Events, logger)
			if err != nil {
				return fmt.Errorf("failed to create event queue: %w", err)
			}
			queue = created
		}
		c.queue = queue
		c.dispatcher = events.NewDispatcher(queue, events.DispatcherConfigFrom(config.Events), logger)
	}
	return nil
}

// bind builds the write paths over conn, observed by the journal and queue
// when they are enabled.
func (c *ClientImpl) bind(conn core.Conn) *operations {
	var observed core.Conn = conn
	if c.journal != nil || c.queue != nil {
		observed = database.Observe(conn, c.journal, c.queue, c.logger)
	}
	builder := batch.New(observed, c.registry, c.logger)
	return &operations{
		conn:    observed,
		builder: builder,
		engine:  cascade.NewEngine(builder, c.registry, c.logger),
	}
}

func (c *ClientImpl) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// Register completes and registers a spec.
func (c *ClientImpl) Register(ctx context.Context, spec *core.Spec) (*core.Spec, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.registry.Register(ctx, spec)
}

// Registry returns the spec registry.
func (c *ClientImpl) Registry() *registry.Registry {
	return c.registry
}

func (c *ClientImpl) spec(table string) (*core.Spec, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.registry.Lookup(table)
}

// Create writes payload: a single body is created with its nested children
// one row at a time, a list is inserted in one statement, or upserted
// level by level when any row carries relations.
func (c *ClientImpl) Create(ctx context.Context, table string, payload any) (*Result, error) {
	spec, err := c.spec(table)
	if err != nil {
		return nil, err
	}

	if body, ok := payload.(map[string]any); ok {
		out, err := c.ops.engine.Create(ctx, spec, body)
		if err != nil {
			return nil, err
		}
		return &Result{Affected: 1, Rows: []map[string]any{out}}, nil
	}

	bodies, err := listPayload(payload)
	if err != nil {
		return nil, err
	}
	var n int64
	if anyRelations(spec, bodies) {
		n, err = c.ops.builder.Upsert(ctx, spec, bodies, false)
	} else {
		n, err = c.ops.builder.Insert(ctx, spec, bodies, batch.ModeInsert)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Affected: n}, nil
}

// Update writes payload: {"where": ..., "attributes": ...} updates every
// matching row, a single body updates or creates its row and cascades into
// its children, and a list is updated with one CASE statement or, when rows
// carry relations or the table is configured for it, upserted.
func (c *ClientImpl) Update(ctx context.Context, table string, payload any) (*Result, error) {
	spec, err := c.spec(table)
	if err != nil {
		return nil, err
	}

	if body, ok := payload.(map[string]any); ok {
		if attrs, ok := body["attributes"].(map[string]any); ok {
			if key, found := query.WhereKey(body); found {
				n, err := c.ops.builder.UpdateAll(ctx, spec, attrs, body[key])
				if err != nil {
					return nil, err
				}
				return &Result{Affected: n}, nil
			}
		}

		existing, err := c.ops.engine.FindExists(ctx, spec, []map[string]any{body})
		if err != nil {
			return nil, err
		}
		out, err := c.ops.engine.Update(ctx, spec, body, existing)
		if err != nil {
			return nil, err
		}
		return &Result{Affected: 1, Rows: []map[string]any{out}}, nil
	}

	bodies, err := listPayload(payload)
	if err != nil {
		return nil, err
	}
	tc := c.configMgr.GetTableConfig(spec.Key())
	var n int64
	if tc.UpsertUpdate || anyRelations(spec, bodies) {
		n, err = c.ops.builder.Upsert(ctx, spec, bodies, true)
	} else {
		n, err = c.ops.builder.UpdateMany(ctx, spec, bodies, tc.ReferenceColumns...)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Affected: n}, nil
}

// Delete deletes by key, by condition or by list, see batch.Builder.Delete.
func (c *ClientImpl) Delete(ctx context.Context, table string, payload any) (int64, error) {
	spec, err := c.spec(table)
	if err != nil {
		return 0, err
	}
	return c.ops.builder.Delete(ctx, spec, payload)
}

// Insert inserts bodies in one statement.
func (c *ClientImpl) Insert(ctx context.Context, table string, bodies []map[string]any, mode batch.Mode) (int64, error) {
	spec, err := c.spec(table)
	if err != nil {
		return 0, err
	}
	return c.ops.builder.Insert(ctx, spec, bodies, mode)
}

// Upsert upserts bodies and their children.
func (c *ClientImpl) Upsert(ctx context.Context, table string, bodies []map[string]any, allowUpdate bool) (int64, error) {
	spec, err := c.spec(table)
	if err != nil {
		return 0, err
	}
	return c.ops.builder.Upsert(ctx, spec, bodies, allowUpdate)
}

// UpdateMany updates bodies matched on refCols, defaulting to the table's
// configured reference columns and then to its primary key.
func (c *ClientImpl) UpdateMany(ctx context.Context, table string, bodies []map[string]any, refCols ...string) (int64, error) {
	spec, err := c.spec(table)
	if err != nil {
		return 0, err
	}
	if len(refCols) == 0 {
		refCols = c.configMgr.GetTableConfig(spec.Key()).ReferenceColumns
	}
	return c.ops.builder.UpdateMany(ctx, spec, bodies, refCols...)
}

// DeleteMany deletes bodies by primary key, cascading into present relations.
func (c *ClientImpl) DeleteMany(ctx context.Context, table string, bodies []map[string]any) (int64, error) {
	spec, err := c.spec(table)
	if err != nil {
		return 0, err
	}
	return c.ops.builder.DeleteMany(ctx, spec, bodies)
}

// FindExists returns the stored rows whose keys appear among rows.
func (c *ClientImpl) FindExists(ctx context.Context, table string, rows []map[string]any) ([]map[string]any, error) {
	spec, err := c.spec(table)
	if err != nil {
		return nil, err
	}
	return c.ops.engine.FindExists(ctx, spec, rows)
}

// Transaction runs fn with a client bound to one transaction, committing when
// fn returns nil and rolling back otherwise.
func (c *ClientImpl) Transaction(ctx context.Context, fn func(tx *ClientImpl) error) (err error) {
	if err := c.checkOpen(); err != nil {
		return err
	}
	tx, err := c.db.BeginTx(ctx)
	if err != nil {
		return err
	}

	scoped := &ClientImpl{
		configMgr: c.configMgr,
		db:        c.db,
		journal:   c.journal,
		queue:     c.queue,
		registry:  c.registry,
		logger:    c.logger,
	}
	scoped.ops = scoped.bind(tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Subscribe registers a handler for mutation events on table, or on every
// table when table is empty.
func (c *ClientImpl) Subscribe(table string, h events.Handler) error {
	if c.dispatcher == nil {
		return ErrEventsDisabled
	}
	c.dispatcher.Subscribe(table, h)
	return nil
}

// Dispatcher returns the event dispatcher, nil when events are disabled.
func (c *ClientImpl) Dispatcher() *events.Dispatcher {
	return c.dispatcher
}

// Start starts dispatching mutation events in the background.
func (c *ClientImpl) Start(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.dispatcher == nil {
		return nil
	}
	return c.dispatcher.Start(ctx)
}

// Stop stops the event dispatcher.
func (c *ClientImpl) Stop() error {
	if c.dispatcher == nil {
		return nil
	}
	return c.dispatcher.Stop()
}

// IsRunning reports whether events are being dispatched.
func (c *ClientImpl) IsRunning() bool {
	return c.dispatcher != nil && c.dispatcher.IsRunning()
}

// Close stops the dispatcher and releases every connection.
func (c *ClientImpl) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	stopErr := c.Stop()
	return errors.Join(stopErr, c.release())
}

func (c *ClientImpl) release() error {
	var errs []error
	if c.queue != nil {
		errs = append(errs, c.queue.Close())
	}
	if c.kvStore != nil {
		errs = append(errs, c.kvStore.Close())
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}

func listPayload(payload any) ([]map[string]any, error) {
	bodies, ok := core.NormalizeBodies(payload)
	if !ok {
		return nil, core.NewInvalidArgumentError(0, "", fmt.Sprintf("payload of type %T is neither a row nor a list of rows", payload), nil)
	}
	return bodies, nil
}

func anyRelations(spec *core.Spec, bodies []map[string]any) bool {
	for _, body := range bodies {
		if spec.HasRelationIn(body) {
			return true
		}
	}
	return false
}
