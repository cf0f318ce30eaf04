// Package journal records every mutating statement in a key-value store
// before it runs and acknowledges it once the storage engine accepted it.
// Entries without an acknowledgement mark statements whose outcome is
// unknown after a crash.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

const (
	defaultPrefix = "relbatch:journal"
	defaultTTL    = 24 * time.Hour
	// Acknowledgements outlive their entries so a late reader still sees them.
	ackTTLFactor = 7
)

// Entry is a journaled statement, with named parameters already bound.
type Entry struct {
	ID        string             `msgpack:"id"`
	Table     string             `msgpack:"table"`
	Operation core.OperationType `msgpack:"operation"`
	SQL       string             `msgpack:"sql"`
	Args      []any              `msgpack:"args"`
	Timestamp time.Time          `msgpack:"timestamp"`
}

// Journal keeps entries under {prefix}:{table}:entry:{id}, a time-ordered
// index under {prefix}:{table}:timestamp:{unix_nano}:{id} and
// acknowledgements under {prefix}:{table}:ack:{id}.
type Journal struct {
	store  core.KVStore
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// New creates a journal over store. An empty prefix or non-positive ttl
// selects the defaults.
func New(store core.KVStore, prefix string, ttl time.Duration, logger *zap.Logger) *Journal {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		store:  store,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.Named("journal"),
		now:    time.Now,
	}
}

func (j *Journal) entryKey(table, id string) string {
	return fmt.Sprintf("%s:%s:entry:%s", j.prefix, table, id)
}

func (j *Journal) ackKey(table, id string) string {
	return fmt.Sprintf("%s:%s:ack:%s", j.prefix, table, id)
}

func (j *Journal) indexKey(table string, ts time.Time, id string) string {
	return fmt.Sprintf("%s:%s:timestamp:%d:%s", j.prefix, table, ts.UnixNano(), id)
}

// Append binds stmt and stores it as a new entry, returning the entry ID.
func (j *Journal) Append(ctx context.Context, stmt core.Statement) (string, error) {
	sql, args, err := stmt.Bind()
	if err != nil {
		return "", err
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Table:     stmt.Table,
		Operation: stmt.Op,
		SQL:       sql,
		Args:      args,
		Timestamp: j.now().UTC(),
	}
	data, err := msgpack.Marshal(&entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	items := map[string][]byte{
		j.entryKey(entry.Table, entry.ID):                   data,
		j.indexKey(entry.Table, entry.Timestamp, entry.ID): []byte(entry.ID),
	}
	if err := j.store.BatchSet(ctx, items, j.ttl); err != nil {
		return "", fmt.Errorf("failed to store journal entry: %w", err)
	}

	j.logger.Debug("statement journaled",
		zap.String("table", entry.Table),
		zap.String("op", string(entry.Operation)),
		zap.String("entry", entry.ID))
	return entry.ID, nil
}

// Get returns the entry stored under table and id. A missing entry yields an
// error wrapping core.ErrKeyNotFound.
func (j *Journal) Get(ctx context.Context, table, id string) (*Entry, error) {
	data, err := j.store.Get(ctx, j.entryKey(table, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}

	var entry Entry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal journal entry: %w", err)
	}
	return &entry, nil
}

// Acknowledge marks an entry as applied.
func (j *Journal) Acknowledge(ctx context.Context, table, id string) error {
	if id == "" {
		return fmt.Errorf("journal entry id cannot be empty")
	}
	if err := j.store.Set(ctx, j.ackKey(table, id), []byte("1"), ackTTLFactor*j.ttl); err != nil {
		return fmt.Errorf("failed to acknowledge journal entry: %w", err)
	}
	return nil
}

// IsAcknowledged reports whether an entry has been acknowledged.
func (j *Journal) IsAcknowledged(ctx context.Context, table, id string) (bool, error) {
	ok, err := j.store.Exists(ctx, j.ackKey(table, id))
	if err != nil {
		return false, fmt.Errorf("failed to check journal acknowledgement: %w", err)
	}
	return ok, nil
}

// Discard removes an entry and its acknowledgement.
func (j *Journal) Discard(ctx context.Context, table, id string) error {
	if err := j.store.Delete(ctx, j.entryKey(table, id)); err != nil {
		return fmt.Errorf("failed to discard journal entry: %w", err)
	}
	if err := j.store.Delete(ctx, j.ackKey(table, id)); err != nil {
		return fmt.Errorf("failed to discard journal acknowledgement: %w", err)
	}
	return nil
}
