package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

// ListOperations are the Redis list commands the queue is built on.
// kvstore.RedisKVStore implements them.
type ListOperations interface {
	// ListPush adds a value to the end of a list (RPUSH).
	ListPush(ctx context.Context, key string, value []byte) error

	// ListPop removes and returns the first element of a list (LPOP).
	// Returns nil if the list is empty.
	ListPop(ctx context.Context, key string) ([]byte, error)

	// ListLength returns the length of a list (LLEN).
	ListLength(ctx context.Context, key string) (int64, error)
}

// RedisQueue implements core.EventQueue on a Redis list so events survive
// restarts and can be consumed by another process. Events are encoded with
// msgpack and pushed to {prefix}:global and {prefix}:{table}; Dequeue pops
// from the global list.
type RedisQueue struct {
	ops    ListOperations
	prefix string
	logger *zap.Logger
	closed atomic.Bool
}

// NewRedisQueue creates a queue over ops. An empty prefix selects "relbatch:events".
func NewRedisQueue(ops ListOperations, prefix string, logger *zap.Logger) *RedisQueue {
	if prefix == "" {
		prefix = "relbatch:events"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{ops: ops, prefix: prefix, logger: logger}
}

func (q *RedisQueue) tableKey(table string) string {
	return fmt.Sprintf("%s:%s", q.prefix, table)
}

func (q *RedisQueue) globalKey() string {
	return q.prefix + ":global"
}

// Enqueue pushes an event to the table list and the global list.
func (q *RedisQueue) Enqueue(ctx context.Context, event *core.MutationEvent) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if err := checkEvent(event); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := msgpack.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal mutation event: %w", err)
	}
	if err := q.ops.ListPush(ctx, q.tableKey(event.Table), data); err != nil {
		return fmt.Errorf("failed to enqueue event to table queue: %w", err)
	}
	if err := q.ops.ListPush(ctx, q.globalKey(), data); err != nil {
		return fmt.Errorf("failed to enqueue event to global queue: %w", err)
	}
	return nil
}

// Dequeue pops up to batchSize events from the global list. Entries that
// cannot be decoded are logged and dropped.
func (q *RedisQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.MutationEvent, error) {
	return q.pop(ctx, q.globalKey(), batchSize)
}

// DequeueFromTable pops up to batchSize events from one table's list.
func (q *RedisQueue) DequeueFromTable(ctx context.Context, table string, batchSize int) ([]*core.MutationEvent, error) {
	return q.pop(ctx, q.tableKey(table), batchSize)
}

func (q *RedisQueue) pop(ctx context.Context, key string, batchSize int) ([]*core.MutationEvent, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	events := make([]*core.MutationEvent, 0, batchSize)
	for len(events) < batchSize {
		data, err := q.ops.ListPop(ctx, key)
		if err != nil {
			return events, fmt.Errorf("failed to dequeue events: %w", err)
		}
		if data == nil {
			break
		}

		var event core.MutationEvent
		if err := msgpack.Unmarshal(data, &event); err != nil {
			q.logger.Warn("dropping undecodable event", zap.String("key", key), zap.Error(err))
			continue
		}
		events = append(events, &event)
	}
	return events, nil
}

// Size returns the length of the global list, 0 when it cannot be read.
func (q *RedisQueue) Size() int {
	return q.length(q.globalKey())
}

// SizeForTable returns the length of one table's list.
func (q *RedisQueue) SizeForTable(table string) int {
	return q.length(q.tableKey(table))
}

func (q *RedisQueue) length(key string) int {
	if q.closed.Load() {
		return 0
	}
	n, err := q.ops.ListLength(context.Background(), key)
	if err != nil {
		q.logger.Warn("failed to read queue length", zap.String("key", key), zap.Error(err))
		return 0
	}
	return int(n)
}

// Close marks the queue closed. The list operations are owned by the caller.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
