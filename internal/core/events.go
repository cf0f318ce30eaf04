package core

import (
	"context"
	"time"
)

// OperationType names the kind of mutation a statement performed.
type OperationType string

const (
	OperationInsert OperationType = "INSERT"
	OperationUpsert OperationType = "UPSERT"
	OperationUpdate OperationType = "UPDATE"
	OperationDelete OperationType = "DELETE"
)

// MutationEvent describes one mutating statement that completed successfully.
type MutationEvent struct {
	ID           string        `json:"id" msgpack:"id"`
	Table        string        `json:"table" msgpack:"table"`
	Operation    OperationType `json:"operation" msgpack:"operation"`
	SQL          string        `json:"sql" msgpack:"sql"`
	Args         []any         `json:"args,omitempty" msgpack:"args,omitempty"`
	RowsAffected int64         `json:"rows_affected" msgpack:"rows_affected"`
	LastInsertID int64         `json:"last_insert_id,omitempty" msgpack:"last_insert_id,omitempty"`
	Timestamp    time.Time     `json:"timestamp" msgpack:"timestamp"`
}

// EventQueue buffers mutation events until they are dispatched to handlers.
type EventQueue interface {
	// Enqueue adds an event to the queue.
	Enqueue(ctx context.Context, event *MutationEvent) error

	// Dequeue returns up to batchSize events in FIFO order.
	// It returns an empty slice when nothing is queued.
	Dequeue(ctx context.Context, batchSize int) ([]*MutationEvent, error)

	// Size returns the number of queued events, approximately for remote queues.
	Size() int

	// Close releases the queue.
	Close() error
}
