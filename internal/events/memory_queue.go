// Package events buffers the mutation events emitted for every successful
// statement and dispatches them to subscribed handlers at a bounded rate.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

var (
	// ErrQueueClosed is returned when enqueueing to or dequeueing from a closed queue.
	ErrQueueClosed = errors.New("event queue is closed")

	// ErrQueueFull is returned when a bounded queue cannot take another event.
	ErrQueueFull = errors.New("event queue is full")

	// ErrInvalidEvent is returned for a nil event or one without a table.
	ErrInvalidEvent = errors.New("invalid mutation event")
)

const defaultBatchSize = 100

func checkEvent(event *core.MutationEvent) error {
	if event == nil {
		return ErrInvalidEvent
	}
	if event.Table == "" {
		return fmt.Errorf("%w: table name is required", ErrInvalidEvent)
	}
	return nil
}

// MemoryQueue implements core.EventQueue with a buffered channel.
// Events are lost when the process exits.
type MemoryQueue struct {
	queue  chan *core.MutationEvent
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates an in-memory queue holding at most bufferSize events.
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &MemoryQueue{
		queue: make(chan *core.MutationEvent, bufferSize),
	}
}

// Enqueue adds an event without blocking; a full queue yields ErrQueueFull.
func (q *MemoryQueue) Enqueue(ctx context.Context, event *core.MutationEvent) error {
	if err := checkEvent(event); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Dequeue returns up to batchSize queued events in FIFO order without blocking.
// Events still buffered when the queue is closed can be drained.
func (q *MemoryQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.MutationEvent, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	events := make([]*core.MutationEvent, 0, batchSize)
	for len(events) < batchSize {
		select {
		case event, ok := <-q.queue:
			if !ok {
				return events, nil
			}
			events = append(events, event)
		case <-ctx.Done():
			return events, ctx.Err()
		default:
			return events, nil
		}
	}
	return events, nil
}

// Size returns the number of buffered events.
func (q *MemoryQueue) Size() int {
	return len(q.queue)
}

// Close stops further enqueueing.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.queue)
	return nil
}
