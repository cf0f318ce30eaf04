package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

// Handler receives dispatched mutation events.
type Handler func(ctx context.Context, event *core.MutationEvent) error

// DispatcherConfig contains configuration for the dispatcher.
type DispatcherConfig struct {
	// DispatchRate is the maximum number of events handed to handlers per second.
	DispatchRate int

	// BatchSize is how many events to dequeue at once.
	BatchSize int

	// PollInterval is how long to wait before polling an empty queue again.
	PollInterval time.Duration
}

// DefaultDispatcherConfig returns sensible defaults for the dispatcher.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		DispatchRate: 50,
		BatchSize:    defaultBatchSize,
		PollInterval: 100 * time.Millisecond,
	}
}

// Dispatcher drains a queue in the background and hands each event to the
// handlers subscribed to its table, at no more than DispatchRate events per
// second. Handler errors are logged and do not stop the dispatcher.
type Dispatcher struct {
	queue   core.EventQueue
	config  DispatcherConfig
	limiter *rate.Limiter
	logger  *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDispatcher creates a dispatcher over queue. Zero config fields take defaults.
func NewDispatcher(queue core.EventQueue, config DispatcherConfig, logger *zap.Logger) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.DispatchRate <= 0 {
		config.DispatchRate = defaults.DispatchRate
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:    queue,
		config:   config,
		limiter:  rate.NewLimiter(rate.Limit(config.DispatchRate), 1),
		logger:   logger.Named("dispatcher"),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers h for events on table. An empty table subscribes to
// every table.
func (d *Dispatcher) Subscribe(table string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[table] = append(d.handlers[table], h)
}

func (d *Dispatcher) handlersFor(table string) []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	hs := make([]Handler, 0, len(d.handlers[table])+len(d.handlers[""]))
	hs = append(hs, d.handlers[table]...)
	return append(hs, d.handlers[""]...)
}

// Start begins dispatching in a separate goroutine. Starting a running
// dispatcher is a no-op.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	go d.run(ctx, stopCh, doneCh)
	d.logger.Info("dispatcher started", zap.Int("rate", d.config.DispatchRate))
	return nil
}

// Stop stops the dispatcher and waits for the in-flight batch to finish.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	close(stopCh)
	<-doneCh
	d.logger.Info("dispatcher stopped")
	return nil
}

// IsRunning returns whether the dispatcher is currently running.
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

func (d *Dispatcher) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	dispatched := 0
	for {
		select {
		case <-stopCh:
			d.logger.Debug("received stop signal", zap.Int("dispatched", dispatched))
			return
		case <-ctx.Done():
			d.logger.Debug("context cancelled", zap.Int("dispatched", dispatched))
			return
		default:
		}

		n, err := d.dispatchBatch(ctx)
		dispatched += n
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("dispatch failed", zap.Error(err))
		}
		if n > 0 {
			continue
		}

		timer := time.NewTimer(d.config.PollInterval)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Drain dispatches queued events synchronously until the queue yields an
// empty batch, returning how many events were handed out.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := d.dispatchBatch(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
	}
}

func (d *Dispatcher) dispatchBatch(ctx context.Context) (int, error) {
	batch, err := d.queue.Dequeue(ctx, d.config.BatchSize)
	if err != nil && len(batch) == 0 {
		return 0, err
	}

	dispatched := 0
	for i, event := range batch {
		if event == nil {
			continue
		}
		if err := d.limiter.Wait(ctx); err != nil {
			d.requeue(ctx, batch[i:])
			return dispatched, err
		}
		for _, h := range d.handlersFor(event.Table) {
			if herr := h(ctx, event); herr != nil {
				d.logger.Warn("event handler failed",
					zap.String("table", event.Table),
					zap.String("event", event.ID),
					zap.Error(herr))
			}
		}
		dispatched++
	}
	return dispatched, err
}

// requeue puts events that were dequeued but not dispatched back on the
// queue. They land behind anything enqueued meanwhile.
func (d *Dispatcher) requeue(ctx context.Context, pending []*core.MutationEvent) {
	ctx = context.WithoutCancel(ctx)
	lost := 0
	for _, event := range pending {
		if event == nil {
			continue
		}
		if err := d.queue.Enqueue(ctx, event); err != nil {
			lost++
			d.logger.Error("failed to requeue event",
				zap.String("table", event.Table),
				zap.String("event", event.ID),
				zap.Error(err))
		}
	}
	if lost > 0 {
		d.logger.Error("undispatched events dropped", zap.Int("count", lost))
	}
}
