package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

// KafkaQueueConfig holds configuration for the Kafka queue.
type KafkaQueueConfig struct {
	Brokers         []string
	Topic           string
	GroupID         string
	BatchSize       int
	BatchTimeout    time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	RequiredAcks    int // 0, 1, or -1 (all)
	MaxMessageBytes int
	MinBytes        int
	MaxBytes        int
	MaxWait         time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue implements core.EventQueue on a Kafka topic. Events are JSON
// encoded, keyed by table and carry operation and table headers so other
// consumers can route them without decoding.
type KafkaQueue struct {
	writer      messageWriter
	reader      messageReader
	topic       string
	readTimeout time.Duration
	logger      *zap.Logger

	mu     sync.RWMutex
	closed bool
	size   int // events produced here and not yet consumed here
}

// NewKafkaQueue creates a Kafka-backed queue.
func NewKafkaQueue(config KafkaQueueConfig, logger *zap.Logger) (*KafkaQueue, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if config.GroupID == "" {
		config.GroupID = "relbatch-dispatcher"
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		BatchBytes:   int64(config.MaxMessageBytes),
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		MaxAttempts:  3,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		Topic:       config.Topic,
		GroupID:     config.GroupID,
		MinBytes:    config.MinBytes,
		MaxBytes:    config.MaxBytes,
		MaxWait:     config.MaxWait,
		StartOffset: kafka.FirstOffset,
	})

	q := newKafkaQueue(writer, reader, config.Topic, config.ReadTimeout, logger)
	q.logger.Info("kafka event queue initialized",
		zap.Strings("brokers", config.Brokers),
		zap.String("topic", config.Topic),
		zap.String("group_id", config.GroupID))
	return q, nil
}

func newKafkaQueue(w messageWriter, r messageReader, topic string, readTimeout time.Duration, logger *zap.Logger) *KafkaQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	return &KafkaQueue{
		writer:      w,
		reader:      r,
		topic:       topic,
		readTimeout: readTimeout,
		logger:      logger,
	}
}

func (q *KafkaQueue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Enqueue produces an event synchronously.
func (q *KafkaQueue) Enqueue(ctx context.Context, event *core.MutationEvent) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	if err := checkEvent(event); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal mutation event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.Table),
		Value: data,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(event.Operation)},
			{Key: "table", Value: []byte(event.Table)},
		},
	}
	if err := q.writer.WriteMessages(ctx, message); err != nil {
		q.logger.Error("failed to produce event",
			zap.String("topic", q.topic),
			zap.String("table", event.Table),
			zap.Error(err))
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	q.mu.Lock()
	q.size++
	q.mu.Unlock()
	return nil
}

// Dequeue consumes up to batchSize events, waiting at most the read timeout
// for each, and commits the offsets of everything fetched. Messages that
// cannot be decoded are committed and dropped.
func (q *KafkaQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.MutationEvent, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	events := make([]*core.MutationEvent, 0, batchSize)
	fetched := make([]kafka.Message, 0, batchSize)
	for len(fetched) < batchSize {
		readCtx, cancel := context.WithTimeout(ctx, q.readTimeout)
		message, err := q.reader.FetchMessage(readCtx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				q.logger.Error("failed to fetch event", zap.String("topic", q.topic), zap.Error(err))
			}
			break
		}
		fetched = append(fetched, message)

		var event core.MutationEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			q.logger.Warn("dropping undecodable event",
				zap.Int("partition", message.Partition),
				zap.Int64("offset", message.Offset),
				zap.Error(err))
			continue
		}
		events = append(events, &event)
	}

	if len(fetched) > 0 {
		if err := q.reader.CommitMessages(ctx, fetched...); err != nil {
			q.logger.Warn("failed to commit offsets", zap.Int("messages", len(fetched)), zap.Error(err))
		}
	}

	q.mu.Lock()
	q.size = max(q.size-len(events), 0)
	q.mu.Unlock()
	return events, nil
}

// Size returns an approximate number of queued events. Kafka does not expose
// an exact backlog to a producer.
func (q *KafkaQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.size
}

// Close closes the writer and the reader.
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	return errors.Join(q.writer.Close(), q.reader.Close())
}
