package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/kvstore"
	"github.com/rzpsarthak13/relbatch/internal/registry"
)

// NewQueue builds the queue selected by config.QueueType.
func NewQueue(ctx context.Context, config registry.InternalEventsConfig, logger *zap.Logger) (core.EventQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("events")

	switch config.QueueType {
	case "", "memory":
		return NewMemoryQueue(config.QueueBufferSize), nil
	case "redis":
		rc := config.RedisConfig
		client, err := kvstore.NewRedisClient(ctx, kvstore.RedisOptions{
			Endpoints:    rc.Endpoints,
			Password:     rc.Password,
			DB:           rc.DB,
			PoolSize:     rc.PoolSize,
			MinIdleConns: rc.MinIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis event queue: %w", err)
		}
		return &closingRedisQueue{
			RedisQueue: NewRedisQueue(kvstore.NewRedisKVStore(client, logger), config.RedisKey, logger),
			closeFn:    client.Close,
		}, nil
	case "kafka":
		kc := config.KafkaConfig
		return NewKafkaQueue(KafkaQueueConfig{
			Brokers:         kc.Brokers,
			Topic:           kc.Topic,
			GroupID:         kc.GroupID,
			BatchSize:       kc.BatchSize,
			BatchTimeout:    kc.BatchTimeout,
			WriteTimeout:    kc.WriteTimeout,
			ReadTimeout:     kc.ReadTimeout,
			RequiredAcks:    kc.RequiredAcks,
			MaxMessageBytes: kc.MaxMessageBytes,
			MinBytes:        kc.MinBytes,
			MaxBytes:        kc.MaxBytes,
			MaxWait:         kc.MaxWait,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported event queue type: %s", config.QueueType)
	}
}

// closingRedisQueue owns the client it was built on.
type closingRedisQueue struct {
	*RedisQueue
	closeFn func() error
}

func (q *closingRedisQueue) Close() error {
	if err := q.RedisQueue.Close(); err != nil {
		return err
	}
	return q.closeFn()
}

// DispatcherConfigFrom maps the events configuration onto a DispatcherConfig.
func DispatcherConfigFrom(config registry.InternalEventsConfig) DispatcherConfig {
	return DispatcherConfig{
		DispatchRate: config.DispatchRate,
		BatchSize:    config.BatchSize,
		PollInterval: config.PollInterval,
	}
}
