// Package kvstore provides the key-value stores the statement journal is kept
// in. Backends register themselves from init() and are picked by type name.
package kvstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rzpsarthak13/relbatch/internal/core"
	"github.com/rzpsarthak13/relbatch/internal/registry"
)

// KVStoreFactory is the Strategy interface for creating KV store implementations.
// Each backend (Redis, DynamoDB) implements this interface.
type KVStoreFactory interface {
	// Create creates a new KV store instance based on the provided configuration.
	Create(ctx context.Context, config KVStoreConfig, logger *zap.Logger) (core.KVStore, error)

	// Type returns the type identifier for this factory (e.g., "redis", "dynamodb").
	Type() string

	// Validate validates the configuration specific to this KV store type.
	Validate(config KVStoreConfig) error
}

// KVStoreConfig represents the configuration needed to create a KV store.
type KVStoreConfig struct {
	Type         string
	Endpoints    []string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DynamoDB-specific fields
	Region          string
	TableName       string
	Endpoint        string // Optional, for LocalStack
	AccessKeyID     string // Optional, can use IAM role instead
	SecretAccessKey string // Optional, can use IAM role instead
}

// ConfigFromInternal flattens the journal's KV store section into a KVStoreConfig.
func ConfigFromInternal(c registry.InternalKVStoreConfig) KVStoreConfig {
	return KVStoreConfig{
		Type:            c.Type,
		Endpoints:       c.RedisConfig.Endpoints,
		Password:        c.RedisConfig.Password,
		DB:              c.RedisConfig.DB,
		MaxRetries:      c.MaxRetries,
		PoolSize:        c.RedisConfig.PoolSize,
		MinIdleConns:    c.RedisConfig.MinIdleConns,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		Region:          c.DynamoDBConfig.Region,
		TableName:       c.DynamoDBConfig.TableName,
		Endpoint:        c.DynamoDBConfig.Endpoint,
		AccessKeyID:     c.DynamoDBConfig.AccessKeyID,
		SecretAccessKey: c.DynamoDBConfig.SecretAccessKey,
	}
}

var (
	// factoryRegistry stores all registered KV store factories.
	factoryRegistry = make(map[string]KVStoreFactory)

	// registryMutex protects the registries from concurrent access.
	registryMutex sync.RWMutex
)

// RegisterFactory registers a KV store factory.
// This is called automatically by each implementation's init() function.
func RegisterFactory(factory KVStoreFactory) {
	if factory == nil {
		panic("factory cannot be nil")
	}
	if factory.Type() == "" {
		panic("factory type cannot be empty")
	}

	registryMutex.Lock()
	defer registryMutex.Unlock()

	if _, exists := factoryRegistry[factory.Type()]; exists {
		panic(fmt.Sprintf("factory for type %q is already registered", factory.Type()))
	}

	factoryRegistry[factory.Type()] = factory
}

// Create creates a KV store instance using the factory registered for config.Type.
func Create(ctx context.Context, config KVStoreConfig, logger *zap.Logger) (core.KVStore, error) {
	if config.Type == "" {
		return nil, fmt.Errorf("kvstore type is required")
	}

	registryMutex.RLock()
	factory, exists := factoryRegistry[config.Type]
	registryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported KV store type: %s", config.Type)
	}

	if err := factory.Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", config.Type, err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return factory.Create(ctx, config, logger.Named("kvstore"))
}

// GetRegisteredTypes returns the registered KV store types, sorted.
func GetRegisteredTypes() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	types := make([]string, 0, len(factoryRegistry))
	for t := range factoryRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsTypeRegistered checks if a KV store type is registered.
func IsTypeRegistered(storeType string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	_, exists := factoryRegistry[storeType]
	return exists
}

// factoryValidator adapts a factory's validation to registry.ConfigValidator
// so configuration is checked by the same rules the factory applies.
type factoryValidator struct {
	factory KVStoreFactory
}

func (v factoryValidator) Type() string {
	return v.factory.Type()
}

func (v factoryValidator) Validate(config *registry.InternalKVStoreConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	return v.factory.Validate(ConfigFromInternal(*config))
}

func register(factory KVStoreFactory) {
	RegisterFactory(factory)
	registry.RegisterValidator(factoryValidator{factory: factory})
}

func validateCommon(config KVStoreConfig) error {
	if config.DialTimeout <= 0 {
		return fmt.Errorf("dial_timeout must be greater than 0, got: %v", config.DialTimeout)
	}
	if config.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be greater than 0, got: %v", config.ReadTimeout)
	}
	if config.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be greater than 0, got: %v", config.WriteTimeout)
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got: %d", config.MaxRetries)
	}
	return nil
}

// errClosed is returned by every operation on a closed store.
var errClosed = fmt.Errorf("KV store is closed")
