package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/relbatch/internal/core"
)

// EnvPrefix prefixes every environment variable LoadFromEnv reads.
const EnvPrefix = "RELBATCH_"

// ConfigValidator is the Strategy interface for validating configuration.
// Each KV store backend (Redis, DynamoDB) provides its own validator for the
// journal store settings.
type ConfigValidator interface {
	// Validate validates the KV store part of the journal configuration.
	Validate(config *InternalKVStoreConfig) error

	// Type returns the type identifier for this validator (e.g., "redis", "dynamodb").
	Type() string
}

var (
	// validatorRegistry stores all registered config validators.
	validatorRegistry = make(map[string]ConfigValidator)

	// validatorRegistryMutex protects the validator registry from concurrent access.
	validatorRegistryMutex sync.RWMutex
)

// ValidationStrategyRegistry provides methods to register and retrieve config validators.
type ValidationStrategyRegistry struct{}

// Register registers a config validator.
// Panics if validator is nil, type is empty, or type is already registered.
func (r *ValidationStrategyRegistry) Register(validator ConfigValidator) {
	if validator == nil {
		panic("validator cannot be nil")
	}
	if validator.Type() == "" {
		panic("validator type cannot be empty")
	}

	validatorRegistryMutex.Lock()
	defer validatorRegistryMutex.Unlock()

	if _, exists := validatorRegistry[validator.Type()]; exists {
		panic(fmt.Sprintf("validator for type %q is already registered", validator.Type()))
	}

	validatorRegistry[validator.Type()] = validator
}

// Get retrieves a validator by type.
func (r *ValidationStrategyRegistry) Get(validatorType string) (ConfigValidator, bool) {
	validatorRegistryMutex.RLock()
	defer validatorRegistryMutex.RUnlock()

	validator, exists := validatorRegistry[validatorType]
	return validator, exists
}

// RegisterValidator registers a validator with the default registry.
// KV store packages call it from init().
func RegisterValidator(validator ConfigValidator) {
	defaultValidationRegistry.Register(validator)
}

// GetValidator retrieves a validator by type from the default registry.
func GetValidator(validatorType string) (ConfigValidator, bool) {
	return defaultValidationRegistry.Get(validatorType)
}

var defaultValidationRegistry = &ValidationStrategyRegistry{}

// ConfigManager handles loading and managing configuration from various sources.
type ConfigManager struct {
	config *InternalConfig
}

// NewConfigManager creates a new configuration manager with default configuration.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config: DefaultInternalConfig(),
	}
}

// NewConfigManagerFrom creates a configuration manager holding config after
// validating it.
func NewConfigManagerFrom(config *InternalConfig) (*ConfigManager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	cm := &ConfigManager{}
	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cm.config = config
	return cm, nil
}

// DefaultInternalConfig returns a configuration with sensible defaults.
// The journal and events are disabled.
func DefaultInternalConfig() *InternalConfig {
	return &InternalConfig{
		Database: InternalDatabaseConfig{
			Host:              "localhost",
			Port:              3306,
			MaxOpenConns:      25,
			MaxIdleConns:      5,
			ConnMaxLifetime:   5 * time.Minute,
			ConnMaxIdleTime:   10 * time.Minute,
			ConnectionTimeout: 10 * time.Second,
		},
		Journal: InternalJournalConfig{
			KVStore: InternalKVStoreConfig{
				Type: "redis",
				RedisConfig: InternalRedisConfig{
					Endpoints:    []string{"localhost:6379"},
					PoolSize:     10,
					MinIdleConns: 5,
				},
				MaxRetries:   3,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
			KeyPrefix: "relbatch:journal",
			EntryTTL:  24 * time.Hour,
		},
		Events: InternalEventsConfig{
			QueueType:       "memory",
			QueueBufferSize: 10000,
			BatchSize:       100,
			DispatchRate:    50,
			PollInterval:    100 * time.Millisecond,
			RedisKey:        "relbatch:events",
			RedisConfig: InternalRedisConfig{
				Endpoints:    []string{"localhost:6379"},
				PoolSize:     10,
				MinIdleConns: 5,
			},
			KafkaConfig: InternalKafkaConfig{
				Brokers:         []string{"localhost:9092"},
				Topic:           "relbatch-mutations",
				GroupID:         "relbatch-dispatcher",
				BatchSize:       100,
				BatchTimeout:    10 * time.Millisecond,
				WriteTimeout:    10 * time.Second,
				ReadTimeout:     10 * time.Second,
				RequiredAcks:    -1,
				MaxMessageBytes: 1000000,
				MinBytes:        1,
				MaxBytes:        10 * 1024 * 1024,
				MaxWait:         100 * time.Millisecond,
			},
		},
		Tables: make(map[string]InternalTableConfig),
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
// The file format is determined by the file extension (.yaml, .yml, or .json).
func (cm *ConfigManager) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		return cm.LoadFromYAML(data)
	case ".json":
		return cm.LoadFromJSON(data)
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
}

// LoadFromYAML loads configuration from YAML data on top of the defaults.
func (cm *ConfigManager) LoadFromYAML(data []byte) error {
	config := DefaultInternalConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return cm.set(config)
}

// LoadFromJSON loads configuration from JSON data on top of the defaults.
func (cm *ConfigManager) LoadFromJSON(data []byte) error {
	config := DefaultInternalConfig()
	if len(data) > 0 {
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return cm.set(config)
}

// LoadFromEnv loads configuration from environment variables on top of the
// defaults. Variables follow the pattern RELBATCH_<SECTION>_<KEY>:
//   - RELBATCH_DATABASE_HOST=localhost
//   - RELBATCH_DATABASE_STATEMENT_RATE=200
//   - RELBATCH_JOURNAL_ENABLED=true
//   - RELBATCH_JOURNAL_KVSTORE_ENDPOINTS=localhost:6379,localhost:6380
//   - RELBATCH_EVENTS_QUEUE_TYPE=kafka
func (cm *ConfigManager) LoadFromEnv() error {
	config := DefaultInternalConfig()

	db := &config.Database
	envString("DATABASE_HOST", &db.Host)
	envInt("DATABASE_PORT", &db.Port)
	envString("DATABASE_DATABASE", &db.Database)
	envString("DATABASE_USERNAME", &db.Username)
	envString("DATABASE_PASSWORD", &db.Password)
	envInt("DATABASE_MAX_OPEN_CONNS", &db.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &db.MaxIdleConns)
	envDuration("DATABASE_CONNECTION_TIMEOUT", &db.ConnectionTimeout)
	envInt("DATABASE_STATEMENT_RATE", &db.StatementRate)

	journal := &config.Journal
	envBool("JOURNAL_ENABLED", &journal.Enabled)
	envString("JOURNAL_KVSTORE_TYPE", &journal.KVStore.Type)
	envList("JOURNAL_KVSTORE_ENDPOINTS", &journal.KVStore.RedisConfig.Endpoints)
	envString("JOURNAL_KVSTORE_PASSWORD", &journal.KVStore.RedisConfig.Password)
	envInt("JOURNAL_KVSTORE_DB", &journal.KVStore.RedisConfig.DB)
	envInt("JOURNAL_KVSTORE_POOL_SIZE", &journal.KVStore.RedisConfig.PoolSize)
	envInt("JOURNAL_KVSTORE_MAX_RETRIES", &journal.KVStore.MaxRetries)
	envString("JOURNAL_KVSTORE_REGION", &journal.KVStore.DynamoDBConfig.Region)
	envString("JOURNAL_KVSTORE_TABLE_NAME", &journal.KVStore.DynamoDBConfig.TableName)
	envString("JOURNAL_KVSTORE_ENDPOINT", &journal.KVStore.DynamoDBConfig.Endpoint)
	envString("JOURNAL_KEY_PREFIX", &journal.KeyPrefix)
	envDuration("JOURNAL_ENTRY_TTL", &journal.EntryTTL)

	events := &config.Events
	envBool("EVENTS_ENABLED", &events.Enabled)
	envString("EVENTS_QUEUE_TYPE", &events.QueueType)
	envInt("EVENTS_QUEUE_BUFFER_SIZE", &events.QueueBufferSize)
	envInt("EVENTS_BATCH_SIZE", &events.BatchSize)
	envInt("EVENTS_DISPATCH_RATE", &events.DispatchRate)
	envString("EVENTS_REDIS_KEY", &events.RedisKey)
	envList("EVENTS_REDIS_ENDPOINTS", &events.RedisConfig.Endpoints)
	envList("EVENTS_KAFKA_BROKERS", &events.KafkaConfig.Brokers)
	envString("EVENTS_KAFKA_TOPIC", &events.KafkaConfig.Topic)
	envString("EVENTS_KAFKA_GROUP_ID", &events.KafkaConfig.GroupID)

	return cm.set(config)
}

func (cm *ConfigManager) set(config *InternalConfig) error {
	if err := cm.validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cm.config = config
	return nil
}

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envList(key string, dst *[]string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = strings.Split(val, ",")
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val == "true" || val == "1"
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// GetConfig returns the current internal configuration.
func (cm *ConfigManager) GetConfig() *InternalConfig {
	return cm.config
}

// GetTableConfig returns the overrides for a table, zero when none are set.
func (cm *ConfigManager) GetTableConfig(tableName string) InternalTableConfig {
	return cm.config.Tables[tableName]
}

// Relations builds the relations configured for a table.
func (cm *ConfigManager) Relations(tableName string) []core.Relation {
	configured := cm.config.Tables[tableName].Relations
	if len(configured) == 0 {
		return nil
	}
	relations := make([]core.Relation, 0, len(configured))
	for _, rc := range configured {
		rel := core.Relation{
			Name:      rc.Name,
			Target:    rc.Target,
			Link:      rc.Link,
			OnReplace: core.NoDelete(),
		}
		if rel.Target == "" {
			rel.Target = rc.Name
		}
		if rc.DeleteOnReplace || len(rc.DeleteCondition) > 0 {
			rel.OnReplace = core.DeleteWhere(rc.DeleteCondition)
		}
		relations = append(relations, rel)
	}
	return relations
}

// validateConfig validates the configuration and returns an error if invalid.
// The journal's KV store settings are checked by the validator registered
// for its type.
func (cm *ConfigManager) validateConfig(config *InternalConfig) error {
	db := config.Database
	if db.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if db.Port <= 0 || db.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535")
	}
	if db.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must be non-negative")
	}
	if db.StatementRate < 0 {
		return fmt.Errorf("database.statement_rate must be non-negative")
	}

	if config.Journal.Enabled {
		kv := config.Journal.KVStore
		if kv.Type == "" {
			return fmt.Errorf("journal.kvstore.type is required")
		}
		validator, exists := GetValidator(kv.Type)
		if !exists {
			return fmt.Errorf("unsupported KV store type: %s", kv.Type)
		}
		if err := validator.Validate(&kv); err != nil {
			return fmt.Errorf("kvstore validation failed: %w", err)
		}
		if config.Journal.EntryTTL < 0 {
			return fmt.Errorf("journal.entry_ttl must be non-negative")
		}
	}

	if config.Events.Enabled {
		ev := config.Events
		switch ev.QueueType {
		case "memory":
			if ev.QueueBufferSize <= 0 {
				return fmt.Errorf("events.queue_buffer_size must be greater than 0")
			}
		case "redis":
			if len(ev.RedisConfig.Endpoints) == 0 {
				return fmt.Errorf("events.redis_config.endpoints is required when queue_type is 'redis'")
			}
		case "kafka":
			if len(ev.KafkaConfig.Brokers) == 0 {
				return fmt.Errorf("events.kafka_config.brokers is required when queue_type is 'kafka'")
			}
			if ev.KafkaConfig.Topic == "" {
				return fmt.Errorf("events.kafka_config.topic is required when queue_type is 'kafka'")
			}
		default:
			return fmt.Errorf("events.queue_type must be 'memory', 'redis', or 'kafka'")
		}
		if ev.BatchSize <= 0 {
			return fmt.Errorf("events.batch_size must be greater than 0")
		}
		if ev.DispatchRate <= 0 {
			return fmt.Errorf("events.dispatch_rate must be greater than 0")
		}
	}

	for table, tc := range config.Tables {
		for i, rc := range tc.Relations {
			if rc.Name == "" {
				return fmt.Errorf("tables.%s.relations[%d].name is required", table, i)
			}
		}
	}
	return nil
}
