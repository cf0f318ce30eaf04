package relbatch

import (
	"time"
)

// Config represents the root configuration for the relbatch client.
type Config struct {
	// Database contains configuration for the MySQL connection.
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Journal contains configuration for the statement journal.
	Journal JournalConfig `yaml:"journal" json:"journal"`

	// Events contains configuration for mutation events.
	Events EventsConfig `yaml:"events" json:"events"`

	// Tables contains table-specific configuration overrides.
	// If a table is not specified here, default settings will be used.
	Tables map[string]TableConfig `yaml:"tables,omitempty" json:"tables,omitempty"`
}

// DatabaseConfig contains configuration for the MySQL connection.
type DatabaseConfig struct {
	// Host is the database host address.
	Host string `yaml:"host" json:"host"`

	// Port is the database port number.
	Port int `yaml:"port" json:"port"`

	// Database is the database name.
	Database string `yaml:"database" json:"database"`

	// Username is the database username.
	Username string `yaml:"username" json:"username"`

	// Password is the database password.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int `yaml:"max_idle_conns,omitempty" json:"max_idle_conns,omitempty"`

	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty" json:"conn_max_lifetime,omitempty"`

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle.
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time,omitempty" json:"conn_max_idle_time,omitempty"`

	// ConnectionTimeout is the timeout for establishing database connections.
	ConnectionTimeout time.Duration `yaml:"connection_timeout,omitempty" json:"connection_timeout,omitempty"`

	// StatementRate is the maximum number of statements per second.
	// Zero means unlimited.
	StatementRate int `yaml:"statement_rate,omitempty" json:"statement_rate,omitempty"`
}

// JournalConfig contains configuration for the statement journal. When
// enabled, every mutating statement is recorded in the KV store before it
// runs and acknowledged after it succeeds.
type JournalConfig struct {
	// Enabled turns the journal on. Defaults to false.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// KVStore is the store entries are written to.
	KVStore KVStoreConfig `yaml:"kvstore" json:"kvstore"`

	// KeyPrefix prefixes every journal key.
	KeyPrefix string `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`

	// EntryTTL is how long entries are kept.
	EntryTTL time.Duration `yaml:"entry_ttl,omitempty" json:"entry_ttl,omitempty"`
}

// KVStoreConfig contains configuration for the key-value store.
type KVStoreConfig struct {
	// Type specifies the KV store type: "redis" or "dynamodb".
	Type string `yaml:"type" json:"type"`

	// RedisConfig is used when Type is "redis".
	RedisConfig RedisConfig `yaml:"redis_config,omitempty" json:"redis_config,omitempty"`

	// DynamoDBConfig is used when Type is "dynamodb".
	DynamoDBConfig DynamoDBConfig `yaml:"dynamodb_config,omitempty" json:"dynamodb_config,omitempty"`

	// MaxRetries is the maximum number of retries for failed operations.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// DialTimeout is the timeout for establishing connections.
	DialTimeout time.Duration `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`

	// ReadTimeout is the timeout for read operations.
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`

	// WriteTimeout is the timeout for write operations.
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	// Endpoints is a list of Redis endpoints. More than one selects cluster mode.
	Endpoints []string `yaml:"endpoints" json:"endpoints"`

	// Password is the authentication password for Redis.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// DB is the Redis database number. Only used in non-cluster mode.
	DB int `yaml:"db,omitempty" json:"db,omitempty"`

	// PoolSize is the connection pool size per node.
	PoolSize int `yaml:"pool_size,omitempty" json:"pool_size,omitempty"`

	// MinIdleConns is the minimum number of idle connections in the pool.
	MinIdleConns int `yaml:"min_idle_conns,omitempty" json:"min_idle_conns,omitempty"`
}

// DynamoDBConfig contains DynamoDB connection settings.
type DynamoDBConfig struct {
	// Region is the AWS region.
	Region string `yaml:"region" json:"region"`

	// TableName is the DynamoDB table journal entries are stored in.
	TableName string `yaml:"table_name" json:"table_name"`

	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// AccessKeyID and SecretAccessKey set static credentials. When empty the
	// default AWS credential chain is used.
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
}

// EventsConfig contains configuration for mutation events.
type EventsConfig struct {
	// Enabled turns mutation events on. Defaults to false.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// QueueType specifies the queue implementation type.
	// Options: "memory", "redis", "kafka" (default: "memory").
	QueueType string `yaml:"queue_type" json:"queue_type"`

	// QueueBufferSize is the buffer size for the in-memory queue.
	// Only used when QueueType is "memory".
	QueueBufferSize int `yaml:"queue_buffer_size,omitempty" json:"queue_buffer_size,omitempty"`

	// BatchSize is how many events the dispatcher dequeues at once.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// DispatchRate is the maximum number of events handed to handlers per second.
	DispatchRate int `yaml:"dispatch_rate" json:"dispatch_rate"`

	// PollInterval is how long the dispatcher waits before polling an empty queue.
	PollInterval time.Duration `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`

	// RedisKey prefixes the Redis lists events are pushed to.
	// Only used when QueueType is "redis".
	RedisKey string `yaml:"redis_key,omitempty" json:"redis_key,omitempty"`

	// RedisConfig is used when QueueType is "redis".
	RedisConfig RedisConfig `yaml:"redis_config,omitempty" json:"redis_config,omitempty"`

	// KafkaConfig is used when QueueType is "kafka".
	KafkaConfig KafkaConfig `yaml:"kafka_config,omitempty" json:"kafka_config,omitempty"`
}

// KafkaConfig contains configuration for the Kafka queue. Producer settings
// map onto kafka.Writer and consumer settings onto kafka.ReaderConfig.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers"`
	Topic   string   `yaml:"topic" json:"topic"`

	// GroupID is the consumer group the dispatcher reads with.
	GroupID string `yaml:"group_id" json:"group_id"`

	// Producer.
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	RequiredAcks    int           `yaml:"required_acks" json:"required_acks"` // 0, 1, or -1 (all)
	MaxMessageBytes int           `yaml:"max_message_bytes" json:"max_message_bytes"`

	// Consumer. ReadTimeout bounds the wait for each event in a dequeued batch.
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`
	MinBytes    int           `yaml:"min_bytes" json:"min_bytes"`
	MaxBytes    int           `yaml:"max_bytes" json:"max_bytes"`
	MaxWait     time.Duration `yaml:"max_wait" json:"max_wait"`
}

// TableConfig contains table-specific configuration overrides.
type TableConfig struct {
	// UpsertUpdate makes list updates upsert with ON DUPLICATE KEY UPDATE
	// instead of issuing one CASE update.
	UpsertUpdate bool `yaml:"upsert_update,omitempty" json:"upsert_update,omitempty"`

	// ReferenceColumns are the columns list updates match rows on.
	// If not set, the primary key is used.
	ReferenceColumns []string `yaml:"reference_columns,omitempty" json:"reference_columns,omitempty"`

	// Relations are appended to the relations a registered spec declares.
	Relations []RelationConfig `yaml:"relations,omitempty" json:"relations,omitempty"`
}

// RelationConfig declares a relation from configuration.
type RelationConfig struct {
	// Name is the body key holding the nested rows.
	Name string `yaml:"name" json:"name"`

	// Target is the spec the nested rows belong to. Defaults to Name.
	Target string `yaml:"target" json:"target"`

	// Link maps child columns to parent columns. Defaults to
	// "<singular parent table>_id" linked to the parent's primary key.
	Link map[string]string `yaml:"link,omitempty" json:"link,omitempty"`

	// DeleteOnReplace deletes the stored children linked to the parent before
	// new ones are written.
	DeleteOnReplace bool `yaml:"delete_on_replace,omitempty" json:"delete_on_replace,omitempty"`

	// DeleteCondition narrows the children deleted on replace.
	DeleteCondition map[string]any `yaml:"delete_condition,omitempty" json:"delete_condition,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults.
// The journal and events are disabled.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:              "localhost",
			Port:              3306,
			MaxOpenConns:      25,
			MaxIdleConns:      5,
			ConnMaxLifetime:   5 * time.Minute,
			ConnMaxIdleTime:   10 * time.Minute,
			ConnectionTimeout: 10 * time.Second,
		},
		Journal: JournalConfig{
			KVStore: KVStoreConfig{
				Type: "redis",
				RedisConfig: RedisConfig{
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
		Events: EventsConfig{
			QueueType:       "memory",
			QueueBufferSize: 10000,
			BatchSize:       100,
			DispatchRate:    50,
			PollInterval:    100 * time.Millisecond,
			RedisKey:        "relbatch:events",
			RedisConfig: RedisConfig{
				Endpoints:    []string{"localhost:6379"},
				PoolSize:     10,
				MinIdleConns: 5,
			},
			KafkaConfig: KafkaConfig{
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
		Tables: make(map[string]TableConfig),
	}
}
