package registry

import (
	"time"
)

// InternalConfig represents the internal configuration structure.
// The public relbatch.Config is converted into it to avoid import cycles.
type InternalConfig struct {
	Database InternalDatabaseConfig         `yaml:"database" json:"database"`
	Journal  InternalJournalConfig          `yaml:"journal" json:"journal"`
	Events   InternalEventsConfig           `yaml:"events" json:"events"`
	Tables   map[string]InternalTableConfig `yaml:"tables,omitempty" json:"tables,omitempty"`
}

// InternalDatabaseConfig contains configuration for the MySQL connection.
type InternalDatabaseConfig struct {
	Host              string        `yaml:"host" json:"host"`
	Port              int           `yaml:"port" json:"port"`
	Database          string        `yaml:"database" json:"database"`
	Username          string        `yaml:"username" json:"username"`
	Password          string        `yaml:"password,omitempty" json:"password,omitempty"`
	MaxOpenConns      int           `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitempty"`
	MaxIdleConns      int           `yaml:"max_idle_conns,omitempty" json:"max_idle_conns,omitempty"`
	ConnMaxLifetime   time.Duration `yaml:"conn_max_lifetime,omitempty" json:"conn_max_lifetime,omitempty"`
	ConnMaxIdleTime   time.Duration `yaml:"conn_max_idle_time,omitempty" json:"conn_max_idle_time,omitempty"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout,omitempty" json:"connection_timeout,omitempty"`
	// StatementRate caps statements per second; 0 means unlimited.
	StatementRate int `yaml:"statement_rate,omitempty" json:"statement_rate,omitempty"`
}

// InternalJournalConfig contains configuration for the statement journal.
type InternalJournalConfig struct {
	Enabled   bool                  `yaml:"enabled" json:"enabled"`
	KVStore   InternalKVStoreConfig `yaml:"kvstore" json:"kvstore"`
	KeyPrefix string                `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
	EntryTTL  time.Duration         `yaml:"entry_ttl,omitempty" json:"entry_ttl,omitempty"`
}

// InternalKVStoreConfig contains configuration for the key-value store.
type InternalKVStoreConfig struct {
	Type           string                 `yaml:"type" json:"type"`
	RedisConfig    InternalRedisConfig    `yaml:"redis_config,omitempty" json:"redis_config,omitempty"`
	DynamoDBConfig InternalDynamoDBConfig `yaml:"dynamodb_config,omitempty" json:"dynamodb_config,omitempty"`
	MaxRetries     int                    `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	DialTimeout    time.Duration          `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`
	ReadTimeout    time.Duration          `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	WriteTimeout   time.Duration          `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`
}

// InternalRedisConfig contains Redis-specific configuration.
type InternalRedisConfig struct {
	Endpoints    []string `yaml:"endpoints" json:"endpoints"`
	Password     string   `yaml:"password,omitempty" json:"password,omitempty"`
	DB           int      `yaml:"db,omitempty" json:"db,omitempty"`
	PoolSize     int      `yaml:"pool_size,omitempty" json:"pool_size,omitempty"`
	MinIdleConns int      `yaml:"min_idle_conns,omitempty" json:"min_idle_conns,omitempty"`
}

// InternalDynamoDBConfig contains DynamoDB-specific configuration.
type InternalDynamoDBConfig struct {
	Region          string `yaml:"region" json:"region"`
	TableName       string `yaml:"table_name" json:"table_name"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
}

// InternalEventsConfig contains configuration for mutation events.
type InternalEventsConfig struct {
	Enabled         bool                `yaml:"enabled" json:"enabled"`
	QueueType       string              `yaml:"queue_type" json:"queue_type"`
	QueueBufferSize int                 `yaml:"queue_buffer_size,omitempty" json:"queue_buffer_size,omitempty"`
	BatchSize       int                 `yaml:"batch_size" json:"batch_size"`
	DispatchRate    int                 `yaml:"dispatch_rate" json:"dispatch_rate"` // events per second
	PollInterval    time.Duration       `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`
	RedisKey        string              `yaml:"redis_key,omitempty" json:"redis_key,omitempty"`
	RedisConfig     InternalRedisConfig `yaml:"redis_config,omitempty" json:"redis_config,omitempty"`
	KafkaConfig     InternalKafkaConfig `yaml:"kafka_config,omitempty" json:"kafka_config,omitempty"`
}

// InternalKafkaConfig contains Kafka-specific configuration.
type InternalKafkaConfig struct {
	Brokers         []string      `yaml:"brokers" json:"brokers"`
	Topic           string        `yaml:"topic" json:"topic"`
	GroupID         string        `yaml:"group_id" json:"group_id"`
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	RequiredAcks    int           `yaml:"required_acks" json:"required_acks"`
	MaxMessageBytes int           `yaml:"max_message_bytes" json:"max_message_bytes"`
	MinBytes        int           `yaml:"min_bytes" json:"min_bytes"`
	MaxBytes        int           `yaml:"max_bytes" json:"max_bytes"`
	MaxWait         time.Duration `yaml:"max_wait" json:"max_wait"`
}

// InternalTableConfig contains table-specific overrides.
type InternalTableConfig struct {
	// UpsertUpdate makes list updates of rows carrying relations upsert with
	// an update clause instead of a CASE update.
	UpsertUpdate     bool                     `yaml:"upsert_update,omitempty" json:"upsert_update,omitempty"`
	ReferenceColumns []string                 `yaml:"reference_columns,omitempty" json:"reference_columns,omitempty"`
	Relations        []InternalRelationConfig `yaml:"relations,omitempty" json:"relations,omitempty"`
}

// InternalRelationConfig declares a relation from configuration.
type InternalRelationConfig struct {
	Name   string            `yaml:"name" json:"name"`
	Target string            `yaml:"target" json:"target"`
	Link   map[string]string `yaml:"link,omitempty" json:"link,omitempty"`
	// DeleteOnReplace deletes the stored children linked to the parent before
	// new ones are written, narrowed by DeleteCondition when set.
	DeleteOnReplace bool           `yaml:"delete_on_replace,omitempty" json:"delete_on_replace,omitempty"`
	DeleteCondition map[string]any `yaml:"delete_condition,omitempty" json:"delete_condition,omitempty"`
}
