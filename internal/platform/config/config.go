package config

import (
	"time"
)

// Storage backends selectable through STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// Notifier backends selectable through WEBHOOK_QUEUE.
const (
	QueueInProcess = "inprocess"
	QueueKafka     = "kafka"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	S3       S3Config       `yaml:"s3"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Bulk     BulkConfig     `yaml:"bulk"`
	Session  SessionConfig  `yaml:"session"`
	Policy   PolicyConfig   `yaml:"policy"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"15s"`
	// SDKBaseURL prefixes the capture link handed back on case creation.
	SDKBaseURL string `yaml:"sdk_base_url" env:"SDK_BASE_URL" env-default:"https://verify.localhost"`
	// CaseTTL bounds how long a case may stay open before the expiry sweep closes it.
	CaseTTL           time.Duration `yaml:"case_ttl"            env:"CASE_TTL"            env-default:"168h"`
	ExpirySweepPeriod time.Duration `yaml:"expiry_sweep_period" env:"EXPIRY_SWEEP_PERIOD" env-default:"5m"`
	// AdminToken guards the /admin routes through the X-Admin-Token header.
	AdminToken string `yaml:"admin_token" env:"ADMIN_TOKEN" env-default:"dev-admin-token-change-in-production"`
}

// StorageConfig selects persistence backends.
type StorageConfig struct {
	Backend            string `yaml:"backend"             env:"STORAGE_BACKEND"     env-default:"memory"`
	IdempotencyBackend string `yaml:"idempotency_backend" env:"IDEMPOTENCY_BACKEND" env-default:"memory"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
	Migrate         bool          `yaml:"migrate"            env:"DATABASE_MIGRATE"            env-default:"true"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL          string        `yaml:"url"            env:"REDIS_URL"`
	PoolSize     int           `yaml:"pool_size"      env:"REDIS_POOL_SIZE"      env-default:"10"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" env-default:"2"`
	DialTimeout  time.Duration `yaml:"dial_timeout"   env:"REDIS_DIAL_TIMEOUT"   env-default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout"   env:"REDIS_READ_TIMEOUT"   env-default:"3s"`
	WriteTimeout time.Duration `yaml:"write_timeout"  env:"REDIS_WRITE_TIMEOUT"  env-default:"3s"`
}

// DynamoDBConfig names the tables used by the DynamoDB backend.
type DynamoDBConfig struct {
	Region           string `yaml:"region"            env:"AWS_REGION"             env-default:"af-south-1"`
	Endpoint         string `yaml:"endpoint"          env:"DYNAMODB_ENDPOINT"`
	CasesTable       string `yaml:"cases_table"       env:"DYNAMODB_CASES_TABLE"       env-default:"verification_cases"`
	IdempotencyTable string `yaml:"idempotency_table" env:"DYNAMODB_IDEMPOTENCY_TABLE" env-default:"idempotency_keys"`
	StatusIndex      string `yaml:"status_index"      env:"DYNAMODB_STATUS_INDEX"      env-default:"status-expires_at-index"`
}

// KafkaConfig holds broker settings for the webhook job queue.
type KafkaConfig struct {
	Brokers       string `yaml:"brokers"        env:"KAFKA_BROKERS"`
	WebhookTopic  string `yaml:"webhook_topic"  env:"KAFKA_WEBHOOK_TOPIC"  env-default:"verity.webhook-jobs"`
	ConsumerGroup string `yaml:"consumer_group" env:"KAFKA_CONSUMER_GROUP" env-default:"verity-webhook-workers"`
	Partitions    int32  `yaml:"partitions"     env:"KAFKA_PARTITIONS"     env-default:"6"`
}

// S3Config holds the document bucket settings.
type S3Config struct {
	Bucket       string        `yaml:"bucket"        env:"DOCUMENTS_BUCKET"`
	PresignTTL   time.Duration `yaml:"presign_ttl"   env:"DOCUMENTS_PRESIGN_TTL"   env-default:"15m"`
	MaxFileBytes int64         `yaml:"max_file_bytes" env:"DOCUMENTS_MAX_FILE_BYTES" env-default:"10485760"`
}

// WebhookConfig tunes outbound delivery.
type WebhookConfig struct {
	Queue          string        `yaml:"queue"           env:"WEBHOOK_QUEUE"           env-default:"inprocess"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout" env:"WEBHOOK_ATTEMPT_TIMEOUT" env-default:"10s"`
	MaxAttempts    int           `yaml:"max_attempts"    env:"WEBHOOK_MAX_ATTEMPTS"    env-default:"3"`
}

// BulkConfig bounds bulk decisions.
type BulkConfig struct {
	MaxItems    int `yaml:"max_items"   env:"BULK_MAX_ITEMS"   env-default:"50"`
	Concurrency int `yaml:"concurrency" env:"BULK_CONCURRENCY" env-default:"8"`
}

// SessionConfig configures capture session tokens.
type SessionConfig struct {
	SigningKey string        `yaml:"signing_key" env:"SESSION_SIGNING_KEY" env-default:"dev-secret-key-change-in-production"`
	Issuer     string        `yaml:"issuer"      env:"SESSION_ISSUER"      env-default:"verity"`
	TTL        time.Duration `yaml:"ttl"         env:"SESSION_TTL"         env-default:"1h"`
}

// PolicyConfig controls permission caching.
type PolicyConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" env:"POLICY_CACHE_TTL" env-default:"1m"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
