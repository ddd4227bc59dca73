package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads configuration from an optional YAML file and environment variables.
// Priority: ENV > YAML > defaults (via env-default tags).
// The file path comes from CONFIG_PATH; without it only ENV + defaults apply.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate performs cross-field checks after loading.
func (c *Config) Validate() error {
	backends := []string{BackendMemory, BackendPostgres, BackendDynamoDB}
	if !slices.Contains(backends, c.Storage.Backend) {
		return fmt.Errorf("storage.backend must be one of %v (got %q)", backends, c.Storage.Backend)
	}
	idem := []string{BackendMemory, "redis", BackendDynamoDB}
	if !slices.Contains(idem, c.Storage.IdempotencyBackend) {
		return fmt.Errorf("storage.idempotency_backend must be one of %v (got %q)", idem, c.Storage.IdempotencyBackend)
	}
	if c.Storage.Backend == BackendPostgres && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required for the postgres backend")
	}
	if c.Storage.IdempotencyBackend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required for the redis idempotency backend")
	}
	if c.Webhook.Queue == QueueKafka && len(c.Kafka.BrokerList()) == 0 {
		return fmt.Errorf("kafka.brokers is required for the kafka webhook queue")
	}
	if c.Bulk.MaxItems < 1 {
		return fmt.Errorf("bulk.max_items must be > 0 (got %d)", c.Bulk.MaxItems)
	}
	if c.Bulk.Concurrency < 1 {
		return fmt.Errorf("bulk.concurrency must be > 0 (got %d)", c.Bulk.Concurrency)
	}
	if c.Webhook.MaxAttempts < 1 {
		return fmt.Errorf("webhook.max_attempts must be > 0 (got %d)", c.Webhook.MaxAttempts)
	}
	return nil
}

// BrokerList splits the comma-separated broker string.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
