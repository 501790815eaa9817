// Package config assembles the SDK's runtime configuration from
// environment variables, with an optional YAML file overlay for values
// operators would rather keep out of the process environment (queue
// names, credential service coordinates). Environment variables always
// take precedence over the YAML file, matching the teacher's
// env-first/defaults-second layering.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every externally-configurable value the SDK's components
// need at startup.
type Config struct {
	// AMQP holds the broker connection and queue-naming configuration
	// (spec.md §6).
	AMQP AMQPConfig `yaml:"amqp"`

	// Credential holds the Credential Service Client's configuration
	// (spec.md §4.8).
	Credential CredentialConfig `yaml:"credential"`

	// Redis holds the optional shared credential cache's configuration.
	// URL empty means the shared cache is disabled.
	Redis RedisConfig `yaml:"redis"`

	// UsageDBPath is the SQLite file backing the usage ledger.
	UsageDBPath string `yaml:"usage_db_path"`

	// SinkCapacity bounds the media pipeline's result channel (§5).
	SinkCapacity int `yaml:"sink_capacity"`

	// Debug is loaded from the YAML file, MEDIAWORKER_DEBUG or --debug. No
	// SDK component reads it; logging output is the same either way.
	Debug bool `yaml:"debug"`
}

// AMQPConfig mirrors exchange.RabbitConfig; config does not import
// exchange to avoid config depending on every leaf package it configures,
// so cmd/workersdk copies these fields into an exchange.RabbitConfig at
// wiring time.
type AMQPConfig struct {
	URL             string        `yaml:"url"`
	SourceQueue     string        `yaml:"source_queue"`
	CompletedQueue  string        `yaml:"completed_queue"`
	ErrorQueue      string        `yaml:"error_queue"`
	DeathCountLimit int           `yaml:"death_count_limit"`
	PublishRetries  int           `yaml:"publish_retries"`
	PublishBackoff  time.Duration `yaml:"publish_backoff"`
}

// CredentialConfig mirrors credential.Config for the same reason.
type CredentialConfig struct {
	BaseURL        string        `yaml:"base_url"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	Timeout        time.Duration `yaml:"timeout"`
	SharedCacheTTL time.Duration `yaml:"shared_cache_ttl"`
}

// RedisConfig mirrors internal/redis.ClientConfig.
type RedisConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Load builds a Config by starting from defaults, overlaying a YAML file
// at yamlPath if it exists, then overlaying environment variables, which
// always win. Pass an empty yamlPath to skip the file overlay entirely.
func Load(yamlPath string) (Config, error) {
	cfg := defaults()

	if yamlPath != "" {
		if err := overlayYAML(&cfg, yamlPath); err != nil {
			return Config{}, err
		}
	}

	overlayEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		AMQP: AMQPConfig{
			SourceQueue:     "job_messages",
			CompletedQueue:  "job_completed",
			ErrorQueue:      "job_error",
			DeathCountLimit: 10,
			PublishRetries:  3,
			PublishBackoff:  500 * time.Millisecond,
		},
		Credential: CredentialConfig{
			Timeout:        10 * time.Second,
			SharedCacheTTL: 5 * time.Minute,
		},
		Redis: RedisConfig{
			KeyPrefix: "mediaworker:credential:",
		},
		UsageDBPath:  "mediaworker_usage.db",
		SinkCapacity: 16,
	}
}

func overlayYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// overlayEnv applies the SDK's MEDIAWORKER_* environment variables on top
// of cfg, mutating in place. Each value is only overridden when its
// variable is actually set, so unset variables never clobber a YAML
// overlay's value.
func overlayEnv(cfg *Config) {
	cfg.AMQP.URL = getEnvOrDefault("MEDIAWORKER_AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.SourceQueue = getEnvOrDefault("MEDIAWORKER_SOURCE_QUEUE", cfg.AMQP.SourceQueue)
	cfg.AMQP.CompletedQueue = getEnvOrDefault("MEDIAWORKER_COMPLETED_QUEUE", cfg.AMQP.CompletedQueue)
	cfg.AMQP.ErrorQueue = getEnvOrDefault("MEDIAWORKER_ERROR_QUEUE", cfg.AMQP.ErrorQueue)
	cfg.AMQP.DeathCountLimit = getEnvInt("MEDIAWORKER_DEATH_COUNT_LIMIT", cfg.AMQP.DeathCountLimit)
	cfg.AMQP.PublishRetries = getEnvInt("MEDIAWORKER_PUBLISH_RETRIES", cfg.AMQP.PublishRetries)
	cfg.AMQP.PublishBackoff = getEnvDuration("MEDIAWORKER_PUBLISH_BACKOFF", cfg.AMQP.PublishBackoff)

	cfg.Credential.BaseURL = getEnvOrDefault("MEDIAWORKER_CREDENTIAL_BASE_URL", cfg.Credential.BaseURL)
	cfg.Credential.User = getEnvOrDefault("MEDIAWORKER_CREDENTIAL_USER", cfg.Credential.User)
	cfg.Credential.Password = getEnvOrDefault("MEDIAWORKER_CREDENTIAL_PASSWORD", cfg.Credential.Password)
	cfg.Credential.Timeout = getEnvDuration("MEDIAWORKER_CREDENTIAL_TIMEOUT", cfg.Credential.Timeout)
	cfg.Credential.SharedCacheTTL = getEnvDuration("MEDIAWORKER_CREDENTIAL_CACHE_TTL", cfg.Credential.SharedCacheTTL)

	cfg.Redis.URL = getEnvOrDefault("MEDIAWORKER_REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Password = getEnvOrDefault("MEDIAWORKER_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.KeyPrefix = getEnvOrDefault("MEDIAWORKER_REDIS_KEY_PREFIX", cfg.Redis.KeyPrefix)

	cfg.UsageDBPath = getEnvOrDefault("MEDIAWORKER_USAGE_DB_PATH", cfg.UsageDBPath)
	cfg.SinkCapacity = getEnvInt("MEDIAWORKER_SINK_CAPACITY", cfg.SinkCapacity)
	cfg.Debug = getEnvBool("MEDIAWORKER_DEBUG", cfg.Debug)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
