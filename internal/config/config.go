package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"

	QueueBackendRabbitMQ = "rabbitmq"
	QueueBackendMemory   = "memory"

	EAVModeUpsert = "upsert"
	EAVModeAppend = "append"
)

type Config struct {
	Server   ServerConfig
	LogLevel string
	Store    StoreConfig
	Database DatabaseConfig
	Queue    QueueConfig
	RabbitMQ RabbitMQConfig
	Webhook  WebhookConfig
	Sync     SyncConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type StoreConfig struct {
	Backend     string
	AutoMigrate bool
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type QueueConfig struct {
	Backend string
}

type RabbitMQConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	VHost    string
}

// WebhookConfig drives the delivery queue topology and the worker.
type WebhookConfig struct {
	DeliveryExchange    string
	DeliveryQueue       string
	DeliveryRoutingKey  string
	RetryQueue          string
	PrefetchCount       int
	HTTPTimeout         time.Duration
	MaxResponseBodySize int
	MaxAttempts         int
	SweepInterval       time.Duration
	SweepGrace          time.Duration
}

// SyncConfig drives the orchestrator and its scheduler.
type SyncConfig struct {
	Enabled        bool
	RunOnStart     bool
	MaxConcurrency int
	FetchTimeout   time.Duration
	EAVMode        string
}

func Load() (*Config, error) {
	var missing []string

	get := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	config := &Config{
		Server: ServerConfig{
			Port: get("SERVER_PORT"),
			Host: get("SERVER_HOST"),
		},
		LogLevel: stringEnv("LOG_LEVEL", "info"),
		Store: StoreConfig{
			Backend:     strings.ToLower(stringEnv("STORE_BACKEND", StoreBackendPostgres)),
			AutoMigrate: boolEnv("DB_AUTO_MIGRATE", true),
		},
		Queue: QueueConfig{
			Backend: strings.ToLower(stringEnv("QUEUE_BACKEND", QueueBackendRabbitMQ)),
		},
		Webhook: WebhookConfig{
			DeliveryExchange:    stringEnv("WEBHOOK_DELIVERY_EXCHANGE", "webhook.delivery"),
			DeliveryQueue:       stringEnv("WEBHOOK_DELIVERY_QUEUE", "webhook.delivery"),
			DeliveryRoutingKey:  stringEnv("WEBHOOK_DELIVERY_ROUTING_KEY", "delivery"),
			RetryQueue:          stringEnv("WEBHOOK_RETRY_QUEUE", "webhook.delivery.retry"),
			PrefetchCount:       intEnv("WEBHOOK_PREFETCH_COUNT", 10),
			HTTPTimeout:         durationEnv("WEBHOOK_HTTP_TIMEOUT", 10*time.Second),
			MaxResponseBodySize: intEnv("WEBHOOK_MAX_RESPONSE_BODY_SIZE", 64*1024),
			MaxAttempts:         intEnv("WEBHOOK_MAX_ATTEMPTS", 8),
			SweepInterval:       durationEnv("WEBHOOK_SWEEP_INTERVAL", time.Minute),
			SweepGrace:          durationEnv("WEBHOOK_SWEEP_GRACE", 5*time.Minute),
		},
		Sync: SyncConfig{
			Enabled:        boolEnv("SYNC_ENABLED", true),
			RunOnStart:     boolEnv("SYNC_RUN_ON_START", true),
			MaxConcurrency: intEnv("SYNC_MAX_CONCURRENCY", 8),
			FetchTimeout:   durationEnv("SYNC_FETCH_TIMEOUT", 2*time.Minute),
			EAVMode:        strings.ToLower(stringEnv("SYNC_EAV_MODE", EAVModeUpsert)),
		},
	}

	switch config.Store.Backend {
	case StoreBackendPostgres:
		config.Database = DatabaseConfig{
			Host:     get("DB_HOST"),
			Port:     get("DB_PORT"),
			User:     get("DB_USER"),
			Password: get("DB_PASSWORD"),
			DBName:   get("DB_NAME"),
			SSLMode:  get("DB_SSLMODE"),
		}
	case StoreBackendMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND: %s", config.Store.Backend)
	}

	switch config.Queue.Backend {
	case QueueBackendRabbitMQ:
		config.RabbitMQ = RabbitMQConfig{URL: os.Getenv("RABBITMQ_URL")}
		if config.RabbitMQ.URL == "" {
			config.RabbitMQ.Host = get("RABBITMQ_HOST")
			config.RabbitMQ.Port = get("RABBITMQ_PORT")
			config.RabbitMQ.User = get("RABBITMQ_USER")
			config.RabbitMQ.Password = get("RABBITMQ_PASSWORD")
			config.RabbitMQ.VHost = get("RABBITMQ_VHOST")
		}
	case QueueBackendMemory:
	default:
		return nil, fmt.Errorf("unsupported QUEUE_BACKEND: %s", config.Queue.Backend)
	}

	if config.Sync.EAVMode != EAVModeUpsert && config.Sync.EAVMode != EAVModeAppend {
		return nil, fmt.Errorf("unsupported SYNC_EAV_MODE: %s", config.Sync.EAVMode)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return config, nil
}

// ConnectionString returns a DSN string for GORM
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

// MigrationURL returns the postgres:// URL form expected by golang-migrate
func (c *DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s%s",
		c.User, c.Password, c.Host, c.Port, c.VHost)
}

func stringEnv(name, fallback string) string {
	if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
		return raw
	}
	return fallback
}

func intEnv(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func boolEnv(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
