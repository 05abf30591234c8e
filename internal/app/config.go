package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// StorageDriverMemory хранит сессии в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит сессии в PostgreSQL.
	StorageDriverPostgres = "postgres"

	envPrefix     = "CHECKOUT_"
	envConfigFile = "CHECKOUT_CONFIG_FILE"

	defaultViaCEPURL = "https://viacep.com.br/ws"
)

// Config описывает настройки запуска checkout-service.
type Config struct {
	HTTPAddr    string `koanf:"http_addr"`
	GRPCAddr    string `koanf:"grpc_addr"`
	MetricsAddr string `koanf:"metrics_addr"`

	StorageDriver       string `koanf:"storage_driver"`
	PostgresDSN         string `koanf:"postgres_dsn"`
	PostgresAutoMigrate bool   `koanf:"postgres_auto_migrate"`
	PostgresMaxConns    int    `koanf:"postgres_max_conns"`

	RedisAddr      string        `koanf:"redis_addr"`
	RedisPassword  string        `koanf:"redis_password"`
	PostalCacheTTL time.Duration `koanf:"postal_cache_ttl"`

	// StoreAPIURL пустой: работаем на встроенном демо-магазине.
	StoreAPIURL        string        `koanf:"store_api_url"`
	StoreAPITimeout    time.Duration `koanf:"store_api_timeout"`
	ViaCEPURL          string        `koanf:"viacep_url"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`

	KafkaBrokers       string        `koanf:"kafka_brokers"`
	KafkaTopic         string        `koanf:"kafka_topic"`
	KafkaDLQTopic      string        `koanf:"kafka_dlq_topic"`
	OutboxPollInterval time.Duration `koanf:"outbox_poll_interval"`
	OutboxBatchSize    int           `koanf:"outbox_batch_size"`
	OutboxMaxAttempts  int           `koanf:"outbox_max_attempts"`

	RequestTimeout  time.Duration `koanf:"request_timeout"`
	SubmitTimeout   time.Duration `koanf:"submit_timeout"`
	SessionTTL      time.Duration `koanf:"session_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	LogFile   string `koanf:"log_file"`
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    25,
		PostalCacheTTL:      24 * time.Hour,
		StoreAPITimeout:     10 * time.Second,
		ViaCEPURL:           defaultViaCEPURL,
		BreakerMaxFailures:  5,
		BreakerOpenTimeout:  30 * time.Second,
		KafkaTopic:          "checkout.events",
		KafkaDLQTopic:       "checkout.events.dlq",
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		RequestTimeout:      15 * time.Second,
		SubmitTimeout:       30 * time.Second,
		SessionTTL:          24 * time.Hour,
		CleanupInterval:     10 * time.Minute,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// LoadConfig читает конфигурацию: значения по умолчанию, затем YAML из
// CHECKOUT_CONFIG_FILE (если задан), затем переменные окружения CHECKOUT_*.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(strings.TrimSpace(os.Getenv(envConfigFile)))
}

// LoadConfigFrom: то же, что LoadConfig, но с явным путём к YAML.
func LoadConfigFrom(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// CHECKOUT_STORAGE_DRIVER -> storage_driver, CHECKOUT_A__B -> a.b
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.PostgresDSN = strings.TrimSpace(c.PostgresDSN)
	c.StoreAPIURL = strings.TrimRight(strings.TrimSpace(c.StoreAPIURL), "/")
	c.ViaCEPURL = strings.TrimRight(strings.TrimSpace(c.ViaCEPURL), "/")
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for postgres storage"))
		}
		if c.PostgresMaxConns < 0 {
			errs = append(errs, errors.New("postgres_max_conns must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox_poll_interval must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox_batch_size must be positive"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox_max_attempts must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// kafkaBrokerList разбивает список брокеров через запятую.
func (c Config) kafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
