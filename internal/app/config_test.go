package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.GRPCAddr != ":50051" {
		t.Errorf("expected GRPCAddr :50051, got %s", cfg.GRPCAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if !cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be true")
	}
	if cfg.PostgresMaxConns != 25 {
		t.Errorf("expected PostgresMaxConns 25, got %d", cfg.PostgresMaxConns)
	}
	if cfg.ViaCEPURL != "https://viacep.com.br/ws" {
		t.Errorf("unexpected ViaCEPURL %s", cfg.ViaCEPURL)
	}
	if cfg.KafkaTopic != "checkout.events" {
		t.Errorf("unexpected KafkaTopic %s", cfg.KafkaTopic)
	}
	if cfg.PostalCacheTTL != 24*time.Hour {
		t.Errorf("expected PostalCacheTTL 24h, got %s", cfg.PostalCacheTTL)
	}
	if cfg.BreakerMaxFailures != 5 || cfg.BreakerOpenTimeout != 30*time.Second {
		t.Errorf("unexpected breaker settings: %d %s", cfg.BreakerMaxFailures, cfg.BreakerOpenTimeout)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("expected RequestTimeout 15s, got %s", cfg.RequestTimeout)
	}
	if cfg.StoreAPIURL != "" || cfg.RedisAddr != "" || cfg.KafkaBrokers != "" {
		t.Error("external integrations must be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.StorageDriver = "sqlite" },
			wantErr: "unsupported storage driver",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverPostgres },
			wantErr: "postgres_dsn is required",
		},
		{
			name: "negative pool size",
			mutate: func(c *Config) {
				c.StorageDriver = StorageDriverPostgres
				c.PostgresDSN = "postgres://localhost/checkout"
				c.PostgresMaxConns = -1
			},
			wantErr: "postgres_max_conns",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.OutboxBatchSize = 0 },
			wantErr: "outbox_batch_size",
		},
		{
			name:    "negative poll interval",
			mutate:  func(c *Config) { c.OutboxPollInterval = -time.Second },
			wantErr: "outbox_poll_interval",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.OutboxMaxAttempts = 0 },
			wantErr: "outbox_max_attempts",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: "unsupported log format",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.OutboxBatchSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "postgres_dsn") || !strings.Contains(err.Error(), "outbox_batch_size") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}

func TestLoadConfigFrom_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkout.yaml")
	yaml := `
http_addr: ":18080"
storage_driver: postgres
postgres_dsn: "postgres://file@localhost/checkout"
outbox_batch_size: 42
postal_cache_ttl: 2h
breaker_max_failures: 7
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CHECKOUT_POSTGRES_DSN", " postgres://env@localhost/checkout ")
	t.Setenv("CHECKOUT_STORE_API_URL", "https://store.example.com/api/")
	t.Setenv("CHECKOUT_REQUEST_TIMEOUT", "3s")

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.HTTPAddr != ":18080" {
		t.Errorf("expected HTTPAddr from file, got %s", cfg.HTTPAddr)
	}
	if cfg.StorageDriver != StorageDriverPostgres {
		t.Errorf("expected postgres driver, got %s", cfg.StorageDriver)
	}
	if cfg.PostgresDSN != "postgres://env@localhost/checkout" {
		t.Errorf("env must override file, got %s", cfg.PostgresDSN)
	}
	if cfg.OutboxBatchSize != 42 {
		t.Errorf("expected batch size 42, got %d", cfg.OutboxBatchSize)
	}
	if cfg.PostalCacheTTL != 2*time.Hour {
		t.Errorf("expected PostalCacheTTL 2h, got %s", cfg.PostalCacheTTL)
	}
	if cfg.BreakerMaxFailures != 7 {
		t.Errorf("expected breaker max failures 7, got %d", cfg.BreakerMaxFailures)
	}
	if cfg.StoreAPIURL != "https://store.example.com/api" {
		t.Errorf("expected trimmed store api url, got %s", cfg.StoreAPIURL)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Errorf("expected RequestTimeout 3s, got %s", cfg.RequestTimeout)
	}
	// Ключи, которых нет ни в файле, ни в окружении, остаются по умолчанию.
	if cfg.GRPCAddr != ":50051" || cfg.OutboxMaxAttempts != 3 {
		t.Errorf("defaults lost: grpc=%s attempts=%d", cfg.GRPCAddr, cfg.OutboxMaxAttempts)
	}
}

func TestLoadConfigFrom_InvalidResult(t *testing.T) {
	t.Setenv("CHECKOUT_STORAGE_DRIVER", "PoStGrEs")

	_, err := LoadConfigFrom("")
	if err == nil || !strings.Contains(err.Error(), "postgres_dsn") {
		t.Fatalf("expected postgres_dsn validation error, got %v", err)
	}
}

func TestLoadConfigFrom_MissingFile(t *testing.T) {
	_, err := LoadConfigFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfig_KafkaBrokerList(t *testing.T) {
	cfg := Config{KafkaBrokers: "broker1:9092, broker2:9092,,"}

	brokers := cfg.kafkaBrokerList()
	if len(brokers) != 2 || brokers[0] != "broker1:9092" || brokers[1] != "broker2:9092" {
		t.Fatalf("unexpected brokers: %v", brokers)
	}
	if got := (Config{}).kafkaBrokerList(); len(got) != 0 {
		t.Fatalf("expected no brokers, got %v", got)
	}
}

func TestConfig_Comparison(t *testing.T) {
	cfg1 := DefaultConfig()
	cfg2 := DefaultConfig()

	if cfg1 != cfg2 {
		t.Error("two DefaultConfig instances should be equal")
	}

	cfg2.HTTPAddr = ":8081"
	if cfg1 == cfg2 {
		t.Error("modified config should not be equal to original")
	}
}
