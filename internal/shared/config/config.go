package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/brandcraft/server/internal/adapter/outbound/aiprovider"
	"github.com/brandcraft/server/internal/domain/batch"
	"github.com/brandcraft/server/internal/domain/fingerprint"
	"github.com/brandcraft/server/internal/domain/ledger"
	"github.com/brandcraft/server/internal/domain/orchestrator"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig        `mapstructure:"server"`
	Log          LogConfig           `mapstructure:"log"`
	Redis        RedisConfig         `mapstructure:"redis"`
	Database     DatabaseConfig      `mapstructure:"database"`
	Stores       StoresConfig        `mapstructure:"stores"`
	HTTPClient   HTTPClientConfig    `mapstructure:"http_client"`
	Generation   aiprovider.Config   `mapstructure:"generation"`
	Ledger       ledger.Config       `mapstructure:"ledger"`
	Cache        fingerprint.Config  `mapstructure:"cache"`
	Batch        batch.Config        `mapstructure:"batch"`
	Orchestrator orchestrator.Config `mapstructure:"orchestrator"`
	Validator    ValidatorConfig     `mapstructure:"validator"`
	Metrics      MetricsConfig       `mapstructure:"metrics"`
	Audit        AuditConfig         `mapstructure:"audit"`
	RateLimit    RateLimitConfig     `mapstructure:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	AdminToken   string        `mapstructure:"admin_token"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	SlowQuery       time.Duration `mapstructure:"slow_query"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// HTTPClientConfig holds the outbound HTTP client pool settings.
type HTTPClientConfig struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
	UserAgent           string        `mapstructure:"user_agent"`
}

// StoresConfig selects a backend per port.
type StoresConfig struct {
	Fingerprint string           `mapstructure:"fingerprint"`
	Balance     string           `mapstructure:"balance"`
	Settlement  string           `mapstructure:"settlement"`
	Audit       string           `mapstructure:"audit"`
	RateLimit   string           `mapstructure:"rate_limit"`
	Retention   time.Duration    `mapstructure:"settlement_retention"`
	Seed        map[string]int64 `mapstructure:"seed_balances"`
}

// ValidatorConfig points at an optional YAML policy file.
type ValidatorConfig struct {
	PolicyFile string `mapstructure:"policy_file"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// AuditConfig holds audit recorder configuration.
type AuditConfig struct {
	BufferSize   int           `mapstructure:"buffer_size"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RateLimitConfig limits dispatch requests per caller.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from the given file, or from the search paths when path is empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/creative")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("CREATIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("CREATIVE_GENERATION_API_KEY"); key != "" {
		cfg.Generation.APIKey = key
	}
	if password := os.Getenv("CREATIVE_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("CREATIVE_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if token := os.Getenv("CREATIVE_ADMIN_TOKEN"); token != "" {
		cfg.Server.AdminToken = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend selections against the configured connections.
func (c *Config) Validate() error {
	for name, backend := range map[string]string{
		"stores.fingerprint": c.Stores.Fingerprint,
		"stores.balance":     c.Stores.Balance,
		"stores.settlement":  c.Stores.Settlement,
		"stores.audit":       c.Stores.Audit,
		"stores.rate_limit":  c.Stores.RateLimit,
	} {
		switch backend {
		case StoreMemory:
		case StoreRedis:
			if c.Redis.Address == "" {
				return fmt.Errorf("%s: redis backend requires redis.address", name)
			}
		case StorePostgres:
			if name != "stores.balance" && name != "stores.audit" {
				return fmt.Errorf("%s: postgres backend is not supported", name)
			}
		default:
			return fmt.Errorf("%s: unknown backend %q", name, backend)
		}
	}
	if c.RateLimit.Enabled && c.RateLimit.Requests <= 0 {
		return fmt.Errorf("rate_limit.requests must be positive when rate limiting is enabled")
	}
	return nil
}

// UsesRedis reports whether any store is backed by Redis.
func (c *Config) UsesRedis() bool {
	return c.Stores.Fingerprint == StoreRedis || c.Stores.Balance == StoreRedis ||
		c.Stores.Settlement == StoreRedis || (c.RateLimit.Enabled && c.Stores.RateLimit == StoreRedis)
}

// UsesPostgres reports whether any store is backed by Postgres.
func (c *Config) UsesPostgres() bool {
	return c.Stores.Balance == StorePostgres || c.Stores.Audit == StorePostgres
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "creative")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.slow_query", 200*time.Millisecond)
	v.SetDefault("database.auto_migrate", true)

	// Store defaults
	v.SetDefault("stores.fingerprint", StoreMemory)
	v.SetDefault("stores.balance", StoreMemory)
	v.SetDefault("stores.settlement", StoreMemory)
	v.SetDefault("stores.audit", StoreMemory)
	v.SetDefault("stores.rate_limit", StoreMemory)
	v.SetDefault("stores.settlement_retention", 30*24*time.Hour)

	// HTTP client defaults
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 20)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.dial_timeout", 30*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 120*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)
	v.SetDefault("http_client.user_agent", "creative-server")

	// Generation defaults
	v.SetDefault("generation.type", aiprovider.TypeEcho)
	v.SetDefault("generation.breaker.failure_threshold", 5)
	v.SetDefault("generation.breaker.timeout", 60*time.Second)
	v.SetDefault("generation.breaker.max_half_open_requests", 1)

	// Ledger defaults
	ledgerDefaults := ledger.DefaultConfig()
	v.SetDefault("ledger.default_rate.input_per_million_usd", ledgerDefaults.DefaultRate.InputPerMillionUSD)
	v.SetDefault("ledger.default_rate.output_per_million_usd", ledgerDefaults.DefaultRate.OutputPerMillionUSD)
	v.SetDefault("ledger.credits_per_usd", ledgerDefaults.CreditsPerUSD)
	v.SetDefault("ledger.cache_hit_fraction", ledgerDefaults.CacheHitFraction)
	v.SetDefault("ledger.quality_discount_rate", ledgerDefaults.QualityDiscountRate)
	v.SetDefault("ledger.quality_discount_min_score", ledgerDefaults.QualityDiscountMinScore)
	for tier, t := range ledgerDefaults.Tiers {
		v.SetDefault("ledger.tiers."+tier.String()+".max_tokens", t.MaxTokens)
		v.SetDefault("ledger.tiers."+tier.String()+".nominal_cost_usd", t.NominalCostUSD)
	}

	// Cache defaults
	v.SetDefault("cache.ttl", fingerprint.DefaultTTL)
	v.SetDefault("cache.max_entries", fingerprint.DefaultConfig().MaxEntries)

	// Batch defaults
	v.SetDefault("batch.enabled", true)
	v.SetDefault("batch.threshold", 5)
	v.SetDefault("batch.concurrency", 3)
	v.SetDefault("batch.max_queue", 1000)
	v.SetDefault("batch.flush_interval", 30*time.Second)

	// Orchestrator defaults
	v.SetDefault("orchestrator.default_timeout", 60*time.Second)
	v.SetDefault("orchestrator.result_ttl", 24*time.Hour)
	v.SetDefault("orchestrator.max_tracked_results", 10000)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "creative")
	v.SetDefault("metrics.path", "/metrics")

	// Audit defaults
	v.SetDefault("audit.buffer_size", 1000)
	v.SetDefault("audit.write_timeout", 5*time.Second)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", time.Minute)
}
