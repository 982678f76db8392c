// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Catalog, Store, Postgres, Redis, Kafka, S3, Search, etc.).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// CATALOG_SERVER_PORT or CATALOG_SYNC_MANIFEST_URL.
const EnvPrefix = "CATALOG_"

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Catalog   CatalogConfig   `yaml:"catalog" envPrefix:"SYNC_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	Postgres  PostgresConfig  `yaml:"postgres" envPrefix:"POSTGRES_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Kafka     KafkaConfig     `yaml:"kafka" envPrefix:"KAFKA_"`
	S3        S3Config        `yaml:"s3" envPrefix:"S3_"`
	Search    SearchConfig    `yaml:"search" envPrefix:"SEARCH_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOGGING_"`
	Tracing   TracingConfig   `yaml:"tracing" envPrefix:"TRACING_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	Analytics AnalyticsConfig `yaml:"analytics" envPrefix:"ANALYTICS_"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"readTimeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"requestTimeout" env:"REQUEST_TIMEOUT"`
	RateLimitRPS    float64       `yaml:"rateLimitRps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rateLimitBurst" env:"RATE_LIMIT_BURST"`
}

// CatalogConfig controls where the snapshot is published and how it is
// synchronised.
type CatalogConfig struct {
	ManifestURL  string        `yaml:"manifestUrl" env:"MANIFEST_URL"`
	CacheKey     string        `yaml:"cacheKey" env:"CACHE_KEY"`
	FetchTimeout time.Duration `yaml:"fetchTimeout" env:"FETCH_TIMEOUT"`
	// FetchRPS bounds outbound requests to the CDN; 0 disables the limit.
	FetchRPS            float64       `yaml:"fetchRps" env:"FETCH_RPS"`
	UserAgent           string        `yaml:"userAgent" env:"USER_AGENT"`
	InitialSyncAttempts int           `yaml:"initialSyncAttempts" env:"INITIAL_SYNC_ATTEMPTS"`
	RefreshFailureLimit int           `yaml:"refreshFailureLimit" env:"REFRESH_FAILURE_LIMIT"`
	RefreshCooldown     time.Duration `yaml:"refreshCooldown" env:"REFRESH_COOLDOWN"`
}

// StoreConfig selects the durable cache backend: file, redis, postgres,
// sqlite or memory.
type StoreConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"`
	Dir     string `yaml:"dir" env:"DIR"`
	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `yaml:"sqlitePath" env:"SQLITE_PATH"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	Database        string        `yaml:"database" env:"DATABASE"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	SSLMode         string        `yaml:"sslMode" env:"SSLMODE"`
	MaxOpenConns    int           `yaml:"maxOpenConns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"maxIdleConns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" env:"CONN_MAX_LIFETIME"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	PoolSize int           `yaml:"poolSize" env:"POOL_SIZE"`
	CacheTTL time.Duration `yaml:"cacheTTL" env:"CACHE_TTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled" env:"ENABLED"`
	Brokers       []string    `yaml:"brokers" env:"BROKERS" envSeparator:","`
	ConsumerGroup string      `yaml:"consumerGroup" env:"CONSUMER_GROUP"`
	Topics        KafkaTopics `yaml:"topics" envPrefix:"TOPIC_"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CatalogPublished string `yaml:"catalogPublished" env:"CATALOG_PUBLISHED"`
	AnalyticsEvents  string `yaml:"analyticsEvents" env:"ANALYTICS_EVENTS"`
}

// S3Config configures the object-storage fetcher used for s3:// artifact URLs.
type S3Config struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED"`
	Region       string `yaml:"region" env:"REGION"`
	Endpoint     string `yaml:"endpoint" env:"ENDPOINT"`
	UsePathStyle bool   `yaml:"usePathStyle" env:"USE_PATH_STYLE"`
}

// SearchConfig controls query result limits and result caching.
type SearchConfig struct {
	MaxResults   int  `yaml:"maxResults" env:"MAX_RESULTS"`
	DefaultLimit int  `yaml:"defaultLimit" env:"DEFAULT_LIMIT"`
	CacheResults bool `yaml:"cacheResults" env:"CACHE_RESULTS"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// TracingConfig controls OpenTelemetry tracing (sample rate, endpoint).
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" env:"ENABLED"`
	Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
	SampleRate  float64 `yaml:"sampleRate" env:"SAMPLE_RATE"`
	ServiceName string  `yaml:"serviceName" env:"SERVICE_NAME"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	Port    int  `yaml:"port" env:"PORT"`
}

// AnalyticsConfig controls search-event collection. Events are published
// only when Kafka is enabled.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled" env:"ENABLED"`
	BufferSize       int           `yaml:"bufferSize" env:"BUFFER_SIZE"`
	BatchSize        int           `yaml:"batchSize" env:"BATCH_SIZE"`
	FlushInterval    time.Duration `yaml:"flushInterval" env:"FLUSH_INTERVAL"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval" env:"SNAPSHOT_INTERVAL"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "file", "redis", "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults <= 0 {
		return fmt.Errorf("search limits must be positive")
	}
	if c.Search.DefaultLimit > c.Search.MaxResults {
		return fmt.Errorf("search.defaultLimit %d exceeds search.maxResults %d",
			c.Search.DefaultLimit, c.Search.MaxResults)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			RateLimitRPS:    50,
			RateLimitBurst:  100,
		},
		Catalog: CatalogConfig{
			ManifestURL:         "http://localhost:9000/catalog/manifest.json",
			CacheKey:            "card-catalog",
			FetchTimeout:        60 * time.Second,
			FetchRPS:            5,
			UserAgent:           "card-catalog-index/1.0",
			InitialSyncAttempts: 3,
			RefreshFailureLimit: 3,
			RefreshCooldown:     5 * time.Minute,
		},
		Store: StoreConfig{
			Backend:    "file",
			Dir:        "data/cache",
			SQLitePath: "data/catalog.db",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "cardcatalog",
			User:            "cardcatalog",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "card-catalog-group",
			Topics: KafkaTopics{
				CatalogPublished: "catalog-published",
				AnalyticsEvents:  "catalog-search-events",
			},
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Search: SearchConfig{
			MaxResults:   500,
			DefaultLimit: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate:  1.0,
			ServiceName: "catalogd",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Analytics: AnalyticsConfig{
			Enabled:          true,
			BufferSize:       10000,
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
		},
	}
}
