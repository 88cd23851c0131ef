// Package config loads and validates application configuration from YAML or
// TOML files with environment-variable overrides. It provides typed structs
// for every subsystem (Indexer, Walker, Search, Redis, Kafka, Catalog, etc.).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer IndexerConfig `yaml:"indexer" toml:"indexer"`
	Walker  WalkerConfig  `yaml:"walker" toml:"walker"`
	Search  SearchConfig  `yaml:"search" toml:"search"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Redis   RedisConfig   `yaml:"redis" toml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka" toml:"kafka"`
	Catalog CatalogConfig `yaml:"catalog" toml:"catalog"`
	Watch   WatchConfig   `yaml:"watch" toml:"watch"`
}

// IndexerConfig controls the index writer's memory threshold and the default
// source filter.
type IndexerConfig struct {
	IndexDir       string   `yaml:"indexDir" toml:"index_dir"`
	SourceDir      string   `yaml:"sourceDir" toml:"source_dir"`
	Extensions     []string `yaml:"extensions" toml:"extensions"`
	SegmentMaxSize int64    `yaml:"segmentMaxSize" toml:"segment_max_size"`
}

// WalkerConfig bounds the file-tree reader's fan-out.
type WalkerConfig struct {
	Workers       int   `yaml:"workers" toml:"workers"`
	ParallelDepth int   `yaml:"parallelDepth" toml:"parallel_depth"`
	MaxDepth      int   `yaml:"maxDepth" toml:"max_depth"`
	MaxFileSize   int64 `yaml:"maxFileSize" toml:"max_file_size"`
}

// SearchConfig controls query limits.
type SearchConfig struct {
	DefaultLimit int           `yaml:"defaultLimit" toml:"default_limit"`
	MaxResults   int           `yaml:"maxResults" toml:"max_results"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	Port    int  `yaml:"port" toml:"port"`
}

// RedisConfig holds the optional search-result cache connection.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled"`
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db"`
	PoolSize int           `yaml:"poolSize" toml:"pool_size"`
	CacheTTL time.Duration `yaml:"cacheTTL" toml:"cache_ttl"`
}

// KafkaConfig holds the optional progress-event publisher settings.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled" toml:"enabled"`
	Brokers []string    `yaml:"brokers" toml:"brokers"`
	Topics  KafkaTopics `yaml:"topics" toml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexProgress string `yaml:"indexProgress" toml:"index_progress"`
	IndexComplete string `yaml:"indexComplete" toml:"index_complete"`
}

// CatalogConfig selects the store holding named-index metadata. Driver is
// "sqlite" (Path is the database file) or "postgres" (Postgres is used).
type CatalogConfig struct {
	Enabled  bool           `yaml:"enabled" toml:"enabled"`
	Driver   string         `yaml:"driver" toml:"driver"`
	Path     string         `yaml:"path" toml:"path"`
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host" toml:"host"`
	Port            int           `yaml:"port" toml:"port"`
	Database        string        `yaml:"database" toml:"database"`
	User            string        `yaml:"user" toml:"user"`
	Password        string        `yaml:"password" toml:"password"`
	SSLMode         string        `yaml:"sslMode" toml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"maxOpenConns" toml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"maxIdleConns" toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" toml:"conn_max_lifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// WatchConfig controls the rebuild-on-change watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" toml:"debounce"`
}

// Load reads a YAML or TOML config file (if provided, chosen by extension)
// and applies environment-variable overrides. Missing values keep their
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for indexing a local
// checkout.
func Default() *Config {
	return &Config{
		Indexer: IndexerConfig{
			IndexDir:       ".codesearch",
			Extensions:     []string{".go", ".cs", ".txt", ".md"},
			SegmentMaxSize: 64 * 1024 * 1024,
		},
		Walker: WalkerConfig{
			Workers:       8,
			ParallelDepth: 3,
			MaxDepth:      64,
			MaxFileSize:   32 * 1024 * 1024,
		},
		Search: SearchConfig{
			DefaultLimit: 100,
			MaxResults:   10000,
			Timeout:      30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				IndexProgress: "codesearch.index.progress",
				IndexComplete: "codesearch.index.complete",
			},
		},
		Catalog: CatalogConfig{
			Driver: "sqlite",
			Path:   "codesearch-catalog.db",
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "codesearch",
				User:            "codesearch",
				Password:        "localdev",
				SSLMode:         "disable",
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Walker.Workers < 1 {
		return fmt.Errorf("walker.workers must be >= 1, got %d", c.Walker.Workers)
	}
	if c.Walker.MaxDepth < 1 {
		return fmt.Errorf("walker.maxDepth must be >= 1, got %d", c.Walker.MaxDepth)
	}
	if c.Walker.ParallelDepth < 0 {
		return fmt.Errorf("walker.parallelDepth must be >= 0, got %d", c.Walker.ParallelDepth)
	}
	if c.Indexer.SegmentMaxSize <= 0 {
		return fmt.Errorf("indexer.segmentMaxSize must be > 0")
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.defaultLimit must be >= 1, got %d", c.Search.DefaultLimit)
	}
	switch c.Catalog.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("catalog.driver must be sqlite or postgres, got %q", c.Catalog.Driver)
	}
	return nil
}

// applyEnvOverrides reads CS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CS_INDEX_DIR"); v != "" {
		cfg.Indexer.IndexDir = v
	}
	if v := os.Getenv("CS_SOURCE_DIR"); v != "" {
		cfg.Indexer.SourceDir = v
	}
	if v := os.Getenv("CS_EXTENSIONS"); v != "" {
		cfg.Indexer.Extensions = splitList(v)
	}
	if v := os.Getenv("CS_WALKER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Walker.Workers = n
		}
	}
	if v := os.Getenv("CS_WALKER_PARALLEL_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Walker.ParallelDepth = n
		}
	}
	if v := os.Getenv("CS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
			cfg.Metrics.Enabled = true
		}
	}
	if v := os.Getenv("CS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("CS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("CS_CATALOG_DRIVER"); v != "" {
		cfg.Catalog.Driver = v
		cfg.Catalog.Enabled = true
	}
	if v := os.Getenv("CS_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("CS_POSTGRES_HOST"); v != "" {
		cfg.Catalog.Postgres.Host = v
	}
	if v := os.Getenv("CS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Catalog.Postgres.Port = port
		}
	}
	if v := os.Getenv("CS_POSTGRES_DATABASE"); v != "" {
		cfg.Catalog.Postgres.Database = v
	}
	if v := os.Getenv("CS_POSTGRES_USER"); v != "" {
		cfg.Catalog.Postgres.User = v
	}
	if v := os.Getenv("CS_POSTGRES_PASSWORD"); v != "" {
		cfg.Catalog.Postgres.Password = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
