package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides: ROLLUP_STORE__BATCH_SIZE sets
// store.batch_size.
const EnvPrefix = "ROLLUP_"

// Config represents the top-level application config.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Store     StoreConfig     `koanf:"store"`
	Pipelines PipelinesConfig `koanf:"pipelines"`
	Lock      LockConfig      `koanf:"lock"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// AnalyticsConfig selects the query backend pipelines read from.
type AnalyticsConfig struct {
	Backend    string           `koanf:"backend"` // posthog | clickhouse
	Timeout    string           `koanf:"timeout"`
	PostHog    PostHogConfig    `koanf:"posthog"`
	ClickHouse ClickHouseConfig `koanf:"clickhouse"`
}

type PostHogConfig struct {
	Host      string `koanf:"host"`
	ProjectID string `koanf:"project_id"`
	APIKey    string `koanf:"api_key"`
}

type ClickHouseConfig struct {
	Addr     string `koanf:"addr"` // comma separated host:port list
	Database string `koanf:"database"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// Addrs splits Addr into its host:port entries.
func (c ClickHouseConfig) Addrs() []string {
	var out []string
	for _, a := range strings.Split(c.Addr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// StoreConfig controls where aggregates are written and how fast.
type StoreConfig struct {
	Backend           string  `koanf:"backend"` // postgres | memory
	BatchSize         int     `koanf:"batch_size"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

type PipelinesConfig struct {
	ConfigDir       string `koanf:"config_dir"`
	RequireVariants bool   `koanf:"require_variants"`
	Enabled         bool   `koanf:"enabled"` // periodic scheduler
	Interval        string `koanf:"interval"`
}

type LockConfig struct {
	Backend       string `koanf:"backend"` // local | redis
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	TTL           string `koanf:"ttl"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// IntervalDuration returns the parsed scheduler interval. Validate has
// already rejected bad values.
func (c PipelinesConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

func (c LockConfig) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}

func (c AnalyticsConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var p problems

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		p.addf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		p.addf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		p.addf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		p.addf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	switch c.Store.Backend {
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			p.addf("database.dsn is required for store.backend postgres")
		}
		if c.Database.MaxOpenConns <= 0 {
			p.addf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			p.addf("database.max_idle_conns must be > 0")
		}
	case "memory":
	default:
		p.addf("unsupported store.backend %q (must be postgres or memory)", c.Store.Backend)
	}
	if c.Store.BatchSize <= 0 || c.Store.BatchSize > 50 {
		p.addf("store.batch_size must be 1-50, got %d", c.Store.BatchSize)
	}
	if c.Store.RequestsPerSecond < 0 {
		p.addf("store.requests_per_second must be >= 0")
	}

	switch c.Analytics.Backend {
	case "posthog":
		if strings.TrimSpace(c.Analytics.PostHog.Host) == "" {
			p.addf("analytics.posthog.host is required")
		}
		if strings.TrimSpace(c.Analytics.PostHog.ProjectID) == "" {
			p.addf("analytics.posthog.project_id is required")
		}
		if strings.TrimSpace(c.Analytics.PostHog.APIKey) == "" {
			p.addf("analytics.posthog.api_key is required")
		}
	case "clickhouse":
		if len(c.Analytics.ClickHouse.Addrs()) == 0 {
			p.addf("analytics.clickhouse.addr is required")
		}
	case "none":
	default:
		p.addf("unsupported analytics.backend %q (must be posthog, clickhouse or none)", c.Analytics.Backend)
	}
	p.duration("analytics.timeout", c.Analytics.Timeout)

	if strings.TrimSpace(c.Pipelines.ConfigDir) == "" {
		p.addf("pipelines.config_dir is required")
	}
	p.duration("pipelines.interval", c.Pipelines.Interval)

	switch c.Lock.Backend {
	case "local":
	case "redis":
		if strings.TrimSpace(c.Lock.RedisAddr) == "" {
			p.addf("lock.redis_addr is required for lock.backend redis")
		}
	default:
		p.addf("unsupported lock.backend %q (must be local or redis)", c.Lock.Backend)
	}
	p.duration("lock.ttl", c.Lock.TTL)

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		p.addf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	return p.err()
}

// Load parses config from defaults, an optional YAML file and ROLLUP_ env
// vars, then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                   8080,
		"server.host":                   "0.0.0.0",
		"server.max_body_size_mb":       1,
		"server.mode":                   "release",
		"database.dsn":                  "",
		"database.max_open_conns":       10,
		"database.max_idle_conns":       5,
		"database.auto_migrate":         true,
		"analytics.backend":             "posthog",
		"analytics.timeout":             "60s",
		"analytics.posthog.host":        "https://us.posthog.com",
		"store.backend":                 "postgres",
		"store.batch_size":              50,
		"store.requests_per_second":     5.0,
		"store.burst":                   1,
		"pipelines.config_dir":          "./config/pipelines",
		"pipelines.require_variants":    true,
		"pipelines.enabled":             false,
		"pipelines.interval":            "24h",
		"lock.backend":                  "local",
		"lock.ttl":                      "30m",
		"metrics.enabled":               true,
		"metrics.path":                  "/metrics",
		"analytics.clickhouse.database": "default",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
