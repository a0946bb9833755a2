package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "/etc/searchsync/config.yml"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	IndexBackendFacade        = "facade"
	IndexBackendElasticsearch = "elasticsearch"
	IndexBackendSQLite        = "sqlite"

	PendingBackendMemory = "memory"
	PendingBackendRedis  = "redis"
)

// Config is the YAML schema shared by the hook receiver and the reindex command.
type Config struct {
	LogLevel  string         `yaml:"log_level" env:"SEARCHSYNC_LOG_LEVEL"`
	Timezone  string         `yaml:"timezone" env:"SEARCHSYNC_TIMEZONE"`
	Database  DatabaseConfig `yaml:"database"`
	Index     IndexConfig    `yaml:"index"`
	Pending   PendingConfig  `yaml:"pending"`
	Server    ServerConfig   `yaml:"server"`
	Reindex   ReindexConfig  `yaml:"reindex"`
	PageTypes map[int]string `yaml:"page_types"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"SEARCHSYNC_DB_DRIVER"`
	DSN    string `yaml:"dsn" env:"SEARCHSYNC_DB_DSN"`
}

type IndexConfig struct {
	Backend   string        `yaml:"backend" env:"SEARCHSYNC_INDEX_BACKEND"`
	URL       string        `yaml:"url" env:"SEARCHSYNC_INDEX_URL"`
	Username  string        `yaml:"username" env:"SEARCHSYNC_INDEX_USERNAME"`
	Password  string        `yaml:"password" env:"SEARCHSYNC_INDEX_PASSWORD"`
	IndexName string        `yaml:"index_name" env:"SEARCHSYNC_INDEX_NAME"`
	Mandant   string        `yaml:"mandant" env:"SEARCHSYNC_INDEX_MANDANT"`
	Timeout   time.Duration `yaml:"timeout" env:"SEARCHSYNC_INDEX_TIMEOUT"`
}

type PendingConfig struct {
	Backend       string `yaml:"backend" env:"SEARCHSYNC_PENDING_BACKEND"`
	RedisAddr     string `yaml:"redis_addr" env:"SEARCHSYNC_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"SEARCHSYNC_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"SEARCHSYNC_REDIS_DB"`
	RedisKey      string `yaml:"redis_key" env:"SEARCHSYNC_REDIS_KEY"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" env:"SEARCHSYNC_ADDR"`
}

type ReindexConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second" env:"SEARCHSYNC_REINDEX_RATE"`
	ReportDir     string  `yaml:"report_dir" env:"SEARCHSYNC_REINDEX_REPORT_DIR"`
	// SiteURL enables a sitemap of the indexed pages in the report directory.
	SiteURL string `yaml:"site_url" env:"SEARCHSYNC_SITE_URL"`
}

// DefaultPageTypes maps the indexable page doktypes to their index type labels.
func DefaultPageTypes() map[int]string {
	return map[int]string{1: "article", 137: "blog"}
}

func DefaultPath() string {
	if path := os.Getenv("SEARCHSYNC_CONFIG_FILE"); path != "" {
		return path
	}
	return defaultConfigPath
}

// Load reads the YAML file at path, loads .env files, applies defaults and
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.SetDefaults()
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Index.Backend == "" {
		c.Index.Backend = IndexBackendFacade
	}
	if c.Index.IndexName == "" {
		c.Index.IndexName = "govdata-cms-de"
	}
	if c.Index.Mandant == "" {
		c.Index.Mandant = "1"
	}
	if c.Index.Timeout == 0 {
		c.Index.Timeout = 10 * time.Second
	}
	if c.Pending.Backend == "" {
		c.Pending.Backend = PendingBackendMemory
	}
	if c.Pending.RedisKey == "" {
		c.Pending.RedisKey = "searchsync:pending-deletions"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if len(c.PageTypes) == 0 {
		c.PageTypes = DefaultPageTypes()
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	case "":
		return errors.New("config database.driver is required")
	default:
		return fmt.Errorf("config database.driver %q is not supported", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("config database.dsn is required")
	}
	if c.Index.URL == "" {
		return errors.New("config index.url is required")
	}
	switch c.Index.Backend {
	case IndexBackendFacade, IndexBackendElasticsearch, IndexBackendSQLite:
	default:
		return fmt.Errorf("config index.backend %q is not supported", c.Index.Backend)
	}
	switch c.Pending.Backend {
	case PendingBackendMemory:
	case PendingBackendRedis:
		if c.Pending.RedisAddr == "" {
			return errors.New("config pending.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config pending.backend %q is not supported", c.Pending.Backend)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config timezone: %w", err)
	}
	for doktype, label := range c.PageTypes {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("config page_types: empty label for doktype %d", doktype)
		}
	}
	if c.Reindex.RatePerSecond < 0 {
		return errors.New("config reindex.rate_per_second must not be negative")
	}
	return nil
}

// Location returns the time zone index timestamps are rendered in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
