package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
database:
  driver: sqlite
  dsn: /tmp/cms.db
index:
  url: http://localhost:9070
`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, IndexBackendFacade, cfg.Index.Backend)
	assert.Equal(t, "govdata-cms-de", cfg.Index.IndexName)
	assert.Equal(t, "1", cfg.Index.Mandant)
	assert.Equal(t, 10*time.Second, cfg.Index.Timeout)
	assert.Equal(t, PendingBackendMemory, cfg.Pending.Backend)
	assert.Equal(t, "searchsync:pending-deletions", cfg.Pending.RedisKey)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, map[int]string{1: "article", 137: "blog"}, cfg.PageTypes)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_ReadsAllSections(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
log_level: debug
timezone: Europe/Berlin
database:
  driver: mysql
  dsn: "typo3:secret@tcp(db:3306)/typo3"
index:
  backend: elasticsearch
  url: http://es:9200
  username: kermit
  password: frog
  index_name: cms
  timeout: 3s
pending:
  backend: redis
  redis_addr: redis:6379
  redis_db: 2
server:
  addr: ":9000"
reindex:
  rate_per_second: 5
  report_dir: /var/log/searchsync
  site_url: https://www.govdata.de
page_types:
  1: article
  4: news
`))
	require.NoError(t, err)

	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, IndexBackendElasticsearch, cfg.Index.Backend)
	assert.Equal(t, "kermit", cfg.Index.Username)
	assert.Equal(t, 3*time.Second, cfg.Index.Timeout)
	assert.Equal(t, "redis:6379", cfg.Pending.RedisAddr)
	assert.Equal(t, 2, cfg.Pending.RedisDB)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.InDelta(t, 5.0, cfg.Reindex.RatePerSecond, 0)
	assert.Equal(t, "/var/log/searchsync", cfg.Reindex.ReportDir)
	assert.Equal(t, "https://www.govdata.de", cfg.Reindex.SiteURL)
	assert.Equal(t, map[int]string{1: "article", 4: "news"}, cfg.PageTypes)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SEARCHSYNC_INDEX_URL", "http://override:9070")
	t.Setenv("SEARCHSYNC_INDEX_TIMEOUT", "250ms")
	t.Setenv("SEARCHSYNC_REDIS_DB", "7")
	t.Setenv("SEARCHSYNC_REINDEX_RATE", "2.5")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://override:9070", cfg.Index.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Index.Timeout)
	assert.Equal(t, 7, cfg.Pending.RedisDB)
	assert.InDelta(t, 2.5, cfg.Reindex.RatePerSecond, 0)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{
			Database: DatabaseConfig{Driver: DriverPostgres, DSN: "postgres://localhost/cms"},
			Index:    IndexConfig{URL: "http://localhost:9070"},
		}
		c.SetDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing driver", func(c *Config) { c.Database.Driver = "" }, "database.driver is required"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "not supported"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"missing index url", func(c *Config) { c.Index.URL = "" }, "index.url"},
		{"sqlite index backend", func(c *Config) { c.Index.Backend = IndexBackendSQLite; c.Index.URL = "/var/lib/searchsync/index.db" }, ""},
		{"unknown index backend", func(c *Config) { c.Index.Backend = "solr" }, "index.backend"},
		{"redis without addr", func(c *Config) { c.Pending.Backend = PendingBackendRedis }, "redis_addr"},
		{"unknown pending backend", func(c *Config) { c.Pending.Backend = "etcd" }, "pending.backend"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"empty label", func(c *Config) { c.PageTypes = map[int]string{1: " "} }, "empty label"},
		{"negative rate", func(c *Config) { c.Reindex.RatePerSecond = -1 }, "rate_per_second"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
