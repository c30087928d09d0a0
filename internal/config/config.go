// Package config loads the server configuration from a YAML file and
// REGISTRY_CACHE_* environment variables.
package config

import (
	"fmt"
	"time"
)

// Backends accepted by Store.Backend.
const (
	BackendRedis   = "redis"
	BackendLevelDB = "leveldb"
)

// Config is the complete server configuration.
type Config struct {
	Listen string `mapstructure:"listen"`

	// Tenant scopes distribution lookups.
	Tenant string `mapstructure:"tenant"`

	Store    StoreConfig    `mapstructure:"store"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Content  ContentConfig  `mapstructure:"content"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StoreConfig selects and configures the cache store.
type StoreConfig struct {
	Backend string        `mapstructure:"backend"`
	Redis   RedisConfig   `mapstructure:"redis"`
	LevelDB LevelDBConfig `mapstructure:"leveldb"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LevelDBConfig configures the embedded store.
type LevelDBConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig configures the response caches.
type CacheConfig struct {
	// ExpiresTTL is the lifetime of new entries. "none" never expires.
	ExpiresTTL TTL `mapstructure:"expires_ttl"`
}

// ContentConfig locates the served content.
type ContentConfig struct {
	// Root holds manifests and blobs as <base path>/manifests/<ref> and
	// <base path>/blobs/<digest>.
	Root string `mapstructure:"root"`

	// CatalogFile is the YAML distribution catalog.
	CatalogFile string `mapstructure:"catalog_file"`

	// BlobRedirect, when set, redirects blob requests to this base URL
	// instead of serving the file.
	BlobRedirect string `mapstructure:"blob_redirect"`
}

// UpstreamConfig configures pull-through fetches.
type UpstreamConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Pretty     bool   `mapstructure:"pretty"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return newFieldError("listen", "must not be empty")
	}
	switch c.Store.Backend {
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return newFieldError("store.redis.addr", "must not be empty")
		}
	case BackendLevelDB:
		if c.Store.LevelDB.Path == "" {
			return newFieldError("store.leveldb.path", "must not be empty")
		}
	default:
		return newFieldError("store.backend", fmt.Sprintf("unknown backend %q", c.Store.Backend))
	}
	if c.Content.Root == "" {
		return newFieldError("content.root", "must not be empty")
	}
	if c.Upstream.MaxRetries < 0 {
		return newFieldError("upstream.max_retries", "must not be negative")
	}
	return nil
}

// FieldError names the offending configuration key.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}
