// Package config loads the service configuration from a YAML file with
// environment-variable overrides for deployment secrets.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultReadTimeout is the default HTTP server read timeout
	DefaultReadTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default HTTP server write timeout
	DefaultWriteTimeout = 30 * time.Second
	// DefaultFetchTimeout is the default timeout for one remote media download
	DefaultFetchTimeout = 30 * time.Second
	// DefaultMaxFileSize is the default cap on a single downloaded media file
	DefaultMaxFileSize = 64 << 20 // 64 MiB
)

type Config struct {
	Debug    bool           `yaml:"debug"` // Controls log level and format
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Site     SiteConfig     `yaml:"site"`
	Media    MediaConfig    `yaml:"media"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`       // e.g., ":8080"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // Default: 30s
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"` // Dedup tracker and activity feed are skipped when false
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SiteConfig identifies the installation this service fronts. URL is stamped
// into exports as export_site and decides which media URLs count as local.
type SiteConfig struct {
	URL          string   `yaml:"url"`
	AllowedTypes []string `yaml:"allowed_types"` // Content types accepted on import
}

type MediaConfig struct {
	LibraryDir    string        `yaml:"library_dir"`     // Filesystem root for sideloaded files
	BaseURL       string        `yaml:"base_url"`        // Public URL prefix for the library dir
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`   // Per-download timeout
	MaxFileSize   int64         `yaml:"max_file_size"`   // Bytes; larger downloads are rejected
	SkipTLSVerify bool          `yaml:"skip_tls_verify"` // For self-signed source sites
}

type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens"`
}

// TokenConfig maps an API token to a user and its capability set.
type TokenConfig struct {
	Token        string   `yaml:"token"`
	User         string   `yaml:"user"`
	Capabilities []string `yaml:"capabilities"`
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return errors.New("redis.url is required when redis.enabled is true")
	}
	if c.Site.URL == "" {
		return errors.New("site.url is required")
	}
	if _, err := url.Parse(c.Site.URL); err != nil {
		return fmt.Errorf("site.url is not a valid URL: %w", err)
	}
	if c.Media.LibraryDir == "" {
		return errors.New("media.library_dir is required")
	}
	if c.Media.MaxFileSize < 0 {
		return fmt.Errorf("media.max_file_size must not be negative, got %d", c.Media.MaxFileSize)
	}
	for i, token := range c.Auth.Tokens {
		if token.Token == "" {
			return fmt.Errorf("auth.tokens[%d].token is required", i)
		}
		if token.User == "" {
			return fmt.Errorf("auth.tokens[%d].user is required", i)
		}
	}
	return nil
}

// setDefaults sets default values for configuration fields
func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if len(cfg.Site.AllowedTypes) == 0 {
		cfg.Site.AllowedTypes = []string{"post", "page"}
	}
	if cfg.Media.FetchTimeout == 0 {
		cfg.Media.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Media.MaxFileSize == 0 {
		cfg.Media.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Media.BaseURL == "" && cfg.Site.URL != "" {
		cfg.Media.BaseURL = strings.TrimRight(cfg.Site.URL, "/") + "/wp-content/uploads"
	}
}

// overrideWithEnvVars overrides configuration with environment variables
func overrideWithEnvVars(cfg *Config) {
	if dbPassword := os.Getenv("PORTER_DB_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}
	if siteURL := os.Getenv("PORTER_SITE_URL"); siteURL != "" {
		cfg.Site.URL = siteURL
	}
	if appDebug := os.Getenv("APP_DEBUG"); appDebug != "" {
		cfg.Debug = parseBool(appDebug)
	}
	if port := os.Getenv("PORTER_PORT"); port != "" {
		cfg.Server.Address = ":" + port
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
