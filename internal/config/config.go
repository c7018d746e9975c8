// Package config loads hot's configuration from defaults, an optional YAML
// file and HOT_-prefixed environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/pbaille/hot/internal/logging"
)

const (
	envPrefix         = "HOT_"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Library backends
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the full application configuration
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Library  LibraryConfig  `koanf:"library"`
	Engine   EngineConfig   `koanf:"engine"`
	Server   ServerConfig   `koanf:"server"`
	Logging  logging.Config `koanf:"logging"`
}

// DatabaseConfig locates the SQLite database holding items and activity
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// LibraryConfig selects where the knowledge base lives
type LibraryConfig struct {
	Backend       string `koanf:"backend"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	KeyPrefix     string `koanf:"key_prefix"`
}

// EngineConfig tunes the suggestion engine
type EngineConfig struct {
	LookupTimeout time.Duration `koanf:"lookup_timeout"`
	LexiconPath   string        `koanf:"lexicon_path"`
	Concurrency   int           `koanf:"concurrency"`
	// AutoThreshold is the minimum score for AutoClassify to accept a suggestion
	AutoThreshold float64 `koanf:"auto_threshold"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Default returns the built-in configuration
func Default() *Config {
	dbPath := "hot.db"
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".hot", "hot.db")
	}
	return &Config{
		Database: DatabaseConfig{Path: dbPath},
		Library: LibraryConfig{
			Backend:   BackendSQLite,
			RedisAddr: "localhost:6379",
			KeyPrefix: "hot",
		},
		Engine: EngineConfig{
			LookupTimeout: 2 * time.Second,
			Concurrency:   8,
			AutoThreshold: 0.9,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: logging.Config{Level: "info", Format: "console"},
	}
}

// Load reads configuration. An empty path skips the file; a missing file
// at an explicit path is an error.
//
// Environment variables map by splitting on the first underscore after the
// prefix: HOT_SERVER_PORT -> server.port, HOT_LIBRARY_REDIS_ADDR -> library.redis_addr.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch c.Library.Backend {
	case BackendSQLite:
	case BackendRedis:
		if c.Library.RedisAddr == "" {
			return errors.New("redis address required for redis backend")
		}
	default:
		return fmt.Errorf("unknown library backend %q (want sqlite or redis)", c.Library.Backend)
	}

	if c.Engine.LookupTimeout <= 0 {
		return errors.New("engine lookup timeout must be positive")
	}
	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("engine concurrency must be at least 1, got %d", c.Engine.Concurrency)
	}
	if c.Engine.AutoThreshold < 0 || c.Engine.AutoThreshold > 1 {
		return fmt.Errorf("engine auto threshold must be within [0, 1], got %v", c.Engine.AutoThreshold)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	return c.Logging.Validate()
}
