package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct, loaded from yaml and overlaid
// with FEDBRIDGE_* env vars. Explicit flags win over both; main handles
// that merge.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Security  SecurityConfig  `yaml:"security"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds listen address settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// StorageConfig holds the pebble path.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// BridgeConfig holds bridge-level settings.
type BridgeConfig struct {
	// Host is the public base URL of this bridge, used when building
	// render/proxy links (e.g. "https://bridge.example.com").
	Host string `yaml:"host"`
	// MaxBodySize bounds inbound envelope bodies; humanized ("1MB").
	MaxBodySize string `yaml:"max_body_size"`
	// UserAgent is sent on outbound discovery and delivery requests.
	UserAgent string `yaml:"user_agent"`
}

// SecurityConfig holds rate limit settings for the salmon endpoints.
type SecurityConfig struct {
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// RetentionConfig holds configuration for the automatic purge runner.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	// MaxAge is how long completed relay records are kept ("720h").
	MaxAge string `yaml:"max_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads the yaml file at path (optional; "" skips the file), applies
// env overrides, then defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FEDBRIDGE_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("FEDBRIDGE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("FEDBRIDGE_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("FEDBRIDGE_HOST"); v != "" {
		c.Bridge.Host = v
	}
	if v := os.Getenv("FEDBRIDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "./data"
	}
	if c.Bridge.MaxBodySize == "" {
		c.Bridge.MaxBodySize = "1MB"
	}
	if c.Bridge.Host == "" {
		c.Bridge.Host = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.Retention.Cron == "" {
		c.Retention.Cron = "0 2 * * *"
	}
	if c.Retention.MaxAge == "" {
		c.Retention.MaxAge = "720h"
	}
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// MaxBodyBytes returns the parsed inbound body limit.
func (c *Config) MaxBodyBytes() int64 {
	n, err := humanize.ParseBytes(c.Bridge.MaxBodySize)
	if err != nil || n == 0 {
		return 1 << 20
	}
	return int64(n)
}
