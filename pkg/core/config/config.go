package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "TEMPO_CONFIG"

// Config holds the tempoctl configuration. The client library itself reads
// no files; this only feeds the command line tool.
type Config struct {
	Server  ServerConfig  `toml:"server" yaml:"server"`
	Client  ClientConfig  `toml:"client" yaml:"client"`
	Log     LogConfig     `toml:"log" yaml:"log"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// ServerConfig holds the Tempo server endpoint
type ServerConfig struct {
	Address string `toml:"address" yaml:"address"`
	Port    int    `toml:"port" yaml:"port"`
}

// ClientConfig holds transport tuning
type ClientConfig struct {
	MaxMessageSize    int      `toml:"max_message_size" yaml:"max_message_size"`
	KeepaliveInterval Duration `toml:"keepalive_interval" yaml:"keepalive_interval"`
	KeepaliveTimeout  Duration `toml:"keepalive_timeout" yaml:"keepalive_timeout"`
	ConnectTimeout    Duration `toml:"connect_timeout" yaml:"connect_timeout"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds the optional Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" yaml:"listen"`
}

// Duration wraps time.Duration for TOML and YAML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a TOML or YAML file, chosen by extension
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads the file named by TEMPO_CONFIG, then the default
// locations. Without any file it returns the defaults.
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return Load(path)
	}

	defaultPaths := []string{
		"./tempo.toml",
		"./tempo.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/tempo/config.toml"),
	}
	for _, p := range defaultPaths {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return Default(), nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 10001
	}

	if c.Client.MaxMessageSize == 0 {
		c.Client.MaxMessageSize = 1_000_000_000
	}
	if c.Client.KeepaliveInterval.Duration == 0 {
		c.Client.KeepaliveInterval.Duration = 30 * time.Second
	}
	if c.Client.KeepaliveTimeout.Duration == 0 {
		c.Client.KeepaliveTimeout.Duration = 10 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9464"
	}
}

// Validate checks ranges that the transport would otherwise reject late
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Client.MaxMessageSize < 0 || c.Client.MaxMessageSize > 2_147_483_647 {
		return fmt.Errorf("invalid max_message_size %d", c.Client.MaxMessageSize)
	}
	if c.Client.ConnectTimeout.Duration < 0 {
		return fmt.Errorf("invalid connect_timeout %s", c.Client.ConnectTimeout.Duration)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	return nil
}
