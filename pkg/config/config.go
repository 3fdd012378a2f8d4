// Package config loads client settings from YAML or JSON files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jowharshamshiri/GoZaparoo/pkg/api"
	"github.com/jowharshamshiri/GoZaparoo/pkg/core"
	"github.com/jowharshamshiri/GoZaparoo/pkg/forward"
)

// Duration is a time.Duration written as "10s" in config files. Bare
// numbers are seconds.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var seconds float64
	if _, err := fmt.Sscanf(s, "%g", &seconds); err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(seconds * float64(time.Second))
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.set(node.Value)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.set(s)
	}
	return d.set(string(data))
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// ConnectionConfig controls dialing and reconnects
type ConnectionConfig struct {
	Secure               bool     `yaml:"secure" json:"secure"`
	ConnectTimeout       Duration `yaml:"connect_timeout" json:"connect_timeout"`
	GracePeriod          Duration `yaml:"grace_period" json:"grace_period"`
	ReconnectBase        Duration `yaml:"reconnect_base" json:"reconnect_base"`
	ReconnectMax         Duration `yaml:"reconnect_max" json:"reconnect_max"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`
}

// CallConfig controls request handling
type CallConfig struct {
	Timeout       Duration `yaml:"timeout" json:"timeout"`
	MaxPending    int      `yaml:"max_pending" json:"max_pending"`
	QueueCapacity int      `yaml:"queue_capacity" json:"queue_capacity"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig controls the status endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// RedisConfig controls notification forwarding
type RedisConfig struct {
	Addr      string  `yaml:"addr" json:"addr"`
	Password  string  `yaml:"password" json:"password"`
	DB        int     `yaml:"db" json:"db"`
	Channel   string  `yaml:"channel" json:"channel"`
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	Burst     int     `yaml:"burst" json:"burst"`
}

// Config is the complete client configuration
type Config struct {
	Address    string           `yaml:"address" json:"address"`
	Connection ConnectionConfig `yaml:"connection" json:"connection"`
	Calls      CallConfig       `yaml:"calls" json:"calls"`
	Log        LogConfig        `yaml:"log" json:"log"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Redis      RedisConfig      `yaml:"redis" json:"redis"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	manager := core.DefaultManagerConfig()
	client := api.DefaultConfig()
	fwd := forward.DefaultConfig()

	return Config{
		Address: "",
		Connection: ConnectionConfig{
			ConnectTimeout: Duration(manager.ConnectTimeout),
			GracePeriod:    Duration(manager.GracePeriod),
			ReconnectBase:  Duration(manager.ReconnectBase),
			ReconnectMax:   Duration(manager.ReconnectMax),
		},
		Calls: CallConfig{
			Timeout:       Duration(client.RequestTimeout),
			MaxPending:    client.MaxPending,
			QueueCapacity: client.QueueCapacity,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Redis: RedisConfig{
			Channel:   fwd.Channel,
			RateLimit: fwd.RateLimit,
			Burst:     fwd.Burst,
		},
	}
}

// Parse decodes data in the given format ("yaml", "yml" or "json") over the
// defaults. Unknown fields are errors.
func Parse(data []byte, format string) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("config data cannot be empty")
	}

	switch strings.ToLower(format) {
	case "yaml", "yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case "json":
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml)", format)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Load reads a config file. The format follows the extension; files
// without a known extension are parsed as JSON when they start with '{' and
// as YAML otherwise.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config '%s': %w", path, err)
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return Parse(data, "yaml")
	case strings.HasSuffix(lower, ".json"):
		return Parse(data, "json")
	case bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")):
		return Parse(data, "json")
	default:
		return Parse(data, "yaml")
	}
}

// Validate checks values that would otherwise fail later at dial or call
// time
func (c *Config) Validate() error {
	v := core.NewValidator()
	if err := v.ValidateAddress(c.Address); err != nil {
		return err
	}
	if c.Calls.Timeout != 0 {
		if err := v.ValidateTimeout(time.Duration(c.Calls.Timeout)); err != nil {
			return fmt.Errorf("calls.timeout: %w", err)
		}
	}
	if c.Calls.MaxPending < 0 || c.Calls.QueueCapacity < 0 {
		return fmt.Errorf("calls limits cannot be negative")
	}
	if c.Connection.MaxReconnectAttempts < 0 {
		return fmt.Errorf("connection.max_reconnect_attempts cannot be negative")
	}
	if c.Connection.ReconnectMax > 0 && c.Connection.ReconnectMax < c.Connection.ReconnectBase {
		return fmt.Errorf("connection.reconnect_max %v is below reconnect_base %v",
			c.Connection.ReconnectMax, c.Connection.ReconnectBase)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		return fmt.Errorf("redis.channel is required when redis.addr is set")
	}
	return nil
}

// Endpoint resolves the configured address
func (c *Config) Endpoint() core.Endpoint {
	if c.Connection.Secure {
		return core.ResolveSecureAddress(c.Address)
	}
	return core.ResolveAddress(c.Address)
}

// ManagerConfig converts the connection section
func (c *Config) ManagerConfig() core.ManagerConfig {
	cfg := core.DefaultManagerConfig()
	if c.Connection.ConnectTimeout > 0 {
		cfg.ConnectTimeout = time.Duration(c.Connection.ConnectTimeout)
	}
	if c.Connection.GracePeriod > 0 {
		cfg.GracePeriod = time.Duration(c.Connection.GracePeriod)
	}
	if c.Connection.ReconnectBase > 0 {
		cfg.ReconnectBase = time.Duration(c.Connection.ReconnectBase)
	}
	if c.Connection.ReconnectMax > 0 {
		cfg.ReconnectMax = time.Duration(c.Connection.ReconnectMax)
	}
	cfg.MaxReconnectAttempts = c.Connection.MaxReconnectAttempts
	return cfg
}

// ClientConfig converts the calls section
func (c *Config) ClientConfig() api.Config {
	cfg := api.DefaultConfig()
	if c.Calls.Timeout > 0 {
		cfg.RequestTimeout = time.Duration(c.Calls.Timeout)
	}
	if c.Calls.MaxPending > 0 {
		cfg.MaxPending = c.Calls.MaxPending
	}
	cfg.QueueCapacity = c.Calls.QueueCapacity
	return cfg
}

// ForwardConfig converts the redis section
func (c *Config) ForwardConfig() forward.Config {
	cfg := forward.DefaultConfig()
	if c.Redis.Channel != "" {
		cfg.Channel = c.Redis.Channel
	}
	if c.Redis.RateLimit > 0 {
		cfg.RateLimit = c.Redis.RateLimit
	}
	if c.Redis.Burst > 0 {
		cfg.Burst = c.Redis.Burst
	}
	return cfg
}
