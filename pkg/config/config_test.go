package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jowharshamshiri/GoZaparoo/pkg/core"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if got := time.Duration(cfg.Calls.Timeout); got != 10*time.Second {
		t.Errorf("Calls.Timeout = %v, want 10s", got)
	}
	if cfg.Redis.Channel != "zaparoo:notifications" {
		t.Errorf("Redis.Channel = %q", cfg.Redis.Channel)
	}
	ep := cfg.Endpoint()
	if ep.Host != core.DefaultHost || ep.Port != core.DefaultPort {
		t.Errorf("Endpoint() = %s, want localhost:7497", ep)
	}
}

func TestParseYAML(t *testing.T) {
	data := `
address: 10.0.0.5:8000
connection:
  secure: true
  grace_period: 750ms
  reconnect_base: 1
  reconnect_max: 1m
  max_reconnect_attempts: 5
calls:
  timeout: 30s
  queue_capacity: 10
log:
  level: debug
  format: json
`
	cfg, err := Parse([]byte(data), "yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := time.Duration(cfg.Connection.GracePeriod); got != 750*time.Millisecond {
		t.Errorf("GracePeriod = %v", got)
	}
	if got := time.Duration(cfg.Connection.ReconnectBase); got != time.Second {
		t.Errorf("ReconnectBase = %v, want bare number read as seconds", got)
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "debug" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	// untouched sections keep their defaults
	if cfg.Redis.Burst != Default().Redis.Burst {
		t.Errorf("Redis.Burst = %d, want default", cfg.Redis.Burst)
	}

	ep := cfg.Endpoint()
	if got := ep.URL(); got != "wss://10.0.0.5:8000/api/v0.1" {
		t.Errorf("Endpoint URL = %q", got)
	}

	mc := cfg.ManagerConfig()
	if mc.MaxReconnectAttempts != 5 || mc.ReconnectMax != time.Minute || mc.GracePeriod != 750*time.Millisecond {
		t.Errorf("ManagerConfig() = %+v", mc)
	}
	if mc.ConnectTimeout != core.DefaultManagerConfig().ConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want default", mc.ConnectTimeout)
	}

	cc := cfg.ClientConfig()
	if cc.RequestTimeout != 30*time.Second || cc.QueueCapacity != 10 {
		t.Errorf("ClientConfig() = %+v", cc)
	}
}

func TestParseJSON(t *testing.T) {
	data := `{
		"address": "[::1]:9000",
		"calls": {"timeout": 5, "max_pending": 50},
		"redis": {"addr": "localhost:6379", "channel": "zap", "rate_limit": 5, "burst": 2}
	}`
	cfg, err := Parse([]byte(data), "json")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := time.Duration(cfg.Calls.Timeout); got != 5*time.Second {
		t.Errorf("Calls.Timeout = %v", got)
	}
	if ep := cfg.Endpoint(); ep.Host != "[::1]" || ep.Port != 9000 {
		t.Errorf("Endpoint() = %s", ep)
	}

	fc := cfg.ForwardConfig()
	if fc.Channel != "zap" || fc.RateLimit != 5 || fc.Burst != 2 {
		t.Errorf("ForwardConfig() = %+v", fc)
	}
	if cc := cfg.ClientConfig(); cc.MaxPending != 50 {
		t.Errorf("MaxPending = %d", cc.MaxPending)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	tests := []struct {
		format string
		data   string
	}{
		{"yaml", "address: host\nretries: 3\n"},
		{"json", `{"address": "host", "retries": 3}`},
		{"yaml", "calls:\n  timeot: 5s\n"},
	}
	for _, tt := range tests {
		if _, err := Parse([]byte(tt.data), tt.format); err == nil {
			t.Errorf("Parse(%s, %q) accepted an unknown field", tt.format, tt.data)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		data    string
		wantErr string
	}{
		{"empty", "yaml", "  \n", "cannot be empty"},
		{"format", "toml", "address = 'x'", "unsupported format"},
		{"duration", "yaml", "calls:\n  timeout: soon\n", "invalid duration"},
		{"timeout range", "yaml", "calls:\n  timeout: 1ms\n", "calls.timeout"},
		{"address", "yaml", "address: http://host/\n", "host or host:port"},
		{"negative", "json", `{"calls": {"max_pending": -1}}`, "negative"},
		{"backoff", "yaml", "connection:\n  reconnect_base: 10s\n  reconnect_max: 1s\n", "below reconnect_base"},
		{"log format", "yaml", "log:\n  format: xml\n", "log.format"},
		{"redis channel", "json", `{"redis": {"addr": "localhost:6379", "channel": ""}}`, "redis.channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			if err == nil {
				t.Fatal("Parse() succeeded")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDetectsFormat(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"client.yaml": "address: yaml-host\n",
		"client.yml":  "address: yml-host\n",
		"client.json": `{"address": "json-host"}`,
		"client.conf": `{"address": "sniffed-json"}`,
		"clientrc":    "address: sniffed-yaml\n",
	}
	want := map[string]string{
		"client.yaml": "yaml-host",
		"client.yml":  "yml-host",
		"client.json": "json-host",
		"client.conf": "sniffed-json",
		"clientrc":    "sniffed-yaml",
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Errorf("Load(%s) error = %v", name, err)
			continue
		}
		if cfg.Address != want[name] {
			t.Errorf("Load(%s).Address = %q, want %q", name, cfg.Address, want[name])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("Load(\"\") succeeded")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) succeeded")
	}
}

func TestDurationMarshal(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	data, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"1.5s"` {
		t.Errorf("MarshalJSON() = %s", data)
	}

	var back Duration
	if err := back.UnmarshalJSON(data); err != nil || back != d {
		t.Errorf("UnmarshalJSON(%s) = %v, %v", data, back, err)
	}
}
