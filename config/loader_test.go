package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
	if cfg.Cache.Backend != "memory" || cfg.Events.BufferSize == 0 || cfg.Scheduler.OverdueSweep == "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestSetDefaultsDurationsUseSecondGranularity(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("failed to unmarshal defaults: %v", err)
	}
	if cfg.Service.OperationTimeout < time.Second {
		t.Fatalf("expected operation timeout of at least 1s, got %v", cfg.Service.OperationTimeout)
	}
	if cfg.Cache.DefaultTTL < time.Second {
		t.Fatalf("expected cache ttl of at least 1s, got %v", cfg.Cache.DefaultTTL)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, path, `{
		"database": {"path": "/tmp/tasks.db", "log_level": "warn"},
		"cache": {"backend": "redis", "redis": {"addr": "cache:6379", "db": 2}},
		"events": {"buffer_size": 16},
		"service": {"operation_timeout": "3s"},
		"log": {"level": "debug"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/tasks.db" || cfg.Database.LogLevel != "warn" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.Redis.Addr != "cache:6379" || cfg.Cache.Redis.DB != 2 {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	// untouched keys keep their defaults
	if cfg.Cache.Redis.KeyPrefix != "taskhub:" || cfg.Events.SubscriberBuffer != 64 {
		t.Fatalf("defaults lost: %+v %+v", cfg.Cache.Redis, cfg.Events)
	}
	if cfg.Service.OperationTimeout != 3*time.Second {
		t.Fatalf("operation_timeout = %v, want 3s", cfg.Service.OperationTimeout)
	}
	if Get() != cfg {
		t.Fatalf("Get() did not return the loaded config")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, path, `{"cache": {"backend": "memory"}}`)
	t.Setenv("TASKHUB_CACHE_BACKEND", "none")
	t.Setenv("TASKHUB_LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cache.Backend != "none" || cfg.Log.Level != "error" {
		t.Fatalf("env overrides not applied: backend=%s level=%s", cfg.Cache.Backend, cfg.Log.Level)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, path, `{"cache": `)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected malformed config to fail")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Cache.Backend = "none"
	cfg.Scheduler.SweepLimit = 7

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Cache.Backend != "none" || loaded.Scheduler.SweepLimit != 7 {
		t.Fatalf("round trip lost values: %+v", loaded)
	}
	if loaded.Cache.DefaultTTL != cfg.Cache.DefaultTTL {
		t.Fatalf("default_ttl = %v, want %v", loaded.Cache.DefaultTTL, cfg.Cache.DefaultTTL)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty database path", mutate: func(c *Config) { c.Database.Path = " " }},
		{name: "unknown gorm log level", mutate: func(c *Config) { c.Database.LogLevel = "loud" }},
		{name: "unknown cache backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }},
		{name: "redis without addr", mutate: func(c *Config) { c.Cache.Backend = "redis"; c.Cache.Redis.Addr = "" }},
		{name: "zero max entries", mutate: func(c *Config) { c.Cache.MaxEntries = 0 }},
		{name: "zero retries", mutate: func(c *Config) { c.Cache.Retry.MaxTries = 0 }},
		{name: "zero event buffer", mutate: func(c *Config) { c.Events.BufferSize = 0 }},
		{name: "bad sweep spec", mutate: func(c *Config) { c.Scheduler.OverdueSweep = "hourly" }},
		{name: "zero timeout", mutate: func(c *Config) { c.Service.OperationTimeout = 0 }},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "trace" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.Scheduler.Enabled = false
	cfg.Scheduler.OverdueSweep = "hourly"
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled scheduler should skip spec validation, got: %v", err)
	}
}

func TestExpandUserPath(t *testing.T) {
	home, err := ResolveUserHomeDir()
	if err != nil {
		t.Fatalf("failed to resolve home dir: %v", err)
	}
	if got := ExpandUserPath("~/tasks.db"); got != filepath.Join(home, "tasks.db") {
		t.Fatalf("ExpandUserPath() = %q", got)
	}
	if got := ExpandUserPath("/abs/tasks.db"); got != "/abs/tasks.db" {
		t.Fatalf("absolute path changed to %q", got)
	}
	cfg := Default()
	if got := DatabasePath(cfg); got != filepath.Join(home, ".taskhub", "taskhub.db") {
		t.Fatalf("DatabasePath() = %q", got)
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeConfig(t, path, `{"log": {"level": "info"}}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	if err := Watch(ctx, path, 20*time.Millisecond, func(c *Config) { changes <- c }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeConfig(t, path, `{"log": {"level": "debug"}}`)

	select {
	case cfg := <-changes:
		if cfg.Log.Level != "debug" {
			t.Fatalf("reloaded level = %s, want debug", cfg.Log.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("config change was not observed")
	}
}

func TestWatchRequiresPath(t *testing.T) {
	if err := Watch(context.Background(), "", 0, func(*Config) {}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
