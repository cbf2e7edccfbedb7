package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smallnest/taskhub/cron"
	"github.com/spf13/viper"
)

var (
	globalConfig *Config
	loadedFrom   string
)

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// 默认配置文件搜索路径（按优先级）
		home, err := ResolveUserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		// 1) 当前工作目录下 .taskhub/config.json
		v.AddConfigPath(filepath.Join(".", ".taskhub"))
		// 2) 当前工作目录 ./config.json
		v.AddConfigPath(".")
		// 3) 用户目录 ~/.taskhub/config.json
		v.AddConfigPath(filepath.Join(home, ".taskhub"))
		v.SetConfigName("config")
		v.SetConfigType("json")
	}

	v.SetEnvPrefix("TASKHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// 配置文件不存在，使用默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	globalConfig = &cfg
	loadedFrom = v.ConfigFileUsed()
	return &cfg, nil
}

// LoadedFrom returns the file the last Load read, or "" when it ran on
// defaults and environment alone.
func LoadedFrom() string {
	return loadedFrom
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "~/.taskhub/taskhub.db")
	v.SetDefault("database.log_level", "silent")

	// Use time.Duration defaults; plain integers would become nanoseconds when unmarshaled.
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.cleanup_interval", time.Minute)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "taskhub:")
	v.SetDefault("cache.retry.max_tries", 3)
	v.SetDefault("cache.retry.initial_interval", 20*time.Millisecond)
	v.SetDefault("cache.retry.max_interval", 200*time.Millisecond)
	v.SetDefault("cache.retry.max_elapsed", time.Second)

	v.SetDefault("events.buffer_size", 256)
	v.SetDefault("events.subscriber_buffer", 64)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.overdue_sweep", "every 15 minutes")
	v.SetDefault("scheduler.sweep_limit", 500)

	v.SetDefault("service.operation_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Save 保存配置到文件
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}

// Validate 验证配置
func Validate(cfg *Config) error {
	if err := validateDatabase(cfg); err != nil {
		return fmt.Errorf("database config invalid: %w", err)
	}
	if err := validateCache(cfg); err != nil {
		return fmt.Errorf("cache config invalid: %w", err)
	}
	if err := validateEvents(cfg); err != nil {
		return fmt.Errorf("events config invalid: %w", err)
	}
	if err := validateScheduler(cfg); err != nil {
		return fmt.Errorf("scheduler config invalid: %w", err)
	}
	if cfg.Service.OperationTimeout <= 0 {
		return fmt.Errorf("service config invalid: operation_timeout must be positive")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log config invalid: level must be debug, info, warn or error")
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	if strings.TrimSpace(cfg.Database.Path) == "" {
		return fmt.Errorf("path cannot be empty")
	}
	switch strings.ToLower(cfg.Database.LogLevel) {
	case "", "silent", "error", "warn", "info":
	default:
		return fmt.Errorf("log_level must be silent, error, warn or info")
	}
	return nil
}

func validateCache(cfg *Config) error {
	c := cfg.Cache
	switch strings.ToLower(c.Backend) {
	case "none":
		return nil
	case "memory":
		if c.MaxEntries <= 0 {
			return fmt.Errorf("max_entries must be positive")
		}
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("redis addr is required when backend is redis")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("redis db must be non-negative")
		}
	default:
		return fmt.Errorf("backend must be memory, redis or none")
	}
	if c.Retry.MaxTries <= 0 {
		return fmt.Errorf("retry max_tries must be positive")
	}
	if c.Retry.MaxElapsed < 0 || c.Retry.InitialInterval < 0 || c.Retry.MaxInterval < 0 {
		return fmt.Errorf("retry intervals must be non-negative")
	}
	return nil
}

func validateEvents(cfg *Config) error {
	if cfg.Events.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive")
	}
	if cfg.Events.SubscriberBuffer <= 0 {
		return fmt.Errorf("subscriber_buffer must be positive")
	}
	return nil
}

func validateScheduler(cfg *Config) error {
	if !cfg.Scheduler.Enabled {
		return nil
	}
	if _, err := cron.Parse(cfg.Scheduler.OverdueSweep); err != nil {
		return fmt.Errorf("overdue_sweep: %w", err)
	}
	if cfg.Scheduler.SweepLimit < 0 {
		return fmt.Errorf("sweep_limit must be non-negative")
	}
	return nil
}
