package config

import (
	"time"
)

// Config 是主配置结构
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" json:"database"`
	Cache     CacheConfig     `mapstructure:"cache" json:"cache"`
	Events    EventsConfig    `mapstructure:"events" json:"events"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" json:"scheduler"`
	Service   ServiceConfig   `mapstructure:"service" json:"service"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path     string `mapstructure:"path" json:"path"`
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	// Backend is "memory", "redis" or "none".
	Backend         string        `mapstructure:"backend" json:"backend"`
	MaxEntries      int           `mapstructure:"max_entries" json:"max_entries"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl" json:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" json:"cleanup_interval"`
	Redis           RedisConfig   `mapstructure:"redis" json:"redis"`
	Retry           RetryConfig   `mapstructure:"retry" json:"retry"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr      string `mapstructure:"addr" json:"addr"`
	Password  string `mapstructure:"password" json:"password,omitempty"`
	DB        int    `mapstructure:"db" json:"db"`
	KeyPrefix string `mapstructure:"key_prefix" json:"key_prefix"`
}

// RetryConfig 缓存重试配置
type RetryConfig struct {
	MaxTries        int           `mapstructure:"max_tries" json:"max_tries"`
	InitialInterval time.Duration `mapstructure:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" json:"max_interval"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed" json:"max_elapsed"`
}

// EventsConfig 事件总线配置
type EventsConfig struct {
	BufferSize       int `mapstructure:"buffer_size" json:"buffer_size"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer" json:"subscriber_buffer"`
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	Enabled      bool   `mapstructure:"enabled" json:"enabled"`
	OverdueSweep string `mapstructure:"overdue_sweep" json:"overdue_sweep"`
	SweepLimit   int    `mapstructure:"sweep_limit" json:"sweep_limit"` // 每轮最多发布的逾期事件数，0 不限制
}

// ServiceConfig 任务服务配置
type ServiceConfig struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout" json:"operation_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	Development bool   `mapstructure:"development" json:"development"`
}
