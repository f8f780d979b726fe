// Package config provides configuration for the awa service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Media engine modes.
const (
	MediaModeMock = "mock"
	MediaModeHTTP = "http"
)

// Cache drivers.
const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// Config holds the full service configuration. Values are read by viper
// from an optional awa.yaml file and AWA_* environment variables.
type Config struct {
	Server   ServerConfig  `mapstructure:"server"`
	WS       WSConfig      `mapstructure:"ws"`
	Store    StoreConfig   `mapstructure:"store"`
	Cache    CacheConfig   `mapstructure:"cache"`
	Media    MediaConfig   `mapstructure:"media"`
	History  HistoryConfig `mapstructure:"history"`
	LogLevel string        `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	StaticDir string `mapstructure:"static_dir"`
}

// WSConfig holds WebSocket connection settings.
type WSConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// StoreConfig holds storage settings.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// CacheConfig holds the history cache settings.
type CacheConfig struct {
	Driver    string        `mapstructure:"driver"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// MediaConfig holds the modality engine settings.
type MediaConfig struct {
	Mode      string `mapstructure:"mode"`
	STTURL    string `mapstructure:"stt_url"`
	TTSURL    string `mapstructure:"tts_url"`
	FramesURL string `mapstructure:"frames_url"`
	Locale    string `mapstructure:"locale"`
	Voice     string `mapstructure:"voice"`
}

// HistoryConfig holds the history query settings.
type HistoryConfig struct {
	Limit int `mapstructure:"limit"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("awa")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("AWA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.static_dir", "static")
	v.SetDefault("ws.ping_interval", "30s")
	v.SetDefault("ws.read_timeout", "60s")
	v.SetDefault("ws.write_timeout", "10s")
	v.SetDefault("ws.max_message_size", 8<<20)
	v.SetDefault("store.dsn", "data/awa.db")
	v.SetDefault("cache.driver", CacheDriverMemory)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("media.mode", MediaModeMock)
	v.SetDefault("media.locale", "en-US")
	v.SetDefault("media.voice", "en-US-Standard")
	v.SetDefault("history.limit", 50)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Media.Mode {
	case MediaModeMock:
	case MediaModeHTTP:
		if c.Media.STTURL == "" || c.Media.TTSURL == "" || c.Media.FramesURL == "" {
			return fmt.Errorf("media mode %q requires stt_url, tts_url and frames_url", c.Media.Mode)
		}
	default:
		return fmt.Errorf("unknown media mode: %q", c.Media.Mode)
	}
	switch c.Cache.Driver {
	case CacheDriverMemory, CacheDriverRedis:
	default:
		return fmt.Errorf("unknown cache driver: %q", c.Cache.Driver)
	}
	if c.History.Limit < 1 {
		return fmt.Errorf("history limit must be positive, got %d", c.History.Limit)
	}
	return nil
}
