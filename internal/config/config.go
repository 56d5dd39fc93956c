package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Devin    DevinConfig    `mapstructure:"devin"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Polling  PollingConfig  `mapstructure:"polling"`
	Session  SessionConfig  `mapstructure:"session"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host" validate:"required"`
	Port              int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`

	// UpdateTimeout bounds the handling of a single webhook update.
	UpdateTimeout time.Duration `mapstructure:"update_timeout"`
}

// StoreConfig selects the session store backend
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=redis sqlite memory"`
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix" validate:"required"`
	ScanCount int64  `mapstructure:"scan_count" validate:"min=1"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type SQLiteConfig struct {
	Path     string `mapstructure:"path"`
	PageSize int    `mapstructure:"page_size" validate:"min=1"`
}

type DevinConfig struct {
	BaseURL    string        `mapstructure:"base_url" validate:"required,url"`
	APIKey     string        `mapstructure:"api_key" validate:"required"`
	Timeout    time.Duration `mapstructure:"timeout"`
	ListLimit  int           `mapstructure:"list_limit" validate:"min=1"`
	Idempotent bool          `mapstructure:"idempotent"`
}

type TelegramConfig struct {
	BotToken string        `mapstructure:"bot_token" validate:"required"`
	BaseURL  string        `mapstructure:"base_url" validate:"required,url"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// DedupeWindow drops redelivered updates seen within this window.
	// Zero disables deduplication.
	DedupeWindow time.Duration `mapstructure:"dedupe_window"`
}

type PollingConfig struct {
	Interval     time.Duration `mapstructure:"interval" validate:"gt=0"`
	MaxFailures  int           `mapstructure:"max_failures" validate:"min=1"`
	MaxDuration  time.Duration `mapstructure:"max_duration"`
	SiblingLimit int           `mapstructure:"sibling_limit" validate:"min=0"`
	// ListCacheTTL caches the sibling listing. Zero disables the cache.
	ListCacheTTL time.Duration `mapstructure:"list_cache_ttl"`
	// ResumeTicks stops a poll on a resumed session after this many quiet
	// ticks without the session running again.
	ResumeTicks int `mapstructure:"resume_ticks" validate:"min=0"`
}

type SessionConfig struct {
	// IdleTTL expires a session that has not seen a message for this long.
	// Zero disables expiry.
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

type LoggingConfig struct {
	Level  string        `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string        `mapstructure:"format" validate:"omitempty,oneof=json console"`
	File   string        `mapstructure:"file"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

var validate = validator.New()

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file path
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required settings and value ranges
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Driver == "sqlite" && c.SQLite.Path == "" {
		return fmt.Errorf("invalid config: sqlite.path is required for the sqlite store")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.middleware_timeout", "80s")
	v.SetDefault("server.update_timeout", "60s")

	// Store
	v.SetDefault("store.driver", "redis")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "devin-telegram:session:")
	v.SetDefault("redis.scan_count", 100)

	// SQLite
	v.SetDefault("sqlite.path", "./data/sessions.db")
	v.SetDefault("sqlite.page_size", 100)

	// Devin
	v.SetDefault("devin.base_url", "https://api.devin.ai/v1")
	v.SetDefault("devin.timeout", "60s")
	v.SetDefault("devin.list_limit", 20)
	v.SetDefault("devin.idempotent", true)

	// Telegram
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "15s")
	v.SetDefault("telegram.dedupe_window", "10m")

	// Polling
	v.SetDefault("polling.interval", "10s")
	v.SetDefault("polling.max_failures", 3)
	v.SetDefault("polling.max_duration", "6h")
	v.SetDefault("polling.sibling_limit", 3)
	v.SetDefault("polling.list_cache_ttl", "30s")
	v.SetDefault("polling.resume_ticks", 6)

	// Session
	v.SetDefault("session.idle_ttl", "0s")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.max_age", "168h")
}

func bindEnvVars(v *viper.Viper) {
	// Secrets
	v.BindEnv("telegram.bot_token", "BOT_TOKEN")
	v.BindEnv("devin.api_key", "DEVIN_API_KEY")
	v.BindEnv("admin.token", "ADMIN_TOKEN")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Store
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("sqlite.path", "SQLITE_PATH")

	// Polling
	v.BindEnv("polling.interval", "POLL_INTERVAL")

	// Telegram
	v.BindEnv("telegram.dedupe_window", "TELEGRAM_DEDUPE_WINDOW")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
	v.BindEnv("logging.file", "LOG_FILE")
}
