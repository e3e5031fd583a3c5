package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	State     StateConfig     `mapstructure:"state"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Invite    InviteConfig    `mapstructure:"invite"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    int           `mapstructure:"port"`
	Mode                    string        `mapstructure:"mode"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DB              string        `mapstructure:"db"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type StateConfig struct {
	Backend string `mapstructure:"backend"` // "redis" | "memory"
}

type ArchiveConfig struct {
	Backend string `mapstructure:"backend"` // "postgres" | "sqlite" | "none"
}

type JWTConfig struct {
	SigningKey     string        `mapstructure:"signing_key"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type AdminConfig struct {
	UserIDs []string `mapstructure:"user_ids"`
}

type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	APIEndpoint    string        `mapstructure:"api_endpoint"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Debug          bool          `mapstructure:"debug"`
}

type InviteConfig struct {
	MaxRetries         int               `mapstructure:"max_retries"`
	BaseDelay          time.Duration     `mapstructure:"base_delay"`
	MaxDelay           time.Duration     `mapstructure:"max_delay"`
	DefaultExpireHours int               `mapstructure:"default_expire_hours"`
	RateLimit          RateLimitConfig   `mapstructure:"rate_limit"`
	Templates          map[string]string `mapstructure:"templates"`
}

type RateLimitConfig struct {
	User     RateLimitRule `mapstructure:"user"`
	Channel  RateLimitRule `mapstructure:"channel"`
	FailOpen bool          `mapstructure:"fail_open"`
}

type RateLimitRule struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

type AnalyticsConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	HistorySize  int           `mapstructure:"history_size"`
	HistoryTTL   time.Duration `mapstructure:"history_ttl"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.graceful_shutdown_timeout", 15*time.Second)

	v.SetDefault("state.backend", "memory")
	v.SetDefault("archive.backend", "none")
	v.SetDefault("database.sqlite.path", "data/invitehub.db")

	v.SetDefault("jwt.issuer", "invitehub")
	v.SetDefault("jwt.access_token_ttl", time.Hour)

	v.SetDefault("telegram.api_endpoint", "https://api.telegram.org/bot%s/%s")
	v.SetDefault("telegram.request_timeout", 10*time.Second)

	v.SetDefault("invite.max_retries", 3)
	v.SetDefault("invite.base_delay", time.Second)
	v.SetDefault("invite.max_delay", 10*time.Second)
	v.SetDefault("invite.default_expire_hours", 24)
	v.SetDefault("invite.rate_limit.user.max", 5)
	v.SetDefault("invite.rate_limit.user.window", time.Hour)
	v.SetDefault("invite.rate_limit.channel.max", 100)
	v.SetDefault("invite.rate_limit.channel.window", time.Hour)
	v.SetDefault("invite.rate_limit.fail_open", true)

	v.SetDefault("analytics.queue_size", 1024)
	v.SetDefault("analytics.history_size", 100)
	v.SetDefault("analytics.history_ttl", 7*24*time.Hour)
	v.SetDefault("analytics.store_timeout", 3*time.Second)

	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type"})
	v.SetDefault("cors.max_age", 12*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads config.yaml, overlays environment variables, and returns Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	// Environment variable override: TELEGRAM_BOT_TOKEN -> telegram.bot_token
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
