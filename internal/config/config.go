// Package config loads configuration from file and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the wafguard daemon.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration for the read API.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds the PostgreSQL connection string.
func (c PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds the optional stats cache settings.
type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// IngestConfig holds tailer and queue settings.
type IngestConfig struct {
	LogPath        string        `mapstructure:"log_path"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	QueueSize      int           `mapstructure:"queue_size"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
}

// CorrelationConfig holds the window and severity thresholds.
type CorrelationConfig struct {
	Window          time.Duration `mapstructure:"window"`
	MediumThreshold int           `mapstructure:"medium_threshold"`
	HighThreshold   int           `mapstructure:"high_threshold"`
}

// ClassifierConfig points at an optional YAML prefix override file.
type ClassifierConfig struct {
	RulesPath string `mapstructure:"rules_path"`
}

// LoggingConfig holds log level and format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "wafguard")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "wafguard")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.ttl", "15s")

	v.SetDefault("ingest.log_path", "/var/log/nginx/modsec_audit.log")
	v.SetDefault("ingest.poll_interval", "500ms")
	v.SetDefault("ingest.queue_size", 1024)
	v.SetDefault("ingest.enqueue_timeout", "5s")

	v.SetDefault("correlation.window", "60s")
	v.SetDefault("correlation.medium_threshold", 2)
	v.SetDefault("correlation.high_threshold", 5)

	v.SetDefault("classifier.rules_path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix("WAFGUARD")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Correlation.Window <= 0 {
		return fmt.Errorf("correlation.window must be positive, got %v", c.Correlation.Window)
	}
	if c.Correlation.MediumThreshold < 1 || c.Correlation.HighThreshold < c.Correlation.MediumThreshold {
		return fmt.Errorf("severity thresholds must satisfy 1 <= medium (%d) <= high (%d)",
			c.Correlation.MediumThreshold, c.Correlation.HighThreshold)
	}
	if c.Ingest.PollInterval <= 0 {
		return fmt.Errorf("ingest.poll_interval must be positive, got %v", c.Ingest.PollInterval)
	}
	if c.Ingest.QueueSize < 1 {
		return fmt.Errorf("ingest.queue_size must be at least 1, got %d", c.Ingest.QueueSize)
	}
	return nil
}
