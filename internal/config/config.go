package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds everything the lockin binary needs. Values come from an
// optional YAML file with environment variables taking precedence.
type Config struct {
	HTTPAddr     string `yaml:"http_addr"`
	LogLevel     string `yaml:"log_level"`
	StoreKind    string `yaml:"store_kind"` // postgres | memory
	NATSURL      string `yaml:"nats_url"`   // empty disables notifications
	NATSPrefix   string `yaml:"nats_prefix"`
	FocusSeconds int    `yaml:"focus_seconds"`
	BreakSeconds int    `yaml:"break_seconds"`
	RoomBuffer   int    `yaml:"room_buffer"`

	DB DBConfig `yaml:"db"`
}

// DBConfig holds Postgres connection settings.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection URL.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:     ":8080",
		LogLevel:     "info",
		StoreKind:    "memory",
		NATSPrefix:   "lockin.notify",
		FocusSeconds: 1500,
		BreakSeconds: 300,
		RoomBuffer:   32,
		DB: DBConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "lockin",
			SSLMode:  "disable",
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.StoreKind = getEnv("STORE_KIND", cfg.StoreKind)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.NATSPrefix = getEnv("NATS_PREFIX", cfg.NATSPrefix)
	cfg.FocusSeconds = getEnvAsInt("FOCUS_SECONDS", cfg.FocusSeconds)
	cfg.BreakSeconds = getEnvAsInt("BREAK_SECONDS", cfg.BreakSeconds)
	cfg.RoomBuffer = getEnvAsInt("ROOM_BUFFER", cfg.RoomBuffer)

	cfg.DB.Host = getEnv("DB_HOST", cfg.DB.Host)
	cfg.DB.Port = getEnvAsInt("DB_PORT", cfg.DB.Port)
	cfg.DB.User = getEnv("DB_USER", cfg.DB.User)
	cfg.DB.Password = getEnv("DB_PASSWORD", cfg.DB.Password)
	cfg.DB.Database = getEnv("DB_NAME", cfg.DB.Database)
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", cfg.DB.SSLMode)

	if cfg.FocusSeconds <= 0 || cfg.BreakSeconds <= 0 {
		return cfg, fmt.Errorf("phase durations must be positive (focus=%d break=%d)", cfg.FocusSeconds, cfg.BreakSeconds)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
