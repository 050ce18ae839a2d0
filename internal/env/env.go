package env

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	Port              = "PORT"
	LogLevel          = "LOG_LEVEL"
	StaticDir         = "RELAY_STATIC_DIR"
	SendBuffer        = "RELAY_SEND_BUFFER"
	MaxMessageBytes   = "RELAY_MAX_MESSAGE_BYTES"
	IdleTimeout       = "RELAY_IDLE_TIMEOUT"
	MessagesPerSecond = "RELAY_MESSAGES_PER_SECOND"
	MessageBurst      = "RELAY_MESSAGE_BURST"
	PollTimeout       = "RELAY_POLL_TIMEOUT"
	PollIdleTimeout   = "RELAY_POLL_IDLE_TIMEOUT"
	QueueSize         = "RELAY_QUEUE_SIZE"
	QueueWorkers      = "RELAY_QUEUE_WORKERS"
	RedisURL          = "RELAY_REDIS_URL"
	RedisPass         = "RELAY_REDIS_PASS"
	RedisChannel      = "RELAY_REDIS_CHANNEL"
)

// Config is the relay server configuration, read once at startup.
type Config struct {
	Port      string `env:"PORT"             envDefault:"3000"`
	LogLevel  string `env:"LOG_LEVEL"        envDefault:"info"`
	StaticDir string `env:"RELAY_STATIC_DIR" envDefault:"../client/dist"`

	SendBuffer        int           `env:"RELAY_SEND_BUFFER"         envDefault:"256"`
	MaxMessageBytes   int64         `env:"RELAY_MAX_MESSAGE_BYTES"   envDefault:"1048576"`
	IdleTimeout       time.Duration `env:"RELAY_IDLE_TIMEOUT"        envDefault:"0s"`
	MessagesPerSecond float64       `env:"RELAY_MESSAGES_PER_SECOND" envDefault:"100"`
	MessageBurst      int           `env:"RELAY_MESSAGE_BURST"       envDefault:"200"`

	PollTimeout     time.Duration `env:"RELAY_POLL_TIMEOUT"      envDefault:"25s"`
	PollIdleTimeout time.Duration `env:"RELAY_POLL_IDLE_TIMEOUT" envDefault:"60s"`

	QueueSize    int `env:"RELAY_QUEUE_SIZE"    envDefault:"64"`
	QueueWorkers int `env:"RELAY_QUEUE_WORKERS" envDefault:"16"`

	RedisURL     string `env:"RELAY_REDIS_URL"`
	RedisPass    string `env:"RELAY_REDIS_PASS"`
	RedisChannel string `env:"RELAY_REDIS_CHANNEL" envDefault:"code-relay:edits"`
}

// Load reads an optional .env file and parses Config from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env file", "error", err)
	}
	return Parse()
}

// Parse reads Config from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("env: %s must not be empty", Port)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("env: %s must be positive, got %d", SendBuffer, c.SendBuffer)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("env: %s must be positive, got %d", MaxMessageBytes, c.MaxMessageBytes)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("env: %s must not be negative", IdleTimeout)
	}
	if c.MessagesPerSecond <= 0 || c.MessageBurst <= 0 {
		return fmt.Errorf("env: %s and %s must be positive", MessagesPerSecond, MessageBurst)
	}
	if c.PollTimeout <= 0 || c.PollIdleTimeout <= c.PollTimeout {
		return fmt.Errorf("env: %s must be positive and below %s", PollTimeout, PollIdleTimeout)
	}
	if c.QueueSize <= 0 || c.QueueWorkers <= 0 {
		return fmt.Errorf("env: %s and %s must be positive", QueueSize, QueueWorkers)
	}
	return nil
}

func (c Config) ListenAddr() string {
	return ":" + c.Port
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
