package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	VK       VKConfig
	Telegram TelegramConfig
	Tracker  TrackerConfig
}

// ServerConfig holds HTTP server runtime parameters for the admin API.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds Postgres connection parameters.
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
}

// VKConfig holds upstream API credentials. Exactly one token is required;
// UserToken unlocks the newsfeed-based like sources.
type VKConfig struct {
	UserToken      string
	ServiceToken   string
	RequestTimeout time.Duration
}

// TelegramConfig holds the delivery channel credentials.
type TelegramConfig struct {
	Token       string
	AdminChatID int64
}

// TrackerConfig holds poll loop parameters.
type TrackerConfig struct {
	PresenceInterval time.Duration
	ActivityInterval time.Duration
	PresenceBatch    int
	PostFetchLimit   int
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultMaxConnections     = 25
	defaultMaxIdleConnections = 5
	defaultConnMaxLifetime    = 5 * time.Minute
	defaultConnectTimeout     = 10 * time.Second

	defaultRequestTimeout = 30 * time.Second

	// presenceIntervalFloor is the lowest allowed presence poll interval.
	// Smaller configured values are clamped up with a warning.
	presenceIntervalFloor   = 20 * time.Second
	defaultPresenceInterval = 30 * time.Second
	defaultActivityInterval = 300 * time.Second
	defaultPostFetchLimit   = 20

	// presenceBatch is the id cap for one batched users.get call. It is an
	// upstream constant, not a tuning knob, so it has no env override.
	presenceBatch = 100
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided. The logger is used only for clamp warnings.
func Load(logger *slog.Logger) (Config, error) {
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:                os.Getenv("DATABASE_URL"),
			MaxConnections:     defaultMaxConnections,
			MaxIdleConnections: defaultMaxIdleConnections,
			ConnMaxLifetime:    defaultConnMaxLifetime,
			ConnectTimeout:     defaultConnectTimeout,
		},
		VK: VKConfig{
			UserToken:      os.Getenv("VK_USER_TOKEN"),
			ServiceToken:   os.Getenv("VK_SERVICE_TOKEN"),
			RequestTimeout: defaultRequestTimeout,
		},
		Telegram: TelegramConfig{
			Token: os.Getenv("TELEGRAM_TOKEN"),
		},
		Tracker: TrackerConfig{
			PresenceInterval: defaultPresenceInterval,
			ActivityInterval: defaultActivityInterval,
			PresenceBatch:    presenceBatch,
			PostFetchLimit:   defaultPostFetchLimit,
		},
	}

	if v := os.Getenv("ADMIN_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ADMIN_CHAT_ID: %w", err)
		}
		cfg.Telegram.AdminChatID = id
	}

	if v := os.Getenv("POLLING_INTERVAL_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid POLLING_INTERVAL_SECONDS: %w", err)
		}
		cfg.Tracker.PresenceInterval = d
	}

	if cfg.Tracker.PresenceInterval < presenceIntervalFloor {
		if logger != nil {
			logger.Warn("presence poll interval below floor, clamping",
				"configured", cfg.Tracker.PresenceInterval,
				"floor", presenceIntervalFloor,
			)
		}
		cfg.Tracker.PresenceInterval = presenceIntervalFloor
	}

	if v := os.Getenv("ACTIVITY_INTERVAL_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ACTIVITY_INTERVAL_SECONDS: %w", err)
		}
		cfg.Tracker.ActivityInterval = d
	}

	if v := os.Getenv("POST_FETCH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid POST_FETCH_LIMIT: must be a positive integer")
		}
		cfg.Tracker.PostFetchLimit = n
	}

	if v := os.Getenv("VK_REQUEST_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid VK_REQUEST_TIMEOUT_SECONDS: %w", err)
		}
		cfg.VK.RequestTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	return cfg, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
