package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// TLSMode is the explicit SMTP TLS choice. TLSAuto derives it from the port.
type TLSMode string

const (
	TLSAuto TLSMode = ""
	TLSOn   TLSMode = "true"
	TLSOff  TLSMode = "false"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	StorageDriver string // postgres | sqlite
	DatabaseURL   string
	SQLitePath    string

	LogLevel    string
	LogFile     string // Optional rotating log file in addition to stdout
	Environment string

	HTTPAddr           string
	AdminToken         string
	CORSAllowedOrigins []string
	AppBaseURL         string

	SchedulerInterval   time.Duration
	StorageRetries      int
	StorageRetryDelay   time.Duration
	ManualCooldown      time.Duration
	SchedulerWindowMins int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPUseTLS   TLSMode
	SMTPTimeout  time.Duration

	PushRatePerSec float64
	PushTimeout    time.Duration
}

// AdminClient is what the trigger command needs to reach a running server.
type AdminClient struct {
	HTTPAddr   string
	AdminToken string
}

// LoadAdminClient reads the admin endpoint settings without requiring storage config.
func LoadAdminClient() AdminClient {
	_ = godotenv.Load()
	return AdminClient{
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),
		AdminToken: os.Getenv("ADMIN_TOKEN"),
	}
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.StorageDriver = strings.ToLower(getEnv("STORAGE_DRIVER", "postgres"))
	switch cfg.StorageDriver {
	case "postgres":
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
	case "sqlite":
		cfg.SQLitePath = getEnv("SQLITE_PATH", "./data/warranty.db")
	default:
		return nil, fmt.Errorf("invalid STORAGE_DRIVER %q (want postgres or sqlite)", cfg.StorageDriver)
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.LogFile = os.Getenv("LOG_FILE")
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	cfg.AppBaseURL = strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/")
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	if cfg.SchedulerInterval, err = getDuration("SCHEDULER_INTERVAL", 2*time.Minute); err != nil {
		return nil, err
	}
	// The eligibility window must be as wide as the tick interval.
	cfg.SchedulerWindowMins = int(cfg.SchedulerInterval / time.Minute)
	if cfg.SchedulerWindowMins < 1 {
		return nil, fmt.Errorf("SCHEDULER_INTERVAL must be at least 1m, got %s", cfg.SchedulerInterval)
	}
	if cfg.SchedulerInterval%time.Minute != 0 {
		return nil, fmt.Errorf("SCHEDULER_INTERVAL must be a whole number of minutes, got %s", cfg.SchedulerInterval)
	}
	if cfg.StorageRetries, err = getInt("STORAGE_RETRY_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.StorageRetryDelay, err = getDuration("STORAGE_RETRY_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.ManualCooldown, err = getDuration("MANUAL_TRIGGER_COOLDOWN", 2*time.Minute); err != nil {
		return nil, err
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = getEnv("SMTP_FROM", cfg.SMTPUsername)
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv("SMTP_USE_TLS"))); v {
	case "":
		cfg.SMTPUseTLS = TLSAuto
	case "1", "true", "yes":
		cfg.SMTPUseTLS = TLSOn
	case "0", "false", "no":
		cfg.SMTPUseTLS = TLSOff
	default:
		return nil, fmt.Errorf("invalid SMTP_USE_TLS %q", v)
	}
	if cfg.SMTPTimeout, err = getDuration("SMTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	if raw := os.Getenv("PUSH_RATE_PER_SEC"); raw != "" {
		if cfg.PushRatePerSec, err = strconv.ParseFloat(raw, 64); err != nil {
			return nil, fmt.Errorf("invalid PUSH_RATE_PER_SEC: %w", err)
		}
	} else {
		cfg.PushRatePerSec = 1
	}
	if cfg.PushTimeout, err = getDuration("PUSH_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
