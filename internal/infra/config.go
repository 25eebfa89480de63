package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	JWTSecret        string
	StoragePath      string
	GeoIPDBPath      string
	NotifyWebhookURL string
	DBMaxConns       int
	DBMinConns       int

	MaxRetries        int
	TickInterval      time.Duration
	ShutdownTimeout   time.Duration
	LoadGateEnabled   bool
	LoadSampleEvery   time.Duration
	RenderPaceUnit    time.Duration
	HistoryPageLimit  int
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	RateLimitPerMin   int
	AllowedCORSOrigin []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		NotifyWebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 10),
		DBMinConns:       getEnvInt("DB_MIN_CONNS", 1),

		MaxRetries:       getEnvInt("SCHEDULER_MAX_RETRIES", 3),
		TickInterval:     time.Second * time.Duration(getEnvInt("SCHEDULER_TICK_SECONDS", 2)),
		ShutdownTimeout:  time.Second * time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)),
		LoadGateEnabled:  getEnvBool("LOAD_GATE_ENABLED", true),
		LoadSampleEvery:  time.Second * time.Duration(getEnvInt("LOAD_SAMPLE_SECONDS", 5)),
		RenderPaceUnit:   time.Millisecond * time.Duration(getEnvInt("RENDER_PACE_MS", 50)),
		HistoryPageLimit: getEnvInt("HISTORY_PAGE_LIMIT", 50),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	if origin := os.Getenv("CORS_ALLOWED_ORIGIN"); origin != "" {
		cfg.AllowedCORSOrigin = []string{origin}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
