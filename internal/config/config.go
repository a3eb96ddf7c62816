package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides application configuration.
var Module = fx.Provide(Load)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr string

	Platform PlatformConfig
	Ingest   IngestConfig
	Backfill BackfillConfig
}

// PlatformConfig configures the outbound action-log client.
type PlatformConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// IngestConfig bounds report ingestion.
type IngestConfig struct {
	WorkerLimit int
}

// BackfillConfig tunes the cycle backfill job.
type BackfillConfig struct {
	BatchSize       int
	CycleLengthDays int
	CycleEpoch      time.Time
	LockTTL         time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "repboard"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "repboard"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr: strings.TrimSpace(getenv("REDIS_ADDR", "")),

		Platform: PlatformConfig{
			BaseURL:        strings.TrimRight(getenv("PLATFORM_BASE_URL", "http://localhost:9090"), "/"),
			APIKey:         strings.TrimSpace(getenv("PLATFORM_API_KEY", "")),
			RequestTimeout: time.Duration(getenvInt("PLATFORM_REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
			MaxAttempts:    getenvInt("PLATFORM_MAX_ATTEMPTS", 4),
			InitialBackoff: time.Duration(getenvInt("PLATFORM_INITIAL_BACKOFF_MS", 250)) * time.Millisecond,
		},
		Ingest: IngestConfig{
			WorkerLimit: getenvInt("INGEST_WORKER_LIMIT", 8),
		},
		Backfill: BackfillConfig{
			BatchSize:       getenvInt("BACKFILL_BATCH_SIZE", 100),
			CycleLengthDays: getenvInt("CYCLE_LENGTH_DAYS", 30),
			CycleEpoch:      getenvDate("CYCLE_EPOCH", "2023-01-02"),
			LockTTL:         time.Duration(getenvInt("BACKFILL_LOCK_TTL_SECONDS", 1800)) * time.Second,
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDate(key, def string) time.Time {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		value = def
	}
	parsed, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		parsed, _ = time.ParseInLocation("2006-01-02", def, time.UTC)
	}
	return parsed
}
