// Package config loads engine configuration from environment variables,
// with an optional YAML profile overlay.
package config

import (
	"os"
	"strconv"

	"github.com/Arclight-Systems/casetrail/pkg/storage"
)

// Config holds worker configuration.
type Config struct {
	DatabaseURL string
	LogLevel    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QueueName     string

	ExportRateLimitPerHour int
	ExportMaxRows          int
	DownloadTTLMinutes     int

	OTLPEndpoint string
	OTelEnabled  bool
	OTelInsecure bool
	Environment  string

	Storage storage.Config
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		DatabaseURL:            getenv("DATABASE_URL", "postgres://casetrail@localhost:5432/casetrail?sslmode=disable"),
		LogLevel:               getenv("LOG_LEVEL", "INFO"),
		RedisAddr:              getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getint("REDIS_DB", 0),
		QueueName:              getenv("EXPORT_QUEUE", "casetrail:export_jobs"),
		ExportRateLimitPerHour: getint("EXPORT_RATE_LIMIT_PER_HOUR", 5),
		ExportMaxRows:          getint("EXPORT_MAX_ROWS", 50_000),
		DownloadTTLMinutes:     getint("DOWNLOAD_TTL_MINUTES", 15),
		OTLPEndpoint:           getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTelEnabled:            os.Getenv("OTEL_ENABLED") == "true",
		OTelInsecure:           os.Getenv("OTEL_INSECURE") == "true",
		Environment:            getenv("ENVIRONMENT", "development"),
		Storage: storage.Config{
			Backend:         storage.Backend(getenv("STORAGE_BACKEND", "fs")),
			LocalRoot:       getenv("STORAGE_LOCAL_ROOT", "data/exports"),
			LocalBaseURL:    os.Getenv("STORAGE_LOCAL_BASE_URL"),
			LocalSigningKey: os.Getenv("STORAGE_LOCAL_SIGNING_KEY"),
			S3Bucket:        os.Getenv("STORAGE_S3_BUCKET"),
			S3Region:        getenv("STORAGE_S3_REGION", os.Getenv("AWS_REGION")),
			S3Endpoint:      os.Getenv("STORAGE_S3_ENDPOINT"),
			S3Prefix:        os.Getenv("STORAGE_S3_PREFIX"),
			GCSBucket:       os.Getenv("STORAGE_GCS_BUCKET"),
			GCSPrefix:       os.Getenv("STORAGE_GCS_PREFIX"),
		},
	}

	if path := os.Getenv("CASETRAIL_PROFILE"); path != "" {
		// Best-effort overlay; a broken profile falls back to env values.
		if profile, err := LoadProfile(path); err == nil {
			profile.apply(cfg)
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
