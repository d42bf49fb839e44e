package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageFilesystem = "filesystem"
	StorageMinIO      = "minio"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	GeoIPDBPath string

	StorageBackend string
	StoragePath    string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterBaseURL string
	OpenRouterReferer string
	OpenRouterTitle   string
	GeminiAPIKey      string
	GeminiModel       string
	GeminiBaseURL     string
	ProviderTimeout   time.Duration

	RestoreAsync bool
	StaleJobAge  time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	CORSOrigins      []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8001"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageFilesystem)),
		StoragePath:    getEnv("STORAGE_PATH", "./restored_images"),
		MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    getEnv("MINIO_BUCKET", "restored-images"),
		MinIOUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinIORegion:    os.Getenv("MINIO_REGION"),

		OpenRouterAPIKey:  strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
		OpenRouterModel:   getEnv("OPENROUTER_MODEL", "google/gemini-2.5-flash-image-preview"),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterReferer: os.Getenv("OPENROUTER_REFERER"),
		OpenRouterTitle:   getEnv("OPENROUTER_TITLE", "AI Heirloom Restore"),
		GeminiAPIKey:      strings.TrimSpace(getEnv("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY"))),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash-image-preview"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ProviderTimeout:   time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 60)),

		RestoreAsync: getEnvBool("RESTORE_ASYNC", false),
		StaleJobAge:  time.Minute * time.Duration(getEnvInt("STALE_JOB_MINUTES", 15)),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "restoration-jobs"),

		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "*")),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	switch cfg.StorageBackend {
	case StorageFilesystem:
	case StorageMinIO:
		if cfg.MinIOEndpoint == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_BACKEND=minio")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	if cfg.ProviderTimeout <= 0 {
		return nil, fmt.Errorf("PROVIDER_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

// HasProviderKey reports whether any ambient provider key is configured.
func (c *Config) HasProviderKey() bool {
	return c.OpenRouterAPIKey != "" || c.GeminiAPIKey != ""
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

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
