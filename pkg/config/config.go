package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Blob     BlobConfig
	Gemini   GeminiConfig
	Email    EmailConfig
	Import   ImportConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	BaseURL            string
	Environment        string
	AllowedOrigins     []string
	RateLimitPerSecond int
	RateLimitBurst     int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type AuthConfig struct {
	JWTSecret          string
	SessionKey         string
	AccessTokenTTLMin  int
	RefreshTokenTTLHrs int
	GoogleClientID     string
	GoogleClientSecret string
}

type BlobConfig struct {
	Backend   string // "local" or "gcs"
	LocalPath string
	GCSBucket string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type EmailConfig struct {
	ResendAPIKey string
	FromAddress  string
}

type ImportConfig struct {
	MaxUploadBytes int
	StaleBatchTTL  int // hours a batch may sit unfinished before the sweeper abandons it
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
			Environment:        getEnv("APP_ENV", "development"),
			AllowedOrigins:     getEnvAsSlice("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 100),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 200),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "hearthbooks-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", "changeme"),
			SessionKey:         getEnv("SESSION_KEY", "changeme-session"),
			AccessTokenTTLMin:  getEnvAsInt("ACCESS_TOKEN_TTL_MINUTES", 15),
			RefreshTokenTTLHrs: getEnvAsInt("REFRESH_TOKEN_TTL_HOURS", 24*30),
			GoogleClientID:     getEnv("GOOGLE_OAUTH_CLIENT_ID", ""),
			GoogleClientSecret: getEnv("GOOGLE_OAUTH_CLIENT_SECRET", ""),
		},
		Blob: BlobConfig{
			Backend:   getEnv("BLOB_BACKEND", "local"),
			LocalPath: getEnv("BLOB_LOCAL_PATH", "./uploads"),
			GCSBucket: getEnv("BLOB_GCS_BUCKET", ""),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			FromAddress:  getEnv("RESEND_FROM_EMAIL", "Hearthbooks <hello@hearthbooks.app>"),
		},
		Import: ImportConfig{
			MaxUploadBytes: getEnvAsInt("IMPORT_MAX_UPLOAD_BYTES", 5<<20),
			StaleBatchTTL:  getEnvAsInt("IMPORT_STALE_BATCH_TTL_HOURS", 72),
		},
	}

	if cfg.Auth.JWTSecret == "changeme" && cfg.Server.Environment == "production" {
		return nil, errors.New("JWT_SECRET must be set in production")
	}

	if cfg.Blob.Backend == "gcs" && cfg.Blob.GCSBucket == "" {
		return nil, errors.New("BLOB_GCS_BUCKET is required when BLOB_BACKEND=gcs")
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
