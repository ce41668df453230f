package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// R2 is the public bucket the graph backend stages photos in before
// Instagram fetches them by URL.
type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Config struct {
	Port              string
	ServerURL         string
	APIKey            string
	DatabaseDriver    string
	DatabaseURL       string
	SecretKey         string
	CookieName        string
	AdminUsername     string
	AdminPassword     string
	FrontendURL       string
	SessionsDir       string
	TempDir           string
	Timezone          string
	MaxAccounts       int
	MaxConcurrentRuns int
	RunTimeout        time.Duration
	HTTPTimeout       time.Duration
	CaptionTimeout    time.Duration
	GeminiModel       string
	AnthropicModel    string
	R2                R2
}

func LoadConfig() *Config {
	return &Config{
		Port:              getEnv("PORT", "3000"),
		ServerURL:         getEnv("AUTOPOST_SERVER_URL", "http://localhost:"+getEnv("PORT", "3000")),
		APIKey:            getEnv("AUTOPOST_API_KEY", ""),
		DatabaseDriver:    getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:       getEnv("DATABASE_URL", "autopost.db"),
		SecretKey:         getEnv("SECRET_KEY", ""),
		CookieName:        getEnv("COOKIE_NAME", "autopost_session"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
		FrontendURL:       getEnv("FRONTEND_URL", "http://localhost:5173"),
		SessionsDir:       getEnv("SESSIONS_DIR", "./instagram_sessions"),
		TempDir:           getEnv("TEMP_DIR", os.TempDir()),
		Timezone:          getEnv("TIMEZONE", "Local"),
		MaxAccounts:       getEnvInt("MAX_ACCOUNTS", 4),
		MaxConcurrentRuns: getEnvInt("MAX_CONCURRENT_RUNS", 4),
		RunTimeout:        getEnvDuration("RUN_TIMEOUT", 30*time.Minute),
		HTTPTimeout:       getEnvDuration("HTTP_TIMEOUT", 60*time.Second),
		CaptionTimeout:    getEnvDuration("CAPTION_TIMEOUT", 90*time.Second),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
	}
}

// Location resolves Timezone, falling back to the host zone when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		slog.Warn("unknown timezone, using local time", "timezone", c.Timezone, "error", err)
		return time.Local
	}
	return loc
}

// EncryptionKey returns the AES key for secrets at rest, or nil when
// SECRET_KEY is unset and secrets are stored as given.
func (c *Config) EncryptionKey() []byte {
	if c.SecretKey == "" {
		return nil
	}
	return []byte(c.SecretKey)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return d
}
