package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// JWT
	JWTSecret string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Token lifecycle
	TokenSkewSec int

	// Sync defaults
	SyncMaxResults int
	SyncDaysBack   int
	SyncOnlyUnread bool
	SyncMarkAsRead bool

	// Content normalization
	UnwrapLengthRatio float64

	// Extraction
	ExtractionWorkers int
	AIInputMaxChars   int

	// Rate-limit backoff
	BackoffBaseSec int
	BackoffCapSec  int
	BackoffMaxTry  int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "closet"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2048),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.1),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 60),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		// Token lifecycle
		TokenSkewSec: getEnvInt("TOKEN_SKEW_SEC", 300),

		// Sync defaults
		SyncMaxResults: getEnvInt("SYNC_MAX_RESULTS", 10),
		SyncDaysBack:   getEnvInt("SYNC_DAYS_BACK", 30),
		SyncOnlyUnread: getEnvBool("SYNC_ONLY_UNREAD", false),
		SyncMarkAsRead: getEnvBool("SYNC_MARK_AS_READ", false),

		// Content normalization
		UnwrapLengthRatio: getEnvFloat("UNWRAP_LENGTH_RATIO", 0.5),

		// Extraction
		ExtractionWorkers: getEnvInt("EXTRACTION_WORKERS", 4),
		AIInputMaxChars:   getEnvInt("AI_INPUT_MAX_CHARS", 32000),

		// Rate-limit backoff
		BackoffBaseSec: getEnvInt("BACKOFF_BASE_SEC", 1),
		BackoffCapSec:  getEnvInt("BACKOFF_CAP_SEC", 300),
		BackoffMaxTry:  getEnvInt("BACKOFF_MAX_TRY", 5),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}, nil
}

// TokenSkew returns the refresh lead time before token expiry.
func (c *Config) TokenSkew() time.Duration {
	return time.Duration(c.TokenSkewSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
