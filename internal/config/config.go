// Package config provides application configuration management.
// It loads settings from environment variables (and an optional .env file)
// and validates them before the server or ingest CLI starts.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported LLM provider names.
const (
	ProviderGroq     = "groq"
	ProviderCerebras = "cerebras"
	ProviderGemini   = "gemini"
)

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	PublicBaseURL   string        // Prefix of download links, defaults to http://localhost:{port}
	ChatTimeout     time.Duration // Deadline for one chat request
	EagerInit       bool          // Build retriever and LLM clients at startup

	// Paths
	DataDir         string
	OutputDir       string
	TemplateDir     string
	OutputRetention time.Duration // 0 keeps generated documents forever

	// Rate Limits (per client IP, token bucket)
	RateBurst  int
	RateRefill float64 // tokens per second

	// LLM Configuration
	LLMProviders   []string // Provider order for advisor and extractor
	GroqAPIKey     string
	GeminiAPIKey   string
	CerebrasAPIKey string
	GroqModel      string
	GeminiModel    string
	CerebrasModel  string
	EmbeddingModel string

	// Vector Store
	QdrantURL        string // Empty selects the local chromem store
	QdrantAPIKey     string
	QdrantCollection string

	// Metrics Authentication
	MetricsUsername string
	MetricsPassword string // Empty disables auth

	// R2 Archive (all four required to enable)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string

	// Sentry
	SentryToken       string
	SentryHost        string
	SentryEnvironment string
	SentrySampleRate  float64

	// Better Stack
	BetterStackToken    string
	BetterStackEndpoint string
}

// Load reads configuration from environment variables.
// It attempts to load a .env file first, then reads from env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := getEnv(EnvPort, "8000")
	cfg := &Config{
		Port:            port,
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, 30*time.Second),
		PublicBaseURL:   strings.TrimRight(getEnv(EnvPublicBaseURL, "http://localhost:"+port), "/"),
		ChatTimeout:     getDurationEnv(EnvChatTimeout, ChatProcessing),
		EagerInit:       getBoolEnv(EnvEagerInit, false),

		DataDir:         getEnv(EnvDataDir, "./data"),
		OutputDir:       getEnv(EnvOutputDir, "./output"),
		TemplateDir:     getEnv(EnvTemplateDir, "./templates"),
		OutputRetention: getDurationEnv(EnvOutputRetention, 0),

		RateBurst:  getIntEnv(EnvRateBurst, 10),
		RateRefill: getFloatEnv(EnvRateRefill, 0.2),

		LLMProviders:   parseList(getEnv(EnvLLMProviders, "groq,cerebras,gemini")),
		GroqAPIKey:     getEnv(EnvGroqAPIKey, ""),
		GeminiAPIKey:   getEnv(EnvGeminiAPIKey, ""),
		CerebrasAPIKey: getEnv(EnvCerebrasAPIKey, ""),
		GroqModel:      getEnv(EnvGroqModel, "llama-3.1-8b-instant"),
		GeminiModel:    getEnv(EnvGeminiModel, "gemini-2.5-flash"),
		CerebrasModel:  getEnv(EnvCerebrasModel, "llama-3.3-70b"),
		EmbeddingModel: getEnv(EnvEmbeddingModel, "gemini-embedding-001"),

		QdrantURL:        getEnv(EnvQdrantURL, ""),
		QdrantAPIKey:     getEnv(EnvQdrantAPIKey, ""),
		QdrantCollection: getEnv(EnvQdrantCollection, "demo_collection_railway_v2"),

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),

		R2AccountID:       getEnv(EnvR2AccountID, ""),
		R2AccessKeyID:     getEnv(EnvR2AccessKeyID, ""),
		R2SecretAccessKey: getEnv(EnvR2SecretAccessKey, ""),
		R2BucketName:      getEnv(EnvR2BucketName, ""),

		SentryToken:       getEnv(EnvSentryToken, ""),
		SentryHost:        getEnv(EnvSentryHost, ""),
		SentryEnvironment: getEnv(EnvSentryEnvironment, "production"),
		SentrySampleRate:  getFloatEnv(EnvSentrySampleRate, 1.0),

		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that values are usable
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("OUTPUT_DIR is required"))
	}
	if c.TemplateDir == "" {
		errs = append(errs, errors.New("TEMPLATE_DIR is required"))
	}
	if u, err := url.Parse(c.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", c.PublicBaseURL))
	}
	if c.ChatTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CHAT_TIMEOUT must be positive, got %v", c.ChatTimeout))
	}
	if c.ChatTimeout >= HTTPWrite {
		errs = append(errs, fmt.Errorf("CHAT_TIMEOUT must be shorter than the HTTP write timeout (%v), got %v", HTTPWrite, c.ChatTimeout))
	}
	if c.OutputRetention < 0 {
		errs = append(errs, fmt.Errorf("OUTPUT_RETENTION cannot be negative, got %v", c.OutputRetention))
	}
	if c.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("RATE_BURST must be positive, got %d", c.RateBurst))
	}
	if c.RateRefill <= 0 {
		errs = append(errs, fmt.Errorf("RATE_REFILL must be positive, got %v", c.RateRefill))
	}
	for _, p := range c.LLMProviders {
		switch p {
		case ProviderGroq, ProviderCerebras, ProviderGemini:
		default:
			errs = append(errs, fmt.Errorf("LLM_PROVIDERS: unknown provider %q", p))
		}
	}
	if c.SentrySampleRate < 0 || c.SentrySampleRate > 1 {
		errs = append(errs, fmt.Errorf("SENTRY_SAMPLE_RATE must be within [0,1], got %v", c.SentrySampleRate))
	}
	if c.R2Partial() {
		errs = append(errs, errors.New("R2 requires ACCOUNT_ID, ACCESS_KEY_ID, SECRET_ACCESS_KEY and BUCKET_NAME together"))
	}

	return errors.Join(errs...)
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "kmutt.db")
}

// ChromemPath returns the directory of the local vector store.
func (c *Config) ChromemPath() string {
	return filepath.Join(c.DataDir, "chromem")
}

// APIKey returns the key configured for provider.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case ProviderGroq:
		return c.GroqAPIKey
	case ProviderCerebras:
		return c.CerebrasAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	}
	return ""
}

// Model returns the chat model configured for provider.
func (c *Config) Model(provider string) string {
	switch provider {
	case ProviderGroq:
		return c.GroqModel
	case ProviderCerebras:
		return c.CerebrasModel
	case ProviderGemini:
		return c.GeminiModel
	}
	return ""
}

// HasLLMProvider returns true if at least one listed provider has a key.
func (c *Config) HasLLMProvider() bool {
	for _, p := range c.LLMProviders {
		if c.APIKey(p) != "" {
			return true
		}
	}
	return false
}

// R2Enabled reports whether the archive mirror is fully configured.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2BucketName != ""
}

// R2Partial reports a half-configured archive, which is a deployment mistake.
func (c *Config) R2Partial() bool {
	set := 0
	for _, v := range []string{c.R2AccountID, c.R2AccessKeyID, c.R2SecretAccessKey, c.R2BucketName} {
		if v != "" {
			set++
		}
	}
	return set > 0 && set < 4
}

// SentryEnabled reports whether error tracking is configured.
func (c *Config) SentryEnabled() bool {
	return c.SentryToken != "" && c.SentryHost != ""
}

// getEnv retrieves an environment variable, then its unprefixed legacy name,
// then the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if legacy, ok := legacyKeys[key]; ok {
		if value := os.Getenv(legacy); value != "" {
			return value
		}
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := getEnv(key, ""); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := getEnv(key, ""); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := getEnv(key, ""); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := getEnv(key, ""); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// parseList splits a comma list, lower-casing and dropping blanks.
func parseList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
