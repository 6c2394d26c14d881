// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort            = "KMUTT_PORT"
	EnvLogLevel        = "KMUTT_LOG_LEVEL"
	EnvShutdownTimeout = "KMUTT_SHUTDOWN_TIMEOUT"
	EnvPublicBaseURL   = "KMUTT_PUBLIC_BASE_URL"
	EnvChatTimeout     = "KMUTT_CHAT_TIMEOUT"
	EnvEagerInit       = "KMUTT_EAGER_INIT"

	// Paths
	EnvDataDir         = "KMUTT_DATA_DIR"
	EnvOutputDir       = "KMUTT_OUTPUT_DIR"
	EnvTemplateDir     = "KMUTT_TEMPLATE_DIR"
	EnvOutputRetention = "KMUTT_OUTPUT_RETENTION"

	// Rate Limits
	EnvRateBurst  = "KMUTT_RATE_BURST"
	EnvRateRefill = "KMUTT_RATE_REFILL"

	// LLM
	EnvLLMProviders   = "KMUTT_LLM_PROVIDERS"
	EnvGroqAPIKey     = "KMUTT_GROQ_API_KEY"
	EnvGeminiAPIKey   = "KMUTT_GEMINI_API_KEY"
	EnvCerebrasAPIKey = "KMUTT_CEREBRAS_API_KEY"
	EnvGroqModel      = "KMUTT_GROQ_MODEL"
	EnvGeminiModel    = "KMUTT_GEMINI_MODEL"
	EnvCerebrasModel  = "KMUTT_CEREBRAS_MODEL"
	EnvEmbeddingModel = "KMUTT_EMBEDDING_MODEL"

	// Vector Store
	EnvQdrantURL        = "KMUTT_QDRANT_URL"
	EnvQdrantAPIKey     = "KMUTT_QDRANT_API_KEY"
	EnvQdrantCollection = "KMUTT_QDRANT_COLLECTION"

	// Metrics
	EnvMetricsUsername = "KMUTT_METRICS_USERNAME"
	EnvMetricsPassword = "KMUTT_METRICS_PASSWORD"

	// R2 Archive
	EnvR2AccountID       = "KMUTT_R2_ACCOUNT_ID"
	EnvR2AccessKeyID     = "KMUTT_R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "KMUTT_R2_SECRET_ACCESS_KEY"
	EnvR2BucketName      = "KMUTT_R2_BUCKET_NAME"

	// Sentry
	EnvSentryToken       = "KMUTT_SENTRY_TOKEN"
	EnvSentryHost        = "KMUTT_SENTRY_HOST"
	EnvSentryEnvironment = "KMUTT_SENTRY_ENVIRONMENT"
	EnvSentrySampleRate  = "KMUTT_SENTRY_SAMPLE_RATE"

	// Better Stack
	EnvBetterStackToken    = "KMUTT_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "KMUTT_BETTERSTACK_ENDPOINT"
)

// legacyKeys lists unprefixed names still honoured for deployments that
// predate the KMUTT_ prefix.
var legacyKeys = map[string]string{
	EnvQdrantURL:    "QDRANT_URL",
	EnvQdrantAPIKey: "QDRANT_API_KEY",
	EnvGroqAPIKey:   "GROQ_API_KEY",
	EnvPort:         "PORT",
}
