package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	LogFormat   string
	DatabaseURL string
	// CatalogFile seeds the in-memory catalog when DatabaseURL is empty.
	CatalogFile string
	// KnowledgeFile seeds brand notes when Redis is not configured.
	KnowledgeFile string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion               string
	AWSAccessKeyID          string
	AWSSecretAccessKey      string
	AWSEndpointOverride     string
	BedrockModelID          string
	BedrockEmbeddingModelID string

	// Gemini is used as the fallback completion provider when configured.
	GeminiAPIKey  string
	GeminiModelID string

	// LLM request shaping
	LLMTemperature      float32
	LLMMaxTokens        int32
	LLMStreaming        bool
	ClassifierMaxTokens int32
	RAGTopK             int

	// Session and turn handling
	// HistoryWindow is the number of recent exchanges (message pairs) quoted in prompts.
	HistoryWindow         int
	SessionTTL            time.Duration
	TurnTimeout           time.Duration
	ExtractionRetryDelay  time.Duration
	ExtractionConcurrency int
	MessageMaxLength      int
	MatcherMode           string

	// HTTP surface
	CORSAllowedOrigins []string
	ChatRateLimitRPS   float64
	ChatRateLimitBurst int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		CatalogFile:   getEnv("CATALOG_FILE", "testdata/catalog.json"),
		KnowledgeFile: getEnv("KNOWLEDGE_FILE", "testdata/brand_knowledge.json"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:               getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:     getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BedrockModelID:          getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", ""),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		LLMTemperature:      getEnvAsFloat32("LLM_TEMPERATURE", 0.4),
		LLMMaxTokens:        int32(getEnvAsInt("LLM_MAX_TOKENS", 400)),
		LLMStreaming:        getEnvAsBool("LLM_STREAMING", true),
		ClassifierMaxTokens: int32(getEnvAsInt("CLASSIFIER_MAX_TOKENS", 60)),
		RAGTopK:             getEnvAsInt("RAG_TOP_K", 4),

		HistoryWindow:         getEnvAsInt("HISTORY_WINDOW", 6),
		SessionTTL:            getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		TurnTimeout:           getEnvAsDuration("TURN_TIMEOUT", 45*time.Second),
		ExtractionRetryDelay:  getEnvAsDuration("EXTRACTION_RETRY_DELAY", 300*time.Millisecond),
		ExtractionConcurrency: getEnvAsInt("EXTRACTION_CONCURRENCY", 4),
		MessageMaxLength:      getEnvAsInt("MESSAGE_MAX_LENGTH", 1000),
		MatcherMode:           strings.ToLower(strings.TrimSpace(getEnv("MATCHER_MODE", "rules"))),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		ChatRateLimitRPS:   getEnvAsFloat64("CHAT_RATE_LIMIT_RPS", 1),
		ChatRateLimitBurst: getEnvAsInt("CHAT_RATE_LIMIT_BURST", 5),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	return float32(getEnvAsFloat64(key, float64(defaultValue)))
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
