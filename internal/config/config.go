package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	SessionsTable       string
	TrainingCorpusBucket string

	GeminiAPIKey   string
	GeminiModelID  string
	BedrockModelID string

	AdminJWTSecret   string
	FieldCryptSecret string

	CORSAllowedOrigins []string
	WebhookRate        float64
	WebhookBurst       int

	JaneAppBaseURL string

	// ClinikoShards is the ordered list of regional shards probed when a
	// clinic's Cliniko region is unknown. Deployment concern, not hard-coded.
	ClinikoShards []string

	ConfigCacheTTL   time.Duration
	AdapterCacheTTL  time.Duration
	ProbeTimeout     time.Duration
	ModelTimeout     time.Duration
	BookingTimeout   time.Duration
	ReviewIdleAfter  time.Duration
	HistoryWindow    int
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		SessionsTable:        getEnv("SESSIONS_TABLE", "conversation_sessions"),
		TrainingCorpusBucket: getEnv("TRAINING_CORPUS_BUCKET", ""),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),

		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		FieldCryptSecret: getEnv("FIELD_CRYPT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		WebhookRate:        getEnvAsFloat("WEBHOOK_RATE", 5),
		WebhookBurst:       getEnvAsInt("WEBHOOK_BURST", 20),

		JaneAppBaseURL: getEnv("JANEAPP_BASE_URL", ""),

		ClinikoShards: getEnvAsList("CLINIKO_SHARDS", []string{"uk2", "uk1", "au1", "au2", "au3", "au4", "ca1", "us1"}),

		ConfigCacheTTL:  getEnvAsDuration("CONFIG_CACHE_TTL", 5*time.Minute),
		AdapterCacheTTL: getEnvAsDuration("ADAPTER_CACHE_TTL", 5*time.Minute),
		ProbeTimeout:    getEnvAsDuration("PROBE_TIMEOUT", 10*time.Second),
		ModelTimeout:    getEnvAsDuration("MODEL_TIMEOUT", 30*time.Second),
		BookingTimeout:  getEnvAsDuration("BOOKING_TIMEOUT", 15*time.Second),
		ReviewIdleAfter: getEnvAsDuration("REVIEW_IDLE_AFTER", 30*time.Minute),
		HistoryWindow:   getEnvAsInt("HISTORY_WINDOW", 12),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
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

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
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
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
