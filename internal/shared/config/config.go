package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	DatabaseURL string

	LLMProvider       string
	LLMModel          string
	GeminiAPIKey      string
	GeminiBaseURL     string
	GeminiUseADC      bool
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	LLMCallTimeout    time.Duration
	LLMMaxRetries     int
	LLMRetryBaseDelay time.Duration
	LLMRetryMaxDelay  time.Duration

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	S3KMSKeyID      string
	SQSQueueURL     string

	WorkerConcurrency    int
	SQSVisibilityTimeout time.Duration
	ShutdownTimeout      time.Duration

	UploadRatePerMinute int
	UploadBurst         int
	RateLimitPerMinute  int
	RateLimitBurst      int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files; real env vars always win.
	if files := existing(".env", "cmd/.env"); len(files) > 0 {
		_ = godotenv.Load(files...)
	}

	provider := normalizeProvider(getEnv("LLM_PROVIDER", "gemini"))

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             normalizeEnv(getEnv("ENV", "dev")),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:8501")),

		DatabaseURL: getEnv("DATABASE_URL", "sqlite://documents.db"),

		LLMProvider:       provider,
		LLMModel:          getEnv("LLM_MODEL", defaultModel(provider)),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiUseADC:      getBool("GEMINI_USE_ADC", false),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		LLMCallTimeout:    getDuration("LLM_CALL_TIMEOUT", 60*time.Second),
		LLMMaxRetries:     getInt("LLM_MAX_RETRIES", 2),
		LLMRetryBaseDelay: getDuration("LLM_RETRY_BASE_DELAY", 500*time.Millisecond),
		LLMRetryMaxDelay:  getDuration("LLM_RETRY_MAX_DELAY", 8*time.Second),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		S3KMSKeyID:      getEnv("S3_KMS_KEY_ID", ""),
		SQSQueueURL:     getEnv("SQS_QUEUE_URL", ""),

		WorkerConcurrency:    getInt("WORKER_CONCURRENCY", 2),
		SQSVisibilityTimeout: getDuration("SQS_VISIBILITY_TIMEOUT", 5*time.Minute),
		ShutdownTimeout:      getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		UploadRatePerMinute: getInt("UPLOAD_RATE_PER_MINUTE", 30),
		UploadBurst:         getInt("UPLOAD_BURST", 5),
		RateLimitPerMinute:  getInt("RATE_LIMIT_PER_MINUTE", 300),
		RateLimitBurst:      getInt("RATE_LIMIT_BURST", 60),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}
}

// IsDevLike reports whether the environment tolerates fallbacks such as the
// memory store.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

func existing(paths ...string) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

// getDuration accepts Go durations ("45s") or a bare number of seconds.
func getDuration(key string, def time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	default:
		return "gemini"
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	default:
		return "gemini-2.0-flash-exp"
	}
}
