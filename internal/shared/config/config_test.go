package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"LLM_PROVIDER", "LLM_MODEL", "DATABASE_URL", "LLM_CALL_TIMEOUT", "LLM_MAX_RETRIES", "OBJECT_STORE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.LLMProvider != "gemini" {
		t.Fatalf("LLMProvider = %q, want gemini", cfg.LLMProvider)
	}
	if cfg.LLMModel != "gemini-2.0-flash-exp" {
		t.Fatalf("LLMModel = %q", cfg.LLMModel)
	}
	if cfg.DatabaseURL != "sqlite://documents.db" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.LLMCallTimeout != 60*time.Second {
		t.Fatalf("LLMCallTimeout = %s", cfg.LLMCallTimeout)
	}
	if cfg.LLMMaxRetries != 2 {
		t.Fatalf("LLMMaxRetries = %d", cfg.LLMMaxRetries)
	}
	if cfg.ObjectStoreType != "local" {
		t.Fatalf("ObjectStoreType = %q", cfg.ObjectStoreType)
	}
}

func TestGetDuration(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Duration
	}{
		{name: "go duration", raw: "45s", want: 45 * time.Second},
		{name: "bare seconds", raw: "30", want: 30 * time.Second},
		{name: "garbage", raw: "soon", want: time.Minute},
		{name: "negative", raw: "-5s", want: time.Minute},
		{name: "empty", raw: "", want: time.Minute},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.raw)
			if got := getDuration("TEST_DURATION", time.Minute); got != tt.want {
				t.Fatalf("getDuration(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeProvider(t *testing.T) {
	tests := map[string]string{
		"OpenAI ": "openai",
		"gemini":  "gemini",
		"":        "gemini",
		"claude":  "gemini",
	}
	for raw, want := range tests {
		if got := normalizeProvider(raw); got != want {
			t.Fatalf("normalizeProvider(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestLoadWorkerAndRateLimitSettings(t *testing.T) {
	t.Setenv("SQS_VISIBILITY_TIMEOUT", "120")
	t.Setenv("UPLOAD_RATE_PER_MINUTE", "12")
	t.Setenv("UPLOAD_BURST", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")
	t.Setenv("RATE_LIMIT_BURST", "20")
	t.Setenv("ENV", "prod")

	cfg := Load()
	if cfg.SQSVisibilityTimeout != 2*time.Minute {
		t.Fatalf("SQSVisibilityTimeout = %s", cfg.SQSVisibilityTimeout)
	}
	if cfg.UploadRatePerMinute != 12 || cfg.UploadBurst != 5 {
		t.Fatalf("upload limits = %d/%d", cfg.UploadRatePerMinute, cfg.UploadBurst)
	}
	if cfg.RateLimitPerMinute != 300 || cfg.RateLimitBurst != 20 {
		t.Fatalf("default limits = %d/%d", cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}
	if cfg.Env != "production" || cfg.IsDevLike() {
		t.Fatalf("Env = %q, IsDevLike = %v", cfg.Env, cfg.IsDevLike())
	}
}
