package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-intake/internal/records"
	"loan-intake/internal/shared/config"
	localstore "loan-intake/internal/shared/storage/object/local"
	s3store "loan-intake/internal/shared/storage/object/s3"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Port:                "0",
		Env:                 "dev",
		DatabaseURL:         "sqlite://" + filepath.Join(dir, "documents.db"),
		LLMProvider:         "gemini",
		LLMModel:            "gemini-2.0-flash",
		GeminiAPIKey:        "test-key",
		GeminiBaseURL:       "http://127.0.0.1:1",
		LLMCallTimeout:      time.Second,
		ObjectStoreType:     "local",
		LocalStoreDir:       filepath.Join(dir, "objects"),
		WorkerConcurrency:   1,
		ShutdownTimeout:     time.Second,
		UploadRatePerMinute: 30,
		UploadBurst:         5,
		LogLevel:            "error",
		LogFormat:           "json",
	}
}

func TestBuildWiresSQLiteAndRouter(t *testing.T) {
	app, err := Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	require.NotNil(t, app.DB)
	assert.IsType(t, &records.SQLStore{}, app.Records)
	assert.IsType(t, &localstore.Store{}, app.Objects)
	assert.Nil(t, app.Queue)
	assert.Nil(t, app.Uploads)

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	_, err = app.Worker()
	assert.Error(t, err, "worker needs a queue")
}

func TestBuildStorageMemoryFallback(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabaseURL = "memory"
	s, err := BuildStorage(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, s.DB)
	assert.IsType(t, &records.MemoryStore{}, s.Records)
	assert.NoError(t, s.Close())

	cfg.Env = "prod"
	_, err = BuildStorage(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBuildGatewayRequiresCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.GeminiAPIKey = ""
	_, err := BuildGateway(context.Background(), cfg)
	assert.Error(t, err)

	cfg.LLMProvider = "openai"
	cfg.LLMModel = "gpt-4o-mini"
	cfg.OpenAIAPIKey = ""
	_, err = BuildGateway(context.Background(), cfg)
	assert.Error(t, err)

	cfg.OpenAIAPIKey = "sk-test"
	gw, err := BuildGateway(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, gw)
}

func TestBuildS3EnablesUploads(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	cfg := testConfig(t)
	cfg.ObjectStoreType = "s3"
	cfg.AWSRegion = "us-east-1"
	cfg.S3Bucket = "loan-docs"
	cfg.S3Prefix = "intake"

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.IsType(t, &s3store.Store{}, app.Objects)
	require.NotNil(t, app.Uploads)
	assert.Equal(t, "loan-docs", app.Uploads.Bucket)
	assert.Nil(t, app.Uploads.Queue)

	cfg.S3Bucket = ""
	_, err = BuildObjects(context.Background(), cfg)
	assert.Error(t, err)
}
