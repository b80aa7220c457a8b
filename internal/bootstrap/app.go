package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"

	"loan-intake/internal/export"
	"loan-intake/internal/intake"
	"loan-intake/internal/llm"
	"loan-intake/internal/llm/gemini"
	"loan-intake/internal/llm/openai"
	"loan-intake/internal/queue"
	"loan-intake/internal/records"
	"loan-intake/internal/services/health"
	"loan-intake/internal/shared/config"
	"loan-intake/internal/shared/server"
	"loan-intake/internal/shared/storage/db"
	"loan-intake/internal/shared/storage/object"
	localstore "loan-intake/internal/shared/storage/object/local"
	s3store "loan-intake/internal/shared/storage/object/s3"
	"loan-intake/internal/shared/telemetry"
	"loan-intake/internal/uploads"
	"loan-intake/internal/workerproc"
)

// App holds shared dependencies.
type App struct {
	Config  config.Config
	DB      *sql.DB
	Dialect db.Dialect
	Records records.Store
	Objects object.Store
	Gateway llm.Gateway
	Intake  *intake.Service
	Export  *export.Service
	Queue   queue.Client
	SQS     queue.SQSAPI
	Uploads *uploads.Handler
	Router  *gin.Engine
}

// Storage is the subset of App that needs no model provider.
type Storage struct {
	DB      *sql.DB
	Dialect db.Dialect
	Records records.Store
}

// Close releases the database handle.
func (s Storage) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Close releases held resources.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	return Storage{DB: a.DB}.Close()
}

// Build prepares every dependency and the HTTP router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	storage, err := BuildStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	gw, err := BuildGateway(ctx, cfg)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	app := &App{
		Config:  cfg,
		DB:      storage.DB,
		Dialect: storage.Dialect,
		Records: storage.Records,
		Gateway: gw,
		Intake:  intake.NewService(gw, storage.Records),
		Export:  export.NewService(storage.Records),
	}
	if err := buildObjects(ctx, app); err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := buildQueue(ctx, app); err != nil {
		_ = app.Close()
		return nil, err
	}

	var pinger health.Pinger
	if app.DB != nil {
		pinger = app.DB
	}
	handlers := []server.RouteRegistrar{intake.NewHandler(app.Intake, app.Records, app.Export)}
	if app.Uploads != nil {
		handlers = append(handlers, app.Uploads)
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:   cfg,
		Health:   health.NewService(pinger, cfg.LLMProvider),
		Handlers: handlers,
	})
	return app, nil
}

// BuildStorage connects the records store. Outside production a failed
// connection falls back to the memory store.
func BuildStorage(ctx context.Context, cfg config.Config) (Storage, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" || strings.EqualFold(cfg.DatabaseURL, "memory") {
		if !cfg.IsDevLike() {
			return Storage{}, errors.New("DATABASE_URL is required")
		}
		telemetry.Warn("bootstrap.memory_store", map[string]any{"reason": "DATABASE_URL empty"})
		return Storage{Records: records.NewMemoryStore()}, nil
	}

	sqlDB, dialect, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_store", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return Storage{Records: records.NewMemoryStore()}, nil
		}
		return Storage{}, err
	}
	store, err := records.NewSQLStore(sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return Storage{}, err
	}
	return Storage{DB: sqlDB, Dialect: dialect, Records: store}, nil
}

// BuildGateway constructs the configured provider wrapped with per-call
// timeouts and retries.
func BuildGateway(ctx context.Context, cfg config.Config) (llm.Gateway, error) {
	var base llm.Gateway
	switch cfg.LLMProvider {
	case "openai":
		c, err := openai.NewClient(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMCallTimeout,
		})
		if err != nil {
			return nil, err
		}
		base = c
	default:
		gcfg := gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMCallTimeout,
		}
		if cfg.GeminiUseADC {
			ts, err := gemini.ADCTokenSource(ctx)
			if err != nil {
				return nil, err
			}
			gcfg.APIKey = ""
			gcfg.TokenSource = ts
		}
		c, err := gemini.NewClient(gcfg)
		if err != nil {
			return nil, err
		}
		base = c
	}

	timed := llm.WithTimeout(base, cfg.LLMCallTimeout)
	return llm.WithRetry(timed, llm.RetryPolicy{
		MaxRetries: cfg.LLMMaxRetries,
		BaseDelay:  cfg.LLMRetryBaseDelay,
		MaxDelay:   cfg.LLMRetryMaxDelay,
	}), nil
}

// BuildObjects returns the configured object store.
func BuildObjects(ctx context.Context, cfg config.Config) (object.Store, error) {
	app := &App{Config: cfg}
	if err := buildObjects(ctx, app); err != nil {
		return nil, err
	}
	return app.Objects, nil
}

func buildObjects(ctx context.Context, app *App) error {
	cfg := app.Config
	if cfg.ObjectStoreType != "s3" {
		app.Objects = localstore.New(cfg.LocalStoreDir)
		return nil
	}
	if strings.TrimSpace(cfg.S3Bucket) == "" {
		return fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
	}
	awsCfg, err := loadAWS(ctx, cfg)
	if err != nil {
		return err
	}
	client := s3.NewFromConfig(awsCfg)
	app.Objects = s3store.NewWithClient(client, cfg.S3Bucket, cfg.S3Prefix, cfg.S3KMSKeyID)
	app.Uploads = uploads.NewHandler(s3.NewPresignClient(client), cfg.S3Bucket, cfg.S3Prefix, nil)
	return nil
}

func buildQueue(ctx context.Context, app *App) error {
	cfg := app.Config
	if strings.TrimSpace(cfg.SQSQueueURL) == "" {
		return nil
	}
	client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
	if err != nil {
		return err
	}
	app.Queue = client
	app.SQS = client.API
	if app.Uploads != nil {
		app.Uploads.Queue = client
	}
	return nil
}

func loadAWS(ctx context.Context, cfg config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if r := strings.TrimSpace(cfg.AWSRegion); r != "" {
		opts = append(opts, awsconfig.WithRegion(r))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// Worker builds the SQS worker over the app's pipeline. It requires
// SQS_QUEUE_URL.
func (a *App) Worker() (*workerproc.Worker, error) {
	if a.SQS == nil {
		return nil, errors.New("SQS_QUEUE_URL is required")
	}
	return &workerproc.Worker{
		SQS:               a.SQS,
		QueueURL:          a.Config.SQSQueueURL,
		Handler:           &workerproc.Handler{Objects: a.Objects, Pipeline: a.Intake},
		Concurrency:       a.Config.WorkerConcurrency,
		VisibilityTimeout: a.Config.SQSVisibilityTimeout,
		ShutdownTimeout:   a.Config.ShutdownTimeout,
	}, nil
}
