package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"

	"loan-intake/internal/bootstrap"
	"loan-intake/internal/shared/config"
	"loan-intake/internal/shared/server/middleware"
	"loan-intake/internal/shared/telemetry"
)

var (
	initOnce sync.Once
	initErr  error
	adapter  *ginadapter.GinLambdaV2
)

func initApp() {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel, cfg.LogFormat)
	app, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		initErr = err
		return
	}
	adapter = ginadapter.NewV2(app.Router)
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.http.bootstrap_failed", map[string]any{"error": initErr.Error()})
		body, _ := json.Marshal(map[string]any{
			"error": map[string]string{"code": "internal_error", "message": "service unavailable"},
		})
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusServiceUnavailable,
			Body:       string(body),
			Headers:    map[string]string{"Content-Type": "application/json"},
		}, nil
	}

	// Reuse the API Gateway request id so access logs line up with gateway logs.
	if req.RequestContext.RequestID != "" {
		if req.Headers == nil {
			req.Headers = map[string]string{}
		}
		key := strings.ToLower(middleware.RequestIDHeader)
		if _, ok := req.Headers[key]; !ok {
			req.Headers[key] = req.RequestContext.RequestID
		}
	}
	return adapter.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(handler)
}
