package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"log"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"loan-intake/internal/bootstrap"
	"loan-intake/internal/shared/config"
	"loan-intake/internal/shared/telemetry"
	"loan-intake/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	proc     *workerproc.Handler
)

func initApp() {
	cfg := config.Load()
	telemetry.Init(cfg.LogLevel, cfg.LogFormat)
	app, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		initErr = err
		return
	}
	proc = &workerproc.Handler{Objects: app.Objects, Pipeline: app.Intake}
}

// handler reports only retryable failures back to SQS; anything else is
// logged and dropped so a poison message is not redelivered.
func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		log.Printf("bootstrap error: %v", initErr)
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}

	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		fields := map[string]any{"sqs_message_id": record.MessageId}
		msg, _, err := workerproc.ParseMessage(record.Body)
		if err != nil {
			fields["error"] = err.Error()
			telemetry.Error("lambda.worker.invalid_message", fields)
			continue
		}
		fields["key"] = msg.Key
		out, err := proc.Handle(ctx, msg)
		if err != nil {
			fields["error"] = err.Error()
			if workerproc.Retryable(err) {
				telemetry.Warn("lambda.worker.retry", fields)
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
				continue
			}
			telemetry.Error("lambda.worker.dropped", fields)
			continue
		}
		fields["record_id"] = out.RecordID
		fields["document_type"] = string(out.DocumentType)
		telemetry.Info("lambda.worker.completed", fields)
	}

	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func main() {
	lambda.Start(handler)
}
