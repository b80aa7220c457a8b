package workerproc

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"loan-intake/internal/intake"
	"loan-intake/internal/queue"
	"loan-intake/internal/shared/metrics"
	"loan-intake/internal/shared/telemetry"
)

// Worker long-polls an SQS queue and hands each message to Handler.
type Worker struct {
	SQS               queue.SQSAPI
	QueueURL          string
	Handler           *Handler
	Concurrency       int
	VisibilityTimeout time.Duration
	ShutdownTimeout   time.Duration
	WaitTimeSeconds   int32
}

// Run polls until ctx is cancelled, then waits up to ShutdownTimeout for
// in-flight messages.
func (w *Worker) Run(ctx context.Context) {
	concurrency := w.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	wait := w.WaitTimeSeconds
	if wait <= 0 {
		wait = 20
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"queue":              w.QueueURL,
		"concurrency":        concurrency,
		"visibility_seconds": int(w.VisibilityTimeout.Seconds()),
	})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := w.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.QueueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     wait,
			VisibilityTimeout:   int32(w.VisibilityTimeout.Seconds()),
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
				sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncWorkerMessage("received")
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				// In-flight messages finish even after shutdown starts.
				w.HandleMessage(context.WithoutCancel(ctx), m)
			}(msg)
		}
	}

	telemetry.Info("worker.shutdown", map[string]any{"timeout": w.ShutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	timeout := w.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-waitDone:
	case <-time.After(timeout):
		telemetry.Warn("worker.shutdown_timeout", map[string]any{"timeout": timeout.String()})
	}
}

// HandleMessage processes one SQS message and deletes it unless the failure
// is retryable.
func (w *Worker) HandleMessage(ctx context.Context, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, meta, err := ParseMessage(body)
	if err != nil {
		fields := baseFields(msg, "", "")
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		var missing ErrMissingKey
		if errors.As(err, &missing) && missing.RequestID != "" {
			fields["request_id"] = missing.RequestID
		}
		telemetry.Error("worker.message.invalid", fields)
		if w.deleteMessage(ctx, msg, fields) {
			metrics.IncWorkerMessage("dropped")
		}
		return
	}

	fields := baseFields(msg, decoded.Key, decoded.RequestID)
	telemetry.Info("worker.message.received", fields)

	out, err := w.Handler.Handle(ctx, decoded)
	if err != nil {
		fields["error"] = err.Error()
		fields["code"] = intake.ErrorCode(err)
		if Retryable(err) {
			telemetry.Warn("worker.message.retry", fields)
			metrics.IncWorkerMessage("retry")
			return
		}
		telemetry.Error("worker.message.failed", fields)
		if w.deleteMessage(ctx, msg, fields) {
			metrics.IncWorkerMessage("dropped")
		}
		return
	}

	fields["document_type"] = string(out.DocumentType)
	fields["record_id"] = out.RecordID
	if w.deleteMessage(ctx, msg, fields) {
		telemetry.Info("worker.message.completed", fields)
		metrics.IncWorkerMessage("completed")
	}
}

func (w *Worker) deleteMessage(ctx context.Context, msg sqstypes.Message, fields map[string]any) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields["delete_error"] = "missing receipt handle"
		telemetry.Error("worker.message.delete_failed", fields)
		return false
	}
	if _, err := w.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.QueueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields["delete_error"] = err.Error()
		telemetry.Error("worker.message.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, key, requestID string) map[string]any {
	fields := map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if key != "" {
		fields["key"] = key
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	raw := msg.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}
