package workerproc

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-intake/internal/documents"
	"loan-intake/internal/intake"
	"loan-intake/internal/llm"
	"loan-intake/internal/queue"
	"loan-intake/internal/records"
	"loan-intake/internal/shared/storage/object/local"
)

const receiptJSON = `{"Amount_Billed":450,"Bill_Issue_Date":"2024-01-01","Customer_Name":"A. Hassan","Document_Type":"utility_receipt","Service_Provider":"NileElectric"}`

var pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

type fakeSQS struct {
	mu       sync.Mutex
	messages []sqstypes.Message
	deleted  []string
}

func (f *fakeSQS) SendMessage(context.Context, *sqs.SendMessageInput, ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	msgs := f.messages
	f.messages = nil
	f.mu.Unlock()
	if len(msgs) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) deletedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type fixture struct {
	sqs     *fakeSQS
	gw      *llm.ScriptedGateway
	store   *records.MemoryStore
	objects *local.Store
	worker  *Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := &llm.ScriptedGateway{}
	store := records.NewMemoryStore()
	objects := local.New(t.TempDir())
	fake := &fakeSQS{}
	return &fixture{
		sqs:     fake,
		gw:      gw,
		store:   store,
		objects: objects,
		worker: &Worker{
			SQS:      fake,
			QueueURL: "queue",
			Handler:  &Handler{Objects: objects, Pipeline: intake.NewService(gw, store)},
		},
	}
}

func (f *fixture) message(t *testing.T, id, body string) sqstypes.Message {
	t.Helper()
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("r-" + id),
		Body:          aws.String(body),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func (f *fixture) stored(t *testing.T, name string) string {
	t.Helper()
	key, _, err := f.objects.Save(context.Background(), name, bytes.NewReader(pngData))
	require.NoError(t, err)
	return key
}

func encode(t *testing.T, msg queue.Message) string {
	t.Helper()
	payload, err := queue.EncodeMessage(msg)
	require.NoError(t, err)
	return string(payload)
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	f := newFixture(t)
	f.gw.QueueClassify(llm.Reply{Text: "utility_receipt"}).QueueExtract(llm.Reply{Text: receiptJSON})
	key := f.stored(t, "bill.png")

	f.worker.HandleMessage(context.Background(), f.message(t, "m1", encode(t, queue.NewMessage(key, "req-1", time.Now()))))

	assert.Equal(t, []string{"r-m1"}, f.sqs.deletedHandles())
	rows, err := f.store.List(context.Background(), documents.FamilyUtilityReceipt, 10, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWorkerKeepsMessageOnTemporaryGatewayError(t *testing.T) {
	f := newFixture(t)
	f.gw.QueueClassify(llm.Reply{Err: &llm.GatewayError{Provider: "gemini", Op: llm.OpClassify, StatusCode: http.StatusTooManyRequests}})
	key := f.stored(t, "bill.png")

	f.worker.HandleMessage(context.Background(), f.message(t, "m2", encode(t, queue.NewMessage(key, "req-2", time.Now()))))

	assert.Empty(t, f.sqs.deletedHandles())
}

func TestWorkerDeletesOnPermanentFailure(t *testing.T) {
	f := newFixture(t)
	f.gw.QueueClassify(llm.Reply{Text: "hr_letter"}).QueueExtract(llm.Reply{Text: "not json"})
	key := f.stored(t, "letter.png")

	f.worker.HandleMessage(context.Background(), f.message(t, "m3", encode(t, queue.NewMessage(key, "", time.Now()))))

	assert.Equal(t, []string{"r-m3"}, f.sqs.deletedHandles())
	rows, err := f.store.List(context.Background(), documents.FamilyHRLetter, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWorkerDeletesInvalidMessages(t *testing.T) {
	tests := map[string]string{
		"empty body":  "  ",
		"bad json":    "{bad-json",
		"missing key": `{"requestId":"req-9","version":1}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.worker.HandleMessage(context.Background(), f.message(t, "m", body))
			assert.Equal(t, []string{"r-m"}, f.sqs.deletedHandles())
			assert.Empty(t, f.gw.Calls())
		})
	}
}

func TestWorkerMissingObjectIsDropped(t *testing.T) {
	f := newFixture(t)
	f.worker.HandleMessage(context.Background(), f.message(t, "m4", encode(t, queue.NewMessage("incoming/nope.png", "", time.Now()))))
	assert.Equal(t, []string{"r-m4"}, f.sqs.deletedHandles())
}

func TestRunProcessesUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.gw.QueueClassify(llm.Reply{Text: "utility_receipt"}).QueueExtract(llm.Reply{Text: receiptJSON})
	key := f.stored(t, "bill.png")
	f.sqs.messages = []sqstypes.Message{f.message(t, "m5", encode(t, queue.NewMessage(key, "", time.Now())))}
	f.worker.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(f.sqs.deletedHandles()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(ErrProcess{Err: &llm.GatewayError{Timeout: true}}))
	assert.False(t, Retryable(ErrProcess{Err: &llm.GatewayError{StatusCode: http.StatusBadRequest}}))
	assert.True(t, Retryable(ErrFetch{Key: "k", Err: context.DeadlineExceeded}))
}
