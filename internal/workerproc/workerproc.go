package workerproc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"loan-intake/internal/documents"
	"loan-intake/internal/intake"
	"loan-intake/internal/llm"
	"loan-intake/internal/queue"
	"loan-intake/internal/shared/storage/object"
	"loan-intake/internal/shared/util"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	return MessageMeta{BodyLen: len(body), BodySHA: util.Digest([]byte(body))}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingKey indicates a message that names no object.
type ErrMissingKey struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingKey) Error() string { return "missing object key" }

// ErrFetch indicates the object named by a message could not be read.
type ErrFetch struct {
	Key string
	Err error
}

func (e ErrFetch) Error() string { return fmt.Sprintf("fetch %s: %v", e.Key, e.Err) }

func (e ErrFetch) Unwrap() error { return e.Err }

// ErrProcess indicates the pipeline failed after the object was loaded.
type ErrProcess struct {
	Key       string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process document"
	}
	return "process document: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.Key) == "" {
		return msg, meta, ErrMissingKey{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// Handler loads the object a message names and runs the pipeline on it.
type Handler struct {
	Objects  object.Store
	Pipeline intake.Processor
}

// Handle processes one decoded message.
func (h *Handler) Handle(ctx context.Context, msg queue.Message) (intake.Outcome, error) {
	if h == nil || h.Objects == nil || h.Pipeline == nil {
		return intake.Outcome{}, errors.New("worker handler not configured")
	}
	rc, err := h.Objects.Open(ctx, msg.Key)
	if err != nil {
		return intake.Outcome{}, ErrFetch{Key: msg.Key, Err: err}
	}
	defer rc.Close()

	img, err := documents.ReadImage(msg.Key, rc)
	if err != nil {
		return intake.Outcome{}, ErrProcess{Key: msg.Key, RequestID: msg.RequestID, Err: err}
	}

	ctx = intake.WithRequestID(ctx, msg.RequestID)
	out, err := h.Pipeline.Process(ctx, img)
	if err != nil {
		return out, ErrProcess{Key: msg.Key, RequestID: msg.RequestID, Err: err}
	}
	return out, nil
}

// Retryable reports whether a failed message should stay on the queue for
// redelivery. Only temporary gateway failures and object fetch failures
// qualify; everything else fails the same way on every attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var fetchErr ErrFetch
	if errors.As(err, &fetchErr) {
		return !errors.Is(err, object.ErrInvalidKey) && !errors.Is(err, fs.ErrNotExist)
	}
	return llm.IsTemporary(err)
}
