package intake

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"loan-intake/internal/classify"
	"loan-intake/internal/documents"
	"loan-intake/internal/extraction"
	"loan-intake/internal/llm"
	"loan-intake/internal/records"
	"loan-intake/internal/shared/metrics"
	"loan-intake/internal/shared/telemetry"
)

// Classifier resolves an image to a document type.
type Classifier interface {
	Classify(ctx context.Context, img documents.Image) (documents.Type, error)
}

// Extractor runs the extraction for an already classified image.
type Extractor interface {
	Extract(ctx context.Context, t documents.Type, img documents.Image) (extraction.Result, error)
}

// Outcome describes one successfully stored document.
type Outcome struct {
	RequestID    string            `json:"requestId"`
	DocumentType documents.Type    `json:"documentType"`
	Family       documents.Family  `json:"family"`
	RecordID     int64             `json:"recordId"`
	Result       extraction.Result `json:"extracted"`
	Duration     time.Duration     `json:"-"`
}

// Service runs classify, extract and persist for one document.
type Service struct {
	Classifier Classifier
	Extractor  Extractor
	Store      records.Store
	Now        func() time.Time
}

// NewService wires a classifier and extraction router over one gateway.
func NewService(gw llm.Gateway, store records.Store) *Service {
	c := classify.New(gw)
	return &Service{
		Classifier: c,
		Extractor:  extraction.NewRouter(c, gw),
		Store:      store,
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request ID that Process reports in its Outcome.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Process classifies img, extracts its fields and appends one row. A failure
// at any stage stops the pipeline and nothing is written. Errors are returned
// as produced so callers can inspect them with ErrorCode.
func (s *Service) Process(ctx context.Context, img documents.Image) (Outcome, error) {
	start := s.now()
	out := Outcome{RequestID: requestIDFrom(ctx)}
	fields := map[string]any{
		"request_id": out.RequestID,
		"file":       img.Name,
		"mime":       img.MIME,
		"bytes":      img.Size(),
	}

	t, err := s.classify(ctx, img)
	if err != nil {
		return out, s.fail(fields, "", "intake.classify.failed", err)
	}
	out.DocumentType = t
	out.Family = t.Family()
	fields["document_type"] = string(t)
	telemetry.Info("intake.classify.ok", fields)

	res, err := s.Extractor.Extract(ctx, t, img)
	if err != nil {
		return out, s.fail(fields, t, "intake.extract.failed", err)
	}

	// A cancelled caller gets no row even if extraction finished.
	if err := ctx.Err(); err != nil {
		return out, s.fail(fields, t, "intake.cancelled", err)
	}

	persistStart := time.Now()
	id, err := records.Persist(ctx, s.Store, t, res)
	metrics.ObserveStage("persist", persistStart)
	if err != nil {
		return out, s.fail(fields, t, "intake.persist.failed", err)
	}

	out.RecordID = id
	out.Result = res
	out.Duration = s.now().Sub(start)
	metrics.IncDocument(string(t), "ok")
	metrics.ObserveStage("total", start)
	fields["record_id"] = id
	fields["family"] = string(out.Family)
	fields["elapsed_ms"] = out.Duration.Milliseconds()
	telemetry.Info("intake.stored", fields)
	return out, nil
}

func (s *Service) classify(ctx context.Context, img documents.Image) (documents.Type, error) {
	start := time.Now()
	t, err := s.Classifier.Classify(ctx, img)
	metrics.ObserveStage("classify", start)

	var unknown *classify.UnknownDocumentTypeError
	switch {
	case err == nil, errors.As(err, &unknown):
		metrics.IncGatewayCall(llm.OpClassify, "ok")
	default:
		metrics.IncGatewayCall(llm.OpClassify, "error")
	}
	return t, err
}

func (s *Service) fail(fields map[string]any, t documents.Type, event string, err error) error {
	code := ErrorCode(err)
	metrics.IncDocument(string(t), code)
	fields["code"] = code
	fields["error"] = err.Error()
	telemetry.Warn(event, fields)
	return err
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
