package intake

import (
	"context"
	"errors"
	"net/http"

	"loan-intake/internal/classify"
	"loan-intake/internal/documents"
	"loan-intake/internal/extraction"
	"loan-intake/internal/llm"
	"loan-intake/internal/records"
)

// Stable error codes reported by the API, the CLI and in metrics.
const (
	CodeGateway          = "gateway_error"
	CodeUnknownType      = "unknown_document_type"
	CodeMalformed        = "malformed_response"
	CodeSchemaValidation = "schema_validation_error"
	CodePersistence      = "persistence_error"
	CodeInvalidDocument  = "invalid_document"
	CodeInternal         = "internal_error"
)

// ErrorCode maps a pipeline error to its stable code.
func ErrorCode(err error) string {
	var (
		gwErr      *llm.GatewayError
		unknownErr *classify.UnknownDocumentTypeError
		malformed  *extraction.MalformedResponseError
		schemaErr  *extraction.SchemaValidationError
		persistErr *records.PersistenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unknownErr):
		return CodeUnknownType
	case errors.As(err, &malformed):
		return CodeMalformed
	case errors.As(err, &schemaErr):
		return CodeSchemaValidation
	case errors.As(err, &persistErr):
		return CodePersistence
	case errors.As(err, &gwErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return CodeGateway
	case errors.Is(err, documents.ErrEmptyImage),
		errors.Is(err, documents.ErrTooLarge),
		errors.Is(err, documents.ErrUnsupportedMedia),
		errors.Is(err, documents.ErrInvalidPDF):
		return CodeInvalidDocument
	default:
		return CodeInternal
	}
}

// HTTPStatus maps a pipeline error to a response status.
func HTTPStatus(err error) int {
	switch ErrorCode(err) {
	case CodeUnknownType, CodeSchemaValidation:
		return http.StatusUnprocessableEntity
	case CodeMalformed:
		return http.StatusBadGateway
	case CodeGateway:
		if isTimeout(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case CodeInvalidDocument:
		if errors.Is(err, documents.ErrTooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		if errors.Is(err, documents.ErrUnsupportedMedia) {
			return http.StatusUnsupportedMediaType
		}
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Details returns machine-readable context for an error response, or nil.
func Details(err error) map[string]any {
	var (
		schemaErr  *extraction.SchemaValidationError
		persistErr *records.PersistenceError
		gwErr      *llm.GatewayError
	)
	switch {
	case errors.As(err, &schemaErr):
		return map[string]any{"schema": schemaErr.Schema, "field": schemaErr.Field, "reason": schemaErr.Reason}
	case errors.As(err, &persistErr):
		d := map[string]any{"table": persistErr.Table}
		if persistErr.Column != "" {
			d["column"] = persistErr.Column
		}
		return d
	case errors.As(err, &gwErr):
		d := map[string]any{"provider": gwErr.Provider, "op": gwErr.Op, "temporary": gwErr.Temporary()}
		if gwErr.StatusCode != 0 {
			d["upstreamStatus"] = gwErr.StatusCode
		}
		return d
	}
	return nil
}

func isTimeout(err error) bool {
	var gwErr *llm.GatewayError
	if errors.As(err, &gwErr) && gwErr.Timeout {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
