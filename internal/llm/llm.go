package llm

import (
	"context"
	"encoding/json"

	"loan-intake/internal/documents"
)

// Gateway abstracts vision model providers. Every call is independent: the
// image is staged with the provider and then referenced in one generation.
type Gateway interface {
	// Classify returns the model's raw free-text answer to prompt.
	Classify(ctx context.Context, img documents.Image, prompt string) (string, error)
	// Extract asks for a JSON object conforming to schema and returns the
	// raw response text unparsed.
	Extract(ctx context.Context, img documents.Image, schema ResponseSchema, instructions string) (json.RawMessage, error)
}

// ResponseSchema is a JSON Schema object describing the structured output.
type ResponseSchema map[string]any

// Operation names used in errors and metrics.
const (
	OpClassify = "classify"
	OpExtract  = "extract"
	OpUpload   = "upload"
)
