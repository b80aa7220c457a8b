package classify

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"loan-intake/internal/documents"
	"loan-intake/internal/llm"
	"loan-intake/internal/shared/util"
)

//go:embed prompts/classify.txt
var prompt string

// Prompt returns the fixed classification prompt.
func Prompt() string { return prompt }

// UnknownDocumentTypeError is returned when the normalized model answer is not
// one of the known labels.
type UnknownDocumentTypeError struct {
	Raw string
}

func (e *UnknownDocumentTypeError) Error() string {
	return fmt.Sprintf("unknown document type %q", util.Truncate(e.Raw, 80))
}

// Normalize trims surrounding whitespace and lower-cases the answer.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Classifier maps an image to a documents.Type with one gateway call.
type Classifier struct {
	Gateway llm.Gateway
}

// New constructs a Classifier.
func New(gw llm.Gateway) *Classifier {
	return &Classifier{Gateway: gw}
}

// Classify asks the gateway for a label and matches it exactly after
// normalization. Gateway errors are returned unchanged.
func (c *Classifier) Classify(ctx context.Context, img documents.Image) (documents.Type, error) {
	raw, err := c.Gateway.Classify(ctx, img, prompt)
	if err != nil {
		return "", err
	}
	return Match(raw)
}

// Match normalizes raw and resolves it to a documents.Type.
func Match(raw string) (documents.Type, error) {
	t, ok := documents.ParseType(Normalize(raw))
	if !ok {
		return "", &UnknownDocumentTypeError{Raw: raw}
	}
	return t, nil
}
