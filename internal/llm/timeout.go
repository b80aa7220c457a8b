package llm

import (
	"context"
	"encoding/json"
	"time"

	"loan-intake/internal/documents"
)

// WithTimeout bounds every call on base by d. Under WithRetry each attempt
// gets its own deadline.
func WithTimeout(base Gateway, d time.Duration) Gateway {
	if d <= 0 {
		return base
	}
	return &timeoutGateway{base: base, timeout: d}
}

type timeoutGateway struct {
	base    Gateway
	timeout time.Duration
}

func (g *timeoutGateway) Classify(ctx context.Context, img documents.Image, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.base.Classify(ctx, img, prompt)
}

func (g *timeoutGateway) Extract(ctx context.Context, img documents.Image, schema ResponseSchema, instructions string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.base.Extract(ctx, img, schema, instructions)
}
