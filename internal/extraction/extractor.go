package extraction

import (
	"context"
	"time"

	"loan-intake/internal/documents"
	"loan-intake/internal/llm"
	"loan-intake/internal/shared/metrics"
	"loan-intake/internal/shared/telemetry"
)

// Extractor runs one schema-constrained extraction.
type Extractor struct {
	Schema  Schema
	Gateway llm.Gateway
}

// Extract invokes the gateway in structured mode and validates the answer.
// It returns either a complete Record or an error, never a partial record.
func (e Extractor) Extract(ctx context.Context, img documents.Image) (Record, error) {
	start := time.Now()
	raw, err := e.Gateway.Extract(ctx, img, e.Schema.ResponseSchema(), e.Schema.Instructions())
	metrics.ObserveStage("extract", start)
	if err != nil {
		metrics.IncGatewayCall(llm.OpExtract, "error")
		return Record{}, err
	}
	metrics.IncGatewayCall(llm.OpExtract, "ok")

	rec, err := Parse(e.Schema, raw)
	if err != nil {
		telemetry.Warn("extraction.rejected", map[string]any{
			"schema":    e.Schema.Name,
			"error":     err.Error(),
			"raw_bytes": len(raw),
		})
		return Record{}, err
	}
	return rec, nil
}
