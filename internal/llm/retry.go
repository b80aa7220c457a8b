package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"

	"loan-intake/internal/documents"
	"loan-intake/internal/shared/telemetry"
)

// RetryPolicy bounds retries of temporary gateway failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy mirrors the config defaults.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}

type retryingGateway struct {
	base   Gateway
	policy RetryPolicy
}

// WithRetry decorates base so temporary GatewayErrors are retried with
// exponential backoff. Every other error is returned on first occurrence.
func WithRetry(base Gateway, policy RetryPolicy) Gateway {
	if base == nil || policy.MaxRetries <= 0 {
		return base
	}
	return retryingGateway{base: base, policy: policy}
}

func (r retryingGateway) Classify(ctx context.Context, img documents.Image, prompt string) (string, error) {
	return retry(ctx, r.policy, OpClassify, func() (string, error) {
		return r.base.Classify(ctx, img, prompt)
	})
}

func (r retryingGateway) Extract(ctx context.Context, img documents.Image, schema ResponseSchema, instructions string) (json.RawMessage, error) {
	return retry(ctx, r.policy, OpExtract, func() (json.RawMessage, error) {
		return r.base.Extract(ctx, img, schema, instructions)
	})
}

func retry[T any](ctx context.Context, policy RetryPolicy, op string, call func() (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		out, err := call()
		if err != nil && !IsTemporary(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}
	notify := func(err error, wait time.Duration) {
		telemetry.Warn("llm.retry", map[string]any{
			"op":      op,
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
	}
	return backoff.RetryNotifyWithData(operation, policy.backOff(ctx), notify)
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	if p.MaxDelay > 0 {
		exp.MaxInterval = p.MaxDelay
	}
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxRetries)), ctx)
}
