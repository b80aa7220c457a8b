package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"loan-intake/internal/shared/util"
)

// GatewayError reports a failed provider call: transport failure, timeout,
// non-success status or an empty answer.
type GatewayError struct {
	Provider   string
	Op         string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed", e.Provider, e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (http status %d)", e.StatusCode)
	}
	if e.Timeout {
		b.WriteString(" (timeout)")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same call may succeed.
func (e *GatewayError) Temporary() bool {
	if e.Timeout {
		return true
	}
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	case e.StatusCode != 0:
		return false
	}
	return isTransient(e.Err)
}

// ErrEmptyResponse is wrapped by a GatewayError when the provider answered
// with no text.
var ErrEmptyResponse = errors.New("empty response")

// NewTransportError wraps an error returned by the HTTP client.
func NewTransportError(provider, op string, err error) *GatewayError {
	return &GatewayError{Provider: provider, Op: op, Timeout: isTimeout(err), Err: err}
}

// NewStatusError wraps a non-2xx provider response. body is truncated.
func NewStatusError(provider, op string, status int, body []byte) *GatewayError {
	msg := util.Truncate(strings.TrimSpace(string(body)), 512)
	return &GatewayError{Provider: provider, Op: op, StatusCode: status, Err: errors.New(msg)}
}

// IsTemporary reports whether err is a GatewayError worth retrying.
func IsTemporary(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Temporary()
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if isTimeout(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "connection refused", "connection closed", "broken pipe", "tls handshake timeout", "eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
