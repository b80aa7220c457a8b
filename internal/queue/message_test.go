package queue

import (
	"reflect"
	"testing"
	"time"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := NewMessage("incoming/2026/10/16/abc_bill.png", "request-456", time.Date(2026, time.October, 16, 22, 0, 0, 0, time.UTC))
	if msg.EnqueuedAt != "2026-10-16T22:00:00Z" || msg.Version != MessageVersion {
		t.Fatalf("unexpected message: %+v", msg)
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte("{bad-json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
