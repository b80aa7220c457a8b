package health

import (
	"context"
	"errors"
	"testing"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestStatus(t *testing.T) {
	tests := []struct {
		name   string
		db     Pinger
		wantOK bool
		wantDB string
	}{
		{name: "memory store", db: nil, wantOK: true, wantDB: "memory"},
		{name: "database up", db: pingerFunc(func(context.Context) error { return nil }), wantOK: true, wantDB: "ok"},
		{name: "database down", db: pingerFunc(func(context.Context) error { return errors.New("refused") }), wantOK: false, wantDB: "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.db, "gemini")
			body, ok := svc.Status(context.Background())
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if body["database"] != tt.wantDB {
				t.Fatalf("database = %v, want %s", body["database"], tt.wantDB)
			}
			if body["provider"] != "gemini" {
				t.Fatalf("provider = %v", body["provider"])
			}
		})
	}
}
