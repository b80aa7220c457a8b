package object

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewKey(t *testing.T) {
	now := time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)
	key, err := NewKey("scans/id front.png", now)
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	if !strings.HasPrefix(key, "incoming/2026/10/16/") {
		t.Fatalf("unexpected key prefix: %s", key)
	}
	if !strings.HasSuffix(key, "_id_front.png") {
		t.Fatalf("unexpected key suffix: %s", key)
	}
	if _, err := NewKey("../x.png", now); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "incoming/a.png", want: "incoming/a.png"},
		{key: "incoming//b/../a.png", want: "incoming/a.png"},
		{key: `incoming\a.png`, want: "incoming/a.png"},
		{key: "../secret", wantErr: true},
		{key: "/etc/passwd", wantErr: true},
		{key: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.key)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("CleanKey(%q) err = %v, want ErrInvalidKey", tt.key, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("CleanKey(%q) = %q, %v; want %q", tt.key, got, err, tt.want)
		}
	}
}
