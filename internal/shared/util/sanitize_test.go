package util

import (
	"errors"
	"strings"
	"testing"
)

func TestSafeObjectName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "id-front.png", want: "id-front.png"},
		{in: " scans/hr letter.pdf ", want: "hr_letter.pdf"},
		{in: `c:\temp\bill.jpg`, want: "bill.jpg"},
		{in: "électricité (mars).JPG", want: "lectricit_mars.JPG"},
		{in: "__receipt__.png", want: "receipt.png"},
		{in: "../etc/passwd", wantErr: true},
		{in: "scans/../../x.png", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "(((.png", wantErr: true},
	}
	for _, tt := range tests {
		got, err := SafeObjectName(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidFileName) {
				t.Fatalf("SafeObjectName(%q) err = %v, want ErrInvalidFileName", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("SafeObjectName(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestSafeObjectNameCapsStem(t *testing.T) {
	got, err := SafeObjectName(strings.Repeat("a", 200) + ".pdf")
	if err != nil {
		t.Fatalf("SafeObjectName: %v", err)
	}
	if got != strings.Repeat("a", 80)+".pdf" {
		t.Fatalf("unexpected name %q (len %d)", got, len(got))
	}
}
