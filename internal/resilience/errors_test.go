package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("429"), 429), true},
		{"wrapped", fmt.Errorf("extract: %w", NewTransientError(errors.New("503"), 503)), true},
		{"plain", errors.New("schema mismatch"), false},
		{"conn reset", fmt.Errorf("post: %w", syscall.ECONNRESET), true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"net timeout", timeoutErr{}, true},
		{"io timeout text", errors.New("read tcp: i/o timeout"), true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"tls text", errors.New("net/http: TLS handshake timeout"), true},
		{"permanent wins", Permanent(NewTransientError(errors.New("x"), 500)), false},
		{"exhausted stays transient", &ExhaustedError{Attempts: 3, Err: NewTransientError(errors.New("x"), 503)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("%d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("%d should not be transient", code)
		}
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	base := errors.New("invalid processor")
	err := Permanent(base)
	if !errors.Is(err, base) {
		t.Error("Permanent should unwrap to the original error")
	}
	if err.Error() != "invalid processor" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	base := errors.New("upstream")
	te := NewTransientError(base, 502)
	if !errors.Is(te, base) {
		t.Error("expected unwrap to base error")
	}
	if te.StatusCode != 502 || te.Error() != "upstream" {
		t.Errorf("unexpected transient error %+v", te)
	}
}

func TestExhaustedError_Message(t *testing.T) {
	err := &ExhaustedError{Attempts: 4, Err: errors.New("quota exceeded")}
	want := "retries exhausted after 4 attempts: quota exceeded"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(NewTransientError(errors.New("x"), 503)); got != ClassTransient {
		t.Errorf("expected transient, got %s", got)
	}
	if got := ClassifyError(errors.New("bad request")); got != ClassPermanent {
		t.Errorf("expected permanent, got %s", got)
	}
}

func TestRetryAfter(t *testing.T) {
	te := NewTransientError(errors.New("slow down"), 429)
	te.RetryAfter = 3 * time.Second
	wrapped := fmt.Errorf("documentai: %w", te)
	if got := RetryAfter(wrapped); got != 3*time.Second {
		t.Errorf("expected 3s, got %v", got)
	}
	if got := RetryAfter(errors.New("plain")); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"7", 7 * time.Second},
		{" 2 ", 2 * time.Second},
		{"-4", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
