package errors

import (
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := NewWithCode(ErrorTypeRateLimited, "slow down", 429)
	want := "rate_limited error (code 429): slow down"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestTypeOf(t *testing.T) {
	if got := TypeOf(New(ErrorTypeParse, "bad json")); got != ErrorTypeParse {
		t.Errorf("TypeOf = %s, want parse", got)
	}
	if got := TypeOf(fmt.Errorf("plain error")); got != ErrorTypeUnknown {
		t.Errorf("TypeOf(plain) = %s, want unknown", got)
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeTransport, ErrorTypeRateLimited, ErrorTypeServerError}
	for _, et := range retryable {
		if !IsRetryable(et) {
			t.Errorf("IsRetryable(%s) = false, want true", et)
		}
	}
	terminal := []ErrorType{ErrorTypeParse, ErrorTypeNotFound, ErrorTypeOutOfWindow, ErrorTypeConfiguration, ErrorTypeUnknown}
	for _, et := range terminal {
		if IsRetryable(et) {
			t.Errorf("IsRetryable(%s) = true, want false", et)
		}
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{0, true},
		{403, true},
		{429, true},
		{503, true},
		{500, true},
		{502, true},
		{521, true},
		{401, false},
		{404, false},
		{410, false},
		{200, false},
	}
	for _, tt := range tests {
		if got := IsRetryableStatusCode(tt.code); got != tt.want {
			t.Errorf("IsRetryableStatusCode(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
