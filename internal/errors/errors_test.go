package errors

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/wiki-engagement/internal/types"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"nil", nil, 0, ""},
		{"categorized passes through", NewRateLimitError(12), http.StatusTooManyRequests, "TOO_MANY_REQUESTS"},
		{"service not found", &types.ServiceError{Code: "ACCOUNT_NOT_FOUND", Message: "x"}, http.StatusNotFound, "ACCOUNT_NOT_FOUND"},
		{"service unknown", &types.ServiceError{Code: "BOOM", Message: "x"}, http.StatusInternalServerError, "BOOM"},
		{"plain error", fmt.Errorf("disk full"), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"wrapped categorized", fmt.Errorf("create: %w", NewForbiddenError("no")), http.StatusForbidden, "FORBIDDEN"},
		{"wrapped not found", fmt.Errorf("comment c1: %w", ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Errorf("Categorize(nil) = %v, want nil", got)
				}
				return
			}
			if got.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.wantStatus)
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", got.Code, tt.wantCode)
			}
		})
	}
}

func TestNewAccountFrozenError(t *testing.T) {
	until := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	err := NewAccountFrozenError(until, 3600)

	if err.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", err.StatusCode)
	}
	if err.Details["remainingSeconds"] != 3600 {
		t.Errorf("remainingSeconds = %v, want 3600", err.Details["remainingSeconds"])
	}
	if err.Details["frozenUntil"] != "2024-05-02T10:00:00Z" {
		t.Errorf("frozenUntil = %v", err.Details["frozenUntil"])
	}
	if !IsUserError(err) {
		t.Error("frozen account should be a user error")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewMailTransportError("a@b.c", fmt.Errorf("timeout"))) {
		t.Error("mail transport errors should be retryable")
	}
	if !IsRetryable(NewDatabaseError("insert", fmt.Errorf("conn reset"))) {
		t.Error("database errors should be retryable")
	}
	if IsRetryable(NewUnauthorizedError("nope")) {
		t.Error("unauthorized should not be retryable")
	}
	if !IsSystemError(NewServiceUnavailableError("smtp")) {
		t.Error("service unavailable is a system error")
	}
}

func TestCeilSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{29*time.Second + time.Nanosecond, 30},
	}
	for _, tt := range tests {
		if got := CeilSeconds(tt.in); got != tt.want {
			t.Errorf("CeilSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
