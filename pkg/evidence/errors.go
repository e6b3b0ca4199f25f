package evidence

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrorCategory classifies collector failures for retry decisions and
// user-facing messages.
type ErrorCategory string

const (
	CategoryNetwork        ErrorCategory = "network"
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryPermission     ErrorCategory = "permission"
	CategoryNotFound       ErrorCategory = "not_found"
	CategoryValidation     ErrorCategory = "validation"
	CategoryServerError    ErrorCategory = "server_error"
	CategoryUnknown        ErrorCategory = "unknown"
)

// RateLimitInfo carries throttling telemetry extracted from a backend
// response.
type RateLimitInfo struct {
	RetryAfterSeconds int   `json:"retryAfterSeconds,omitempty"`
	Remaining         int   `json:"remaining,omitempty"`
	ResetUnix         int64 `json:"resetUnix,omitempty"`
}

// CollectorError is a classified evidence-backend failure.
type CollectorError struct {
	Category   ErrorCategory
	StatusCode int
	Message    string
	Retryable  bool
	RateLimit  *RateLimitInfo
	Cause      error
}

func (e *CollectorError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("evidence collector: %s (status %d): %s", e.Category, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("evidence collector: %s: %s", e.Category, e.Message)
}

func (e *CollectorError) Unwrap() error { return e.Cause }

// IsRateLimited reports whether the failure was a throttle: a 429, extracted
// rate-limit telemetry, or a message naming a rate limit.
func (e *CollectorError) IsRateLimited() bool {
	if e.Category == CategoryRateLimit || e.StatusCode == http.StatusTooManyRequests || e.RateLimit != nil {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "rate limit")
}

// Classify builds a CollectorError from a status code and message, applying
// the retryability table. recoverableMissing marks a 404 that the backend can
// heal by creating the resource on first write (a missing index or bucket).
func Classify(statusCode int, message string, recoverableMissing bool) *CollectorError {
	lower := strings.ToLower(message)
	ce := &CollectorError{StatusCode: statusCode, Message: message}

	switch {
	case statusCode == http.StatusTooManyRequests ||
		strings.Contains(lower, "rate limit") || strings.Contains(lower, "throttl") || strings.Contains(lower, "quota"):
		ce.Category = CategoryRateLimit
		ce.Retryable = true
	case statusCode == http.StatusUnauthorized ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid credentials") || strings.Contains(lower, "invalid token"):
		ce.Category = CategoryAuthentication
		ce.Retryable = false
	case statusCode == http.StatusForbidden ||
		strings.Contains(lower, "forbidden") || strings.Contains(lower, "access denied"):
		ce.Category = CategoryPermission
		ce.Retryable = false
	case statusCode == http.StatusNotFound:
		ce.Category = CategoryNotFound
		ce.Retryable = recoverableMissing
	case statusCode == http.StatusBadRequest ||
		strings.Contains(lower, "bad request") || strings.Contains(lower, "invalid") || strings.Contains(lower, "malformed"):
		ce.Category = CategoryValidation
		ce.Retryable = false
	case statusCode >= 500 && statusCode <= 599:
		ce.Category = CategoryServerError
		ce.Retryable = true
	case strings.Contains(lower, "econnrefused") || strings.Contains(lower, "etimedout") ||
		strings.Contains(lower, "enotfound") || strings.Contains(lower, "network error") ||
		strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "i/o timeout"):
		ce.Category = CategoryNetwork
		ce.Retryable = true
	default:
		ce.Category = CategoryUnknown
		ce.Retryable = true
	}
	return ce
}

// ClassifyErr wraps a transport-level error (no HTTP response) as a
// CollectorError.
func ClassifyErr(err error) *CollectorError {
	ce := Classify(0, err.Error(), false)
	ce.Cause = err
	return ce
}

// ExtractRateLimitInfo reads the standard throttling headers.
// Returns nil when none are present.
func ExtractRateLimitInfo(h http.Header) *RateLimitInfo {
	info := &RateLimitInfo{}
	found := false

	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			info.RetryAfterSeconds = secs
			found = true
		}
	}
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Remaining = n
			found = true
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			info.ResetUnix = ts
			found = true
		}
	}

	if !found {
		return nil
	}
	return info
}
