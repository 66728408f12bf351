package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RetryClass indicates whether a backend error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"
	RetryClassMaybe        RetryClass = "maybe" // retry with caution (limited attempts)
	RetryClassNonRetryable RetryClass = "non_retryable"
)

// BackendError wraps a raw provider error with classification metadata.
type BackendError struct {
	Err         error
	Class       RetryClass
	HTTPStatus  int
	RetryAfter  string // Retry-After header value if present
	IsRateLimit bool
	IsAuth      bool
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("backend error: %s", e.Class)
}

func (e *BackendError) Unwrap() error { return e.Err }

// RequestError is the distinguished model-backend failure surfaced to the
// agent loop once retries are exhausted or the error is non-retryable. It
// carries a human-readable message plus optional structured details for the
// telemetry sink.
type RequestError struct {
	Message string
	Details map[string]any
	Err     error
}

func (e *RequestError) Error() string { return e.Message }

func (e *RequestError) Unwrap() error { return e.Err }

// NewRequestError builds a RequestError from the final backend error.
func NewRequestError(err error, attempts int) *RequestError {
	details := map[string]any{"attempts": attempts}
	var be *BackendError
	if errors.As(err, &be) {
		details["class"] = string(be.Class)
		if be.HTTPStatus != 0 {
			details["http_status"] = be.HTTPStatus
		}
		if be.RetryAfter != "" {
			details["retry_after"] = be.RetryAfter
		}
	}
	return &RequestError{Message: err.Error(), Details: details, Err: err}
}

// Classify classifies an error from a model-backend call.
func Classify(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}

	var be *BackendError
	if errors.As(err, &be) {
		return be.Class
	}

	errStr := strings.ToLower(err.Error())

	// Rate limits (429) - retryable, respect Retry-After.
	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") {
		return RetryClassRetryable
	}

	// Server errors (5xx) - retryable.
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return RetryClassRetryable
	}

	// Network failures - retryable.
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "temporary failure") {
		return RetryClassRetryable
	}

	// Deadline and context-overflow errors - maybe (limited retries).
	if strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context length") ||
		strings.Contains(errStr, "maximum context length") ||
		strings.Contains(errStr, "token limit") {
		return RetryClassMaybe
	}

	// Auth (401/403), bad request (400), quota (402), refusals - non-retryable.
	return RetryClassNonRetryable
}

// WrapBackendError attaches classification metadata to a provider error.
func WrapBackendError(err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}
	return &BackendError{
		Err:         err,
		Class:       Classify(err),
		HTTPStatus:  httpStatus,
		RetryAfter:  retryAfter,
		IsRateLimit: httpStatus == http.StatusTooManyRequests,
		IsAuth:      httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden,
	}
}

// ExtractRetryAfter extracts a Retry-After hint from an error chain.
// Returns 0 if not found or invalid.
func ExtractRetryAfter(err error) time.Duration {
	var be *BackendError
	if errors.As(err, &be) && be.RetryAfter != "" {
		var seconds int
		if _, serr := fmt.Sscanf(be.RetryAfter, "%d", &seconds); serr == nil {
			return time.Duration(seconds) * time.Second
		}
		if t, perr := time.Parse(time.RFC1123, be.RetryAfter); perr == nil {
			if now := time.Now(); t.After(now) {
				return t.Sub(now)
			}
		}
	}
	return 0
}
