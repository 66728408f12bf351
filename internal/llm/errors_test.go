package llm

import (
	"errors"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want RetryClass
	}{
		{"nil", nil, RetryClassNonRetryable},
		{"rate limit", errors.New("429 too many requests"), RetryClassRetryable},
		{"server error", errors.New("502 bad gateway"), RetryClassRetryable},
		{"network", errors.New("dial tcp: connection refused"), RetryClassRetryable},
		{"deadline", errors.New("context deadline exceeded"), RetryClassMaybe},
		{"context overflow", errors.New("maximum context length exceeded"), RetryClassMaybe},
		{"auth", errors.New("401 unauthorized"), RetryClassNonRetryable},
		{"bad request", errors.New("400 bad request: malformed tool schema"), RetryClassNonRetryable},
		{"unknown", errors.New("something odd"), RetryClassNonRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyWrappedBackendError(t *testing.T) {
	// A wrapped BackendError keeps its original classification even when the
	// message would classify differently.
	be := &BackendError{Err: errors.New("opaque"), Class: RetryClassRetryable}
	if got := Classify(be); got != RetryClassRetryable {
		t.Errorf("Classify(BackendError) = %s, want retryable", got)
	}
}

func TestExtractRetryAfter(t *testing.T) {
	be := WrapBackendError(errors.New("429 too many requests"), 429, "7")
	if got := ExtractRetryAfter(be); got != 7*time.Second {
		t.Errorf("ExtractRetryAfter = %v, want 7s", got)
	}

	if got := ExtractRetryAfter(errors.New("plain")); got != 0 {
		t.Errorf("ExtractRetryAfter(plain) = %v, want 0", got)
	}
}

func TestNewRequestErrorDetails(t *testing.T) {
	be := WrapBackendError(errors.New("429 rate limit"), 429, "3")
	reqErr := NewRequestError(be, 4)

	if reqErr.Message != be.Error() {
		t.Errorf("Message = %q, want %q", reqErr.Message, be.Error())
	}
	if reqErr.Details["attempts"] != 4 {
		t.Errorf("Details[attempts] = %v, want 4", reqErr.Details["attempts"])
	}
	if reqErr.Details["http_status"] != 429 {
		t.Errorf("Details[http_status] = %v, want 429", reqErr.Details["http_status"])
	}
	if !errors.Is(reqErr, be) {
		t.Error("RequestError should unwrap to the backend error")
	}
}
