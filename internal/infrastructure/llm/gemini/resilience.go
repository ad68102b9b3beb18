package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/hyeonsoft/billscan/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "llm status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("llm %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("llm %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// classifyLLMError records breaker failures only; extraction calls are never
// retried because a failed run always ends as a reviewable NEEDS_REVIEW job.
func classifyLLMError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: statusErr.StatusCode >= 500 || statusErr.StatusCode == 429,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
}
