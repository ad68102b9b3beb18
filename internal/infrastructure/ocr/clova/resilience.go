package clova

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
		return "ocr status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("ocr %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ocr %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// classifyOCRError feeds the circuit breaker only. The pipeline never
// retries an OCR call: a failed call either falls through to general mode
// (template) or aborts the run (general), so Retryable stays false for
// everything.
func classifyOCRError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		// Server-side failures count toward opening the breaker; client
		// errors (bad template id, oversized image) do not.
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: statusErr.StatusCode >= 500,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
}
