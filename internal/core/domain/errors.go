package domain

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound     = errors.New("bill job not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTemporary       = errors.New("temporary failure")
	ErrAlreadyTerminal = errors.New("job already terminal")
)

// Persisted error codes on the job record. The job row is the error channel
// for pipeline failures; these codes are what the review UI keys off.
const (
	ErrCodePipelineFailed    = "PIPELINE_FAILED"
	ErrCodeTemplateOCRFailed = "TEMPLATE_OCR_FAILED"
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
