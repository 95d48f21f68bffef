package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat: file type not parseable. Fatal, never retried.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrLowConfidence: extraction below threshold; triggers engine fallback.
	ErrLowConfidence = errors.New("low confidence extraction")
	// ErrProviderUnavailable: remote OCR/vision/LLM call failed or timed out;
	// retried with backoff, then degraded to a local-only result.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrReconstruction: a table violated the row/column invariant; the table
	// is dropped with a warning, not the job.
	ErrReconstruction = errors.New("table reconstruction invariant")

	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentNotReady = errors.New("document not ready")
	ErrJobNotFound      = errors.New("job not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExpired   = errors.New("session expired")
	ErrInvalidInput     = errors.New("invalid input")
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
