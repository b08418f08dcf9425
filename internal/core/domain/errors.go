package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrStandardNotFound   = errors.New("standard not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTemporary          = errors.New("temporary failure")
	ErrLLMUnavailable     = errors.New("no endpoints available")
	ErrNoExtractableText  = errors.New("no extractable text")
	ErrNoQuestions        = errors.New("no questions for selected standards")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	ErrUnknownStatus      = errors.New("unknown compliance status")
	ErrUnsupportedFormat  = errors.New("unsupported document format")
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
