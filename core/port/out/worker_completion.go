package out

import (
	"context"
	"errors"
)

// CompletionService is an external large-language-model completion API.
// Any non-success response is returned as an error.
type CompletionService interface {
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)
}

var (
	// ErrRateLimited signals an HTTP 429 from the completion API.
	ErrRateLimited = errors.New("completion rate limited")
	// ErrCompletionUnavailable is returned when no API key is configured.
	ErrCompletionUnavailable = errors.New("completion service unavailable")
)
