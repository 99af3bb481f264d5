// Package llm defines the model-facing contracts: a chat Responder, an
// Embedder for the retrieval index, and the error taxonomy callers use to
// decide whether a failed call is worth retrying on a fallback model.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/destekhq/runtime/internal/chat"
)

var (
	ErrUnavailable = errors.New("llm unavailable")
	ErrTimeout     = errors.New("llm request timed out")
	ErrEmptyReply  = errors.New("llm returned an empty reply")
)

// StatusError carries the HTTP status of a failed completion so callers can
// route it through the retry predicate.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm request failed with status %d", e.Status)
}

// Retryable reports whether err is transient enough to justify another
// attempt, possibly on a different model. Timeouts and the overload-shaped
// statuses qualify; everything else is treated as a hard failure.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.Status {
	case 404, 429, 500, 503:
		return true
	}
	return false
}

type Request struct {
	Model       string
	System      string
	Messages    []chat.Message
	MaxTokens   int
	Temperature float64
}

type Response struct {
	Content string
	// Truncated is set when the provider stopped at the output budget
	// rather than at a natural end of the reply.
	Truncated bool
}

type Responder interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
