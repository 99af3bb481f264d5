package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/destekhq/runtime/internal/retry"
)

// Chain walks an ordered list of model names over one underlying client.
// Each model gets a bounded number of attempts; only errors the Retryable
// predicate accepts move the call to the next model.
type Chain struct {
	responder Responder
	models    []string
	policy    retry.Policy
	logger    *slog.Logger
}

func NewChain(responder Responder, models []string, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		responder: responder,
		models:    models,
		policy: retry.Policy{
			MaxAttempts: 2,
			Backoff:     retry.ExponentialBackoff(250*time.Millisecond, 2*time.Second),
			Retryable:   Retryable,
		},
		logger: logger.With("component", "llm-chain"),
	}
}

func (c *Chain) Complete(ctx context.Context, req Request) (Response, error) {
	if len(c.models) == 0 {
		return Response{}, fmt.Errorf("%w: no models configured", ErrUnavailable)
	}

	var lastErr error
	for _, model := range c.models {
		attempt := req
		attempt.Model = model

		var res Response
		result := retry.Do(ctx, c.policy, func(ctx context.Context, _ int) error {
			var err error
			res, err = c.responder.Complete(ctx, attempt)
			return err
		})
		switch result.Outcome {
		case retry.OutcomeSuccess:
			return res, nil
		case retry.OutcomeFatal:
			return Response{}, result.Err
		}

		lastErr = result.Err
		c.logger.Warn("model exhausted, falling through",
			"model", model,
			"attempts", result.Attempts,
			"error", result.Err)
	}
	return Response{}, fmt.Errorf("%w: all models failed: %v", ErrUnavailable, lastErr)
}
