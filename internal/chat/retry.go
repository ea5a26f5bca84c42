package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/koopa0/sage/internal/llm"
)

// RetryConfig configures retry behavior for model round trips.
type RetryConfig struct {
	MaxRetries        int           // retry attempts after the first try
	InitialInterval   time.Duration // first backoff delay
	MaxInterval       time.Duration // backoff ceiling
	RateLimitInterval time.Duration // floor for rate-limit backoff
}

// DefaultRetryConfig returns sensible defaults for model APIs.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialInterval:   500 * time.Millisecond,
		MaxInterval:       10 * time.Second,
		RateLimitInterval: 2 * time.Second,
	}
}

// retryable reports whether err is worth another attempt. All three
// upstream classes are retried; rate limits just wait longer.
func retryable(err error) bool {
	return errors.Is(err, llm.ErrUnavailable) ||
		errors.Is(err, llm.ErrRateLimited) ||
		errors.Is(err, llm.ErrMalformed)
}

// generateWithRetry runs one model round trip with exponential
// backoff. Each attempt first waits on the proactive rate limiter.
//
// Retrying is only safe while nothing has been streamed to the
// caller: once text went out, a retry would duplicate it, so the
// attempt error is returned as-is for mid-stream handling.
func (a *Agent) generateWithRetry(ctx context.Context, req *llm.Request, stream llm.StreamFunc) (*llm.Completion, error) {
	var lastErr error
	delay := a.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= a.retry.MaxRetries; attempt++ {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		streamed := false
		observe := stream
		if stream != nil {
			observe = func(ctx context.Context, text string) error {
				streamed = true
				return stream(ctx, text)
			}
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if a.requestTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, a.requestTimeout)
		}
		comp, err := a.gateway.Generate(attemptCtx, req, observe)
		cancel()
		if err == nil {
			a.logger.Debug("model round trip succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return comp, nil
		}

		lastErr = err
		if streamed || !retryable(err) {
			return nil, err
		}
		if attempt == a.retry.MaxRetries {
			break
		}

		wait := delay
		if errors.Is(err, llm.ErrRateLimited) && wait < a.retry.RateLimitInterval {
			wait = a.retry.RateLimitInterval
		}
		a.logger.Debug("retrying model round trip",
			"attempt", attempt+1,
			"delay", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(wait):
			delay = min(delay*2, a.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("model round trip after %d retries (elapsed: %v): %w",
		a.retry.MaxRetries, time.Since(start), lastErr)
}
