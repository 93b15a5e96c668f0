package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const maxBackoff = 30 * time.Second

// retryClient repeats failed calls that a later attempt may fix.
type retryClient struct {
	inner       Client
	maxAttempts int
	baseDelay   time.Duration
}

// wrapWithRetry allows up to maxAttempts calls per request. A single
// attempt returns client unwrapped.
func wrapWithRetry(client Client, maxAttempts int) Client {
	if maxAttempts <= 1 {
		return client
	}
	return &retryClient{
		inner:       client,
		maxAttempts: maxAttempts,
		baseDelay:   500 * time.Millisecond,
	}
}

func (r *retryClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := r.inner.Generate(ctx, req)
		switch {
		case err == nil:
			return resp, nil
		case !isRetryableError(err):
			return nil, err
		case attempt+1 >= r.maxAttempts:
			return nil, fmt.Errorf("giving up after %d attempts: %w", r.maxAttempts, err)
		}

		delay := r.backoffDelay(attempt, err)
		slog.Warn("llm request failed, retrying",
			"provider", r.inner.Provider(),
			"attempt", attempt+1,
			"max_attempts", r.maxAttempts,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *retryClient) GenerateJSON(ctx context.Context, req *Request, out any) error {
	req.JSONMode = true
	resp, err := r.Generate(ctx, req)
	if err != nil {
		return err
	}
	return unmarshalJSON(resp.Content, out)
}

func (r *retryClient) Provider() Provider {
	return r.inner.Provider()
}

func (r *retryClient) Close() error {
	return r.inner.Close()
}

// backoffDelay doubles from baseDelay per attempt, honors a longer
// Retry-After from the provider, and never exceeds maxBackoff.
func (r *retryClient) backoffDelay(attempt int, err error) time.Duration {
	delay := r.baseDelay << attempt
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > delay {
		delay = apiErr.RetryAfter
	}
	return min(delay, maxBackoff)
}
