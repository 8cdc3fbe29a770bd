package llm

import (
	"context"
	"time"

	"github.com/entrhq/webtest/pkg/types"
	"github.com/sethvargo/go-retry"
)

// retryProvider repeats failed Complete calls with a constant backoff.
type retryProvider struct {
	Provider
	retries uint64
	backoff time.Duration
}

// WithRetry wraps p so that retryable failures of Complete are attempted up
// to retries more times, waiting backoff between attempts. Streaming calls
// are passed through unchanged.
func WithRetry(p Provider, retries int, backoff time.Duration) Provider {
	if retries <= 0 {
		return p
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &retryProvider{Provider: p, retries: uint64(retries), backoff: backoff}
}

func (r *retryProvider) Complete(ctx context.Context, messages []*types.ChatMessage, opts ...CallOption) (*Completion, error) {
	var out *Completion
	b := retry.WithMaxRetries(r.retries, retry.NewConstant(r.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		c, err := r.Provider.Complete(ctx, messages, opts...)
		if err != nil {
			if IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
