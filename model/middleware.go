package model

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentrelay/core"
)

// RetryPolicy configures WithRetry.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy returns three tries with exponential backoff from 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  time.Minute,
	}
}

type retryModel struct {
	next   Model
	policy RetryPolicy
}

// WithRetry decorates m so that retryable *core.BackendError failures are
// retried with exponential backoff. Other errors are returned immediately.
func WithRetry(m Model, policy RetryPolicy) Model {
	if policy.MaxTries == 0 {
		policy.MaxTries = 1
	}

	return &retryModel{next: m, policy: policy}
}

func (r *retryModel) Generate(ctx context.Context, req Request) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}

	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.policy.MaxTries),
	}
	if r.policy.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(r.policy.MaxElapsedTime))
	}

	return backoff.Retry(ctx, func() (*Response, error) {
		resp, err := r.next.Generate(ctx, req)
		if err != nil {
			if core.IsRetryable(err) {
				return nil, err
			}

			return nil, backoff.Permanent(err)
		}

		return resp, nil
	}, opts...)
}

func (r *retryModel) Info() Info { return r.next.Info() }

func (r *retryModel) Close() error { return Close(r.next) }

type rateLimitedModel struct {
	next    Model
	limiter *rate.Limiter
}

// WithRateLimit decorates m so that every call waits for a token from limiter.
func WithRateLimit(m Model, limiter *rate.Limiter) Model {
	return &rateLimitedModel{next: m, limiter: limiter}
}

func (r *rateLimitedModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return r.next.Generate(ctx, req)
}

func (r *rateLimitedModel) Info() Info { return r.next.Info() }

func (r *rateLimitedModel) Close() error { return Close(r.next) }

// Close releases m when it holds resources such as an SDK client. Wrapped
// models forward to the model they wrap.
func Close(m Model) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
