package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures client-side pacing of provider calls.
type RateLimitConfig struct {
	// RequestsPerMinute limits the number of API calls per minute (0 = unlimited)
	RequestsPerMinute int
	// BurstSize allows temporary burst above the rate limit
	BurstSize int
}

// RateLimitProvider wraps a provider with a token-bucket limiter. Retries
// go through the same bucket, so a throttled backend is not hammered.
type RateLimitProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config RateLimitConfig) *RateLimitProvider {
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(config.RequestsPerMinute))
	}
	return &RateLimitProvider{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Complete waits for limiter clearance and delegates to the inner provider.
func (r *RateLimitProvider) Complete(ctx context.Context, req *Request, opts *RequestOptions) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return r.inner.Complete(ctx, req, opts)
}

// Close releases the inner provider's resources when it holds any.
func (r *RateLimitProvider) Close() error {
	return CloseProvider(r.inner)
}

// WithRateLimit wraps a provider with rate limiting. A zero config returns
// p unchanged.
func WithRateLimit(p Provider, config RateLimitConfig) Provider {
	if p == nil || config.RequestsPerMinute <= 0 {
		return p
	}
	return NewRateLimitProvider(p, config)
}
