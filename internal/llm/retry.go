package llm

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"time"
)

// RetryReason names the class an error was sorted into.
type RetryReason string

const (
	ReasonConnection    RetryReason = "connection"
	ReasonTimeout       RetryReason = "timeout"
	ReasonRateLimit     RetryReason = "rate_limit"
	ReasonServerError   RetryReason = "server_5xx"
	ReasonAuthPermanent RetryReason = "auth_permanent"
	ReasonClientError   RetryReason = "client_4xx"
	ReasonCanceled      RetryReason = "canceled"
	ReasonUnknown       RetryReason = "unknown"
)

// RetryDecision is the result of classifying an error.
type RetryDecision struct {
	ShouldRetry bool
	Reason      RetryReason
}

// retriableStatus holds the status codes worth another attempt.
var retriableStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// ClassifyError decides whether err is transient. Rules are evaluated in
// order and the first match wins; anything unrecognized is permanent so
// programming errors are never masked as transient.
func ClassifyError(err error) RetryDecision {
	if err == nil {
		return RetryDecision{Reason: ReasonUnknown}
	}

	// Caller cancellation is never a backend failure.
	if errors.Is(err, context.Canceled) {
		return RetryDecision{Reason: ReasonCanceled}
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return RetryDecision{Reason: ReasonAuthPermanent}
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return RetryDecision{ShouldRetry: true, Reason: ReasonRateLimit}
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return RetryDecision{ShouldRetry: true, Reason: ReasonTimeout}
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return RetryDecision{ShouldRetry: true, Reason: ReasonConnection}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return RetryDecision{ShouldRetry: true, Reason: ReasonTimeout}
		}
		return RetryDecision{ShouldRetry: true, Reason: ReasonConnection}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return RetryDecision{ShouldRetry: true, Reason: ReasonConnection}
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		switch {
		case retriableStatus[code]:
			return RetryDecision{ShouldRetry: true, Reason: ReasonServerError}
		case code >= 400 && code < 500:
			return RetryDecision{Reason: ReasonClientError}
		case code >= 500:
			return RetryDecision{Reason: ReasonServerError}
		}
	}

	return RetryDecision{Reason: ReasonUnknown}
}

// RetryPolicy is exponential backoff with random jitter.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts including the first (default 3)
	MinWait     time.Duration // Lower bound on any wait (default 1s)
	MaxWait     time.Duration // Upper bound on any wait (default 30s)
	Multiplier  time.Duration // Base of the exponential term (default 1s)

	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		MinWait:     1 * time.Second,
		MaxWait:     30 * time.Second,
		Multiplier:  1 * time.Second,
	}
}

// Classify implements the classification half of the policy.
func (p *RetryPolicy) Classify(err error) RetryDecision {
	return ClassifyError(err)
}

// Schedule returns how long to wait after the given (1-indexed) attempt
// failed. The result is drawn uniformly from
// [min(Multiplier*2^(attempt-1), MaxWait), MaxWait] and clamped to
// [MinWait, MaxWait].
func (p *RetryPolicy) Schedule(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	minWait, maxWait := p.MinWait, p.MaxWait
	if maxWait < minWait {
		maxWait = minWait
	}

	lower := p.Multiplier
	for i := 1; i < attempt; i++ {
		lower *= 2
		if lower >= maxWait {
			break
		}
	}
	if lower > maxWait {
		lower = maxWait
	}
	if lower < minWait {
		lower = minWait
	}

	r := p.Rand
	if r == nil {
		r = rand.Float64
	}
	return lower + time.Duration(r()*float64(maxWait-lower))
}

// Config turns the policy into a RetryConfig for Retry.
func (p *RetryPolicy) Config() RetryConfig {
	return RetryConfig{
		MaxAttempts: p.MaxAttempts,
		Classify:    p.Classify,
		Backoff:     p.Schedule,
	}
}

// RetryConfig wires the pieces Retry needs. Classify and Backoff are plain
// functions so the loop can be exercised without real I/O or real time.
type RetryConfig struct {
	MaxAttempts int
	Classify    func(error) RetryDecision
	Backoff     func(attempt int) time.Duration

	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, decision RetryDecision, wait time.Duration)
}

// Retry calls fn until it succeeds, returns a permanent error, or the
// attempt budget is spent. It returns the number of attempts made and the
// last error exactly as fn returned it. Cancellation of ctx stops the loop,
// including during a wait, and is reported as ctx.Err().
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	classify := cfg.Classify
	if classify == nil {
		classify = ClassifyError
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultRetryPolicy().Schedule
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}

		attempts = attempt
		err := fn(ctx, attempt)
		if err == nil {
			return attempts, nil
		}

		// A failure caused by the caller going away is not the backend's.
		if ctx.Err() != nil {
			return attempts, ctx.Err()
		}

		decision := classify(err)
		if !decision.ShouldRetry || attempt == maxAttempts {
			return attempts, err
		}

		wait := backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, decision, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return attempts, err
		}
	}
	return attempts, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
