package llm

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"syscall"
	"time"
)

// RetryPolicy is the single retry/backoff policy shared by every gateway call.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Retryable      func(error) bool
}

// DefaultRetryPolicy retries transient failures three times with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		Retryable:      IsRetryable,
	}
}

// Backoff returns the wait before the given attempt (attempt 1 never waits).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := time.Duration(float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-2)))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. It returns the number of attempts made. Cancellation of
// ctx is honoured only while waiting between attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if wait := p.Backoff(attempt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return attempt - 1, ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		if !retryable(err) {
			return attempt, err
		}
	}
	return maxAttempts, &exhaustedError{err: lastErr}
}

// exhaustedError marks that the policy ran out of attempts on a retryable error.
type exhaustedError struct{ err error }

func (e *exhaustedError) Error() string { return "retry budget exhausted: " + e.err.Error() }
func (e *exhaustedError) Unwrap() error { return e.err }

// IsRetryable reports whether err is a transient failure: a timeout, a
// refused or reset connection, or a 429/5xx response.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == 429 || statusErr.Code >= 500
	}
	return false
}
