// Package retry runs idempotent remote operations with bounded exponential backoff.
//
// Attempt 1 runs immediately. After failed attempt n the policy waits
// InitialDelay * 2^(n-1) before attempt n+1, until MaxAttempts calls have been
// made. A Policy value holds no state between calls; attempt counters and the
// current delay live inside a single Do invocation.
package retry

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = time.Second

	TextCodeRetryExhausted = "RETRY_EXHAUSTED"
	TextCodeCancelled      = "RETRY_CANCELLED"
)

// ErrRetryExhausted is returned when every attempt failed. Source holds the last cause.
var ErrRetryExhausted = goerrors.New("operation failed after retries", goerrors.CategoryOperation).
	WithTextCode(TextCodeRetryExhausted).
	WithCode(goerrors.CodeInternal)

// ErrCancelled is returned when the context ends before the operation succeeds.
var ErrCancelled = goerrors.New("operation cancelled", goerrors.CategoryOperation).
	WithTextCode(TextCodeCancelled).
	WithCode(goerrors.CodeInternal)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// NotifyFunc observes a failed attempt before the policy waits.
type NotifyFunc func(attempt int, err error, wait time.Duration)

// Policy describes how a single operation is retried
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Sleep        SleepFunc
	OnRetry      NotifyFunc
}

// DefaultPolicy returns the policy used for content generation: 5 attempts, 1s initial delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
	}
}

// NoRetry runs the operation exactly once.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// Delay returns the wait after failed attempt n (1 based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.InitialDelay <= 0 {
		return 0
	}
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) sleep() SleepFunc {
	if p.Sleep != nil {
		return p.Sleep
	}
	return Sleep
}

// Sleep waits for d honoring ctx cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Op is a single attempt of a remote operation
type Op[T any] func(ctx context.Context, attempt int) (T, error)

// Do executes op under policy p.
//
// Any error returned by op is retried unless it was wrapped with Permanent,
// in which case the unwrapped cause is returned immediately. When all attempts
// fail the result is a clone of ErrRetryExhausted whose Source is the last cause.
func Do[T any](ctx context.Context, p Policy, op Op[T]) (T, error) {
	var zero T
	var lastErr error

	maxAttempts := p.attempts()
	sleep := p.sleep()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, cancelled(err, attempt-1, lastErr)
		}

		value, err := op(ctx, attempt)
		if err == nil {
			return value, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}

		lastErr = err
		if attempt == maxAttempts {
			break
		}

		wait := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		if err := sleep(ctx, wait); err != nil {
			return zero, cancelled(err, attempt, lastErr)
		}
	}

	return zero, exhausted(maxAttempts, lastErr)
}

// Run is Do for operations without a result value.
func Run(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	_, err := Do(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	})
	return err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsExhausted reports whether err is a RetryExhausted failure.
func IsExhausted(err error) bool {
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.TextCode == TextCodeRetryExhausted
}

// IsCancelled reports whether err ended because the context was done.
func IsCancelled(err error) bool {
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.TextCode == TextCodeCancelled
}

// LastCause returns the error of the final failed attempt wrapped by a
// RetryExhausted or cancellation error, or err itself.
func LastCause(err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Source != nil {
		switch richErr.TextCode {
		case TextCodeRetryExhausted, TextCodeCancelled:
			return richErr.Source
		}
	}
	return err
}

func exhausted(attempts int, last error) error {
	clone := ErrRetryExhausted.Clone()
	if clone == nil {
		clone = ErrRetryExhausted
	}
	clone.Source = last
	meta := map[string]any{"attempts": attempts}
	if last != nil {
		meta["last_error"] = last.Error()
	}
	clone.WithMetadata(meta)
	return clone
}

func cancelled(ctxErr error, attempts int, last error) error {
	clone := ErrCancelled.Clone()
	if clone == nil {
		clone = ErrCancelled
	}
	clone.Source = ctxErr
	meta := map[string]any{"attempts": attempts}
	if last != nil {
		meta["last_error"] = last.Error()
	}
	clone.WithMetadata(meta)
	return clone
}
