// Package retry implements exponential back-off for transient collaborator
// errors. The same policy wraps generation calls, uploads and sheet writes.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"secq/internal/logging"
)

// ErrMaxAttempts indicates all retry attempts failed.
var ErrMaxAttempts = errors.New("maximum attempts exceeded")

// Policy configures retry behavior.
type Policy struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // Delay before the second attempt
	Factor      float64       // Growth per attempt
	Jitter      float64       // Delay is multiplied by 1+U[0,Jitter)
	MaxDelay    time.Duration // Cap applied after jitter

	// Classify decides whether an error is worth another attempt.
	// Defaults to IsTransient.
	Classify func(error) bool

	// Reconnect runs before every retry, e.g. to rebuild a client.
	// Its failure is logged and the retry proceeds with the old client.
	Reconnect func(ctx context.Context) error

	// Category receives retry logs. Defaults to the pipeline category.
	Category logging.Category

	// rand is overridable in tests.
	rand func() float64
}

// DefaultPolicy returns the production back-off: 5 attempts, 2s base,
// factor 2, 50% jitter, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		Factor:      2,
		Jitter:      0.5,
		MaxDelay:    30 * time.Second,
	}
}

// Delay computes the pause after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1))
	if p.Jitter > 0 {
		r := rand.Float64
		if p.rand != nil {
			r = p.rand
		}
		d *= 1 + r()*p.Jitter
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Classify != nil {
		return p.Classify(err)
	}
	return IsTransient(err)
}

// Do executes fn until it succeeds, fails permanently, or MaxAttempts is
// reached. Exhaustion returns an error wrapping ErrMaxAttempts and the
// last failure.
func Do[T any](ctx context.Context, p Policy, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	cat := p.Category
	if cat == "" {
		cat = logging.CategoryPipeline
	}
	log := logging.Get(cat)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		v, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Debug("%s succeeded on attempt %d", operation, attempt)
			}
			return v, nil
		}
		lastErr = err

		if !p.retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		backoff := p.Delay(attempt)
		log.Warn("%s attempt %d/%d failed: %v; retrying in %v",
			operation, attempt, attempts, err, backoff)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}

		if p.Reconnect != nil {
			if rerr := p.Reconnect(ctx); rerr != nil {
				log.Warn("%s reconnect failed: %v", operation, rerr)
			}
		}
	}

	return zero, fmt.Errorf("%s: %w after %d attempts: %w", operation, ErrMaxAttempts, attempts, lastErr)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, operation string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
