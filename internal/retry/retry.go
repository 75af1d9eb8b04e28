package retry

import (
	"context"
	"errors"
	"time"

	"ragtutor/internal/domain"
)

// Policy retries an operation with exponential backoff. It wraps only
// the external call it is given; errors the predicate rejects
// propagate immediately.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Retryable func(error) bool
}

// Default matches the transient-failure contract for external calls:
// 3 attempts, exponential backoff from 1s capped at 8s.
func Default() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: time.Second,
		MaxDelay:  8 * time.Second,
		Retryable: Transient,
	}
}

// Transient is the default retryable-error predicate. Configuration
// errors are never retried.
func Transient(err error) bool {
	return err != nil && !errors.Is(err, domain.ErrInvalidConfig)
}

// Do runs op until it succeeds, the attempts are exhausted, or the
// context is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.delay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = op(ctx); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
	}
	return err
}

func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := base << attempt
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
