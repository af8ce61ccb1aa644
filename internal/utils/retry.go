package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig contains configuration for the transient-retry policy
// described in spec §4.A: exponential backoff, jittered, base 2, max 3
// retries. The interval starts at InitialInterval and doubles up to
// MaxInterval (3s and 7s by default); each wait is that interval
// randomized by ±RandomizationFactor, so with the defaults a single
// wait ranges from 1.5s to 10.5s. Waits are not clamped to
// [InitialInterval, MaxInterval].
type RetryConfig struct {
	MaxRetries          int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the retry policy mandated by spec §4.A.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:          3,
		InitialInterval:     3 * time.Second,
		MaxInterval:         7 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// IsRetryableFunc determines if an error should be retried
type IsRetryableFunc func(error) bool

// RetryWithBackoff executes fn under the exponential-backoff-with-jitter
// policy in config, via github.com/cenkalti/backoff/v4. Non-retryable
// errors (per isRetryable) surface immediately without waiting.
func RetryWithBackoff(ctx context.Context, config *RetryConfig, isRetryable IsRetryableFunc, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.InitialInterval
	b.MaxInterval = config.MaxInterval
	b.Multiplier = config.Multiplier
	b.RandomizationFactor = config.RandomizationFactor
	b.MaxElapsedTime = 0

	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(config.MaxRetries)), ctx)

	var lastErr error
	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return backoff.Permanent(fmt.Errorf("non-retryable error: %w", err))
		}
		return err
	}

	err := backoff.Retry(operation, bo)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
	}

	var permErr *backoff.PermanentError
	if errors.As(err, &permErr) {
		return err
	}

	return fmt.Errorf("max retries (%d) exceeded, last error: %w", config.MaxRetries, lastErr)
}

// IsTemporaryError returns true if the error might be resolved by
// retrying: either it implements an IsTemporary() bool method (the
// shape drive.Error satisfies), or its message matches a known
// transient network pattern.
func IsTemporaryError(err error) bool {
	if err == nil {
		return false
	}

	type temporary interface {
		IsTemporary() bool
	}

	if t, ok := err.(temporary); ok {
		return t.IsTemporary()
	}

	errStr := strings.ToLower(err.Error())
	temporaryPatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"network is unreachable",
		"temporary failure",
		"service unavailable",
		"deadline exceeded",
	}

	for _, pattern := range temporaryPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
