// Package retry runs an operation again with exponential backoff until it
// succeeds, fails permanently, or runs out of attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	// Jitter is the fraction of the backoff added or removed at random.
	Jitter float64
	// Retryable reports whether an error is worth another attempt.
	// Nil retries every error not marked Permanent.
	Retryable func(error) bool
	// OnRetry is called before waiting for the next attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig suits writes to a local or nearby store.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  5,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.25,
	}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Do calls fn with attempt numbers starting at 1 until it returns nil, a
// permanent error, or MaxRetries retries have failed. The last error is
// returned; a done ctx ends the wait with ctx.Err().
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt > cfg.MaxRetries || IsPermanent(lastErr) {
			break
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			break
		}

		wait := cfg.backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return lastErr
}

// backoff returns the wait after the given failed attempt:
// InitialWait * Multiplier^(attempt-1), capped at MaxWait, with jitter,
// never below InitialWait.
func (cfg Config) backoff(attempt int) time.Duration {
	wait := float64(cfg.InitialWait) * math.Pow(cfg.Multiplier, float64(attempt-1))
	wait = math.Min(wait, float64(cfg.MaxWait))
	wait += wait * cfg.Jitter * (rand.Float64()*2 - 1)
	return time.Duration(math.Max(wait, float64(cfg.InitialWait)))
}
