package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/oicur0t/tracex/pkg/models"
	"github.com/oicur0t/tracex/pkg/retry"
)

// ErrCircuitOpen is returned while the circuit breaker rejects writes.
var ErrCircuitOpen = errors.New("circuit breaker is open, sink may be down")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	// breakerHalfOpen lets one trial write through after the cool-down.
	breakerHalfOpen
)

// CircuitBreaker stops writes to a sink after threshold consecutive
// failures. After timeout one trial write is let through: success closes
// the circuit, failure opens it for another timeout.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time
	threshold   int
	timeout     time.Duration
	now         func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

// allow reports whether a write may be attempted.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerOpen:
		if cb.now().Sub(cb.lastFailure) < cb.timeout {
			return false
		}
		cb.state = breakerHalfOpen
		return true
	case breakerHalfOpen:
		// A trial write is in flight.
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = breakerClosed
	cb.failures = 0
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = cb.now()
	if cb.state == breakerHalfOpen || cb.failures >= cb.threshold {
		cb.state = breakerOpen
	}
}

// RetryingSink retries failed writes of another sink with backoff.
type RetryingSink struct {
	sink           Sink
	logger         *zap.Logger
	retryConfig    retry.Config
	circuitBreaker *CircuitBreaker
}

// NewRetryingSink wraps sink
func NewRetryingSink(sink Sink, maxRetries int, logger *zap.Logger) *RetryingSink {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = maxRetries
	cfg.Retryable = Retryable
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("Write failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait))
	}
	return &RetryingSink{
		sink:           sink,
		logger:         logger,
		retryConfig:    cfg,
		circuitBreaker: NewCircuitBreaker(5, 60*time.Second),
	}
}

// WriteBatch writes the batch, retrying transient failures
func (s *RetryingSink) WriteBatch(ctx context.Context, batch models.RecordBatch) error {
	if !s.circuitBreaker.allow() {
		return ErrCircuitOpen
	}

	attempts := 0
	err := retry.Do(ctx, s.retryConfig, func(attempt int) error {
		attempts = attempt
		return s.sink.WriteBatch(ctx, batch)
	})
	if err != nil {
		s.circuitBreaker.recordFailure()
		s.logger.Error("Write failed",
			zap.Error(err),
			zap.Int("attempts", attempts),
			zap.Int("batch_size", len(batch.Records)))
		return fmt.Errorf("write batch after %d attempts: %w", attempts, err)
	}

	s.circuitBreaker.recordSuccess()
	return nil
}

// Close closes the wrapped sink
func (s *RetryingSink) Close(ctx context.Context) error {
	return s.sink.Close(ctx)
}

// Retryable reports whether a write error may go away on its own.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return true
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.HasErrorLabel("RetryableWriteError")
	}
	return true
}
