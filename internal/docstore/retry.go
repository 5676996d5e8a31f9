package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/example/skin-check/internal/logging"
)

// retrier retries transient store failures with capped exponential backoff.
type retrier struct {
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func newRetrier(logger *zap.Logger) retrier {
	return retrier{
		logger:         logger,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

func (r retrier) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialBackoff
	b.MaxInterval = r.maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.retryAttempts-1)), ctx)
}

func (r retrier) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	opLogger := logging.WithOperation(r.logger, operation, requestID)
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err != nil && !isTransientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, r.policy(ctx), func(err error, next time.Duration) {
		opLogger.Warn("transient store error", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("retry_in", next))
	})
	if err != nil {
		opLogger.Error("store operation failed", zap.Error(err), zap.Int("attempt", attempt))
		return logging.NewOperationError(operation, requestID, err)
	}
	if attempt > 1 {
		opLogger.Info("store operation succeeded after retry", zap.Int("attempt", attempt))
	}
	return nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
