package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/stratoserve/catalog-cache/internal/apperrors"
)

// PostgreSQL error codes that mark a transaction as worth re-running. A
// unique violation is included because the write path is find-then-merge:
// two concurrent first-time upserts race to insert, the loser re-runs and
// finds the winner's row to merge into.
const (
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"
	pgCodeUniqueViolation      = "23505"
)

// isRetryableConflict classifies a backing-store failure. Everything not
// listed here is fatal and propagates immediately.
func isRetryableConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgCodeSerializationFailure, pgCodeDeadlockDetected, pgCodeUniqueViolation:
		return true
	default:
		return false
	}
}

// retryWrite runs fn up to maxAttempts times, backing off baseBackoff,
// 2*baseBackoff, 4*baseBackoff... after each conflicting attempt. fn must
// start a fresh transaction on every call so no stale session state
// survives into a retry. When the budget is exhausted the last conflict
// surfaces as a fatal error.
func retryWrite(ctx context.Context, maxAttempts int, baseBackoff time.Duration, retries prometheus.Counter, logger *zap.Logger, op string, fn func(context.Context) error) error {
	var lastErr error

	backoff := baseBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetryableConflict(err) {
			return err
		}

		lastErr = err
		retries.Inc()
		logger.Warn("Write conflict, backing off",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}

	return apperrors.Fatal("write conflict retry budget exhausted", lastErr)
}
