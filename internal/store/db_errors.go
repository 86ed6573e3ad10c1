package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// PostgreSQL error classes and codes we care about.
const (
	pgClassConnectionException   = "08" // connection_exception
	pgClassOperatorIntervention  = "57"
	pgClassInsufficientResources = "53"
	pgDeadlockDetected           = "40P01"
	pgSerializationFailure       = "40001"
	pgUniqueViolation            = "23505"
)

// ErrDBUnavailable marks store errors worth retrying or reporting as
// infrastructure faults rather than domain outcomes.
var ErrDBUnavailable = errors.New("database unavailable")

// IsTransientError determines if an error is likely transient and a retry of
// the same read could succeed.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	// Retrying with the same (expired) context will not help.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) >= 2 {
			switch pgErr.Code[:2] {
			case pgClassConnectionException, pgClassOperatorIntervention, pgClassInsufficientResources:
				return true
			}
		}
		switch pgErr.Code {
		case pgDeadlockDetected, pgSerializationFailure:
			return true
		}
		// Constraint violations and the like are not transient.
		return false
	}

	return false
}

// WithReadRetry executes a read-only store operation with a bounded retry for
// transient errors. Writes never go through this path: the assignment CAS is
// safe for the caller to retry end-to-end, and retrying it internally would
// blur the at-most-once contract.
func WithReadRetry(ctx context.Context, logger *zap.Logger, operation string, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn("Retrying transient database error",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%w: after %d attempts: %v", ErrDBUnavailable, attempts, err)
}
