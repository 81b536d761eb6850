package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrStorageUnavailable is returned once every attempt of a read has failed.
var ErrStorageUnavailable = fmt.Errorf("storage unavailable after retries")

// Retrier runs reads on short-lived connections. Each attempt checks out a
// connection, validates it with a round-trip, runs the read and releases it.
type Retrier struct {
	db       *sql.DB
	attempts int
	delay    time.Duration
	logger   *logrus.Entry
}

func NewRetrier(db *sql.DB, attempts int, delay time.Duration, logger *logrus.Entry) *Retrier {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrier{db: db, attempts: attempts, delay: delay, logger: logger}
}

// Do runs fn with up to r.attempts attempts and a fixed delay in between.
// No-row results and context cancellation are returned without retrying.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context, conn *sql.Conn) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		lastErr = r.once(ctx, fn)
		if lastErr == nil || permanent(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.WithError(lastErr).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"of":      r.attempts,
		}).Warn("Storage read failed")
		if attempt == r.attempts {
			break
		}

		timer := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, lastErr)
}

func (r *Retrier) once(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	var one int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("validate connection: %w", err)
	}
	return fn(ctx, conn)
}

func permanent(err error) bool {
	return errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
