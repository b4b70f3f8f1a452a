package resilience

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/metrics"
)

// ErrorKind classifies a failure for retry purposes.
type ErrorKind int

const (
	// KindTerminal errors (constraint violations, not-found, validation)
	// are returned immediately without retrying.
	KindTerminal ErrorKind = iota

	// KindRetryable errors (connection refused, timeout, transient network)
	// are retried with backoff and count toward the circuit breaker.
	KindRetryable
)

// Classify maps an error to its retry kind.
//
// Postgres errors are classified by SQLSTATE class: 08 (connection
// exception), 53 (insufficient resources), and 57P01-57P03 (shutdown /
// cannot connect) are transient. Everything else the database says — unique
// violations, check failures, serialization errors surfaced to the caller —
// is a statement about the data, not the connection, and is terminal.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindTerminal
	}

	// Context cancellation is the caller's decision, never retried.
	if errors.Is(err, context.Canceled) {
		return KindTerminal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindRetryable
	}

	if errors.Is(err, sql.ErrNoRows) {
		return KindTerminal
	}
	if errors.Is(err, driver.ErrBadConn) {
		return KindRetryable
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindRetryable
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return KindRetryable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "53"):
			return KindRetryable
		case pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03":
			return KindRetryable
		default:
			return KindTerminal
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindRetryable
	}

	return KindTerminal
}

// Retrier executes operations with exponential backoff and routes
// connection-class failures through a shared circuit breaker.
type Retrier struct {
	breaker     *Breaker
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// NewRetrier creates a Retrier. Zero maxAttempts or baseDelay select
// 3 attempts and 100ms.
func NewRetrier(breaker *Breaker, maxAttempts int, baseDelay time.Duration, logger *slog.Logger) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	return &Retrier{
		breaker:     breaker,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
	}
}

// Do runs op, retrying retryable failures up to maxAttempts with exponential
// backoff (baseDelay * 2^attempt, with jitter). Terminal failures are
// returned as-is on the first occurrence. While the circuit is open, Do
// fails fast with ErrCircuitOpen without invoking op.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if err := r.breaker.Allow(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		err := fn(ctx)
		if err == nil {
			r.breaker.RecordSuccess()
			return nil
		}

		if Classify(err) == KindTerminal {
			// A terminal error is still an answer from the database, so
			// it counts as breaker success. In half-open this releases
			// the single probe slot and closes the circuit.
			r.breaker.RecordSuccess()
			return err
		}

		r.breaker.RecordFailure()
		lastErr = err

		if attempt == r.maxAttempts-1 {
			break
		}

		metrics.RetryAttemptsTotal.WithLabelValues(op).Inc()
		delay := r.backoff(attempt)
		r.logger.Warn("retrying database operation",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

// backoff computes baseDelay * 2^attempt with up to 25% random jitter.
func (r *Retrier) backoff(attempt int) time.Duration {
	delay := r.baseDelay * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

// Do runs fn through the retrier and returns its value. This is the
// value-returning companion to Retrier.Do for query-style operations.
func Do[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = fn(ctx)
		return innerErr
	})
	return result, err
}
