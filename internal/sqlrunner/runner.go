// Package sqlrunner provides thin transaction and exec helpers over the
// embedded SQL engine, with bounded-classification/unbounded-elapsed-time
// retry on SQLITE_BUSY.
package sqlrunner

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Execer is satisfied by both *sql.DB and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Error reports a failure from the embedded SQL engine during prepare,
// step, finalize, begin, commit, or pragma execution.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "sqlrunner: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Runner executes SQL against the embedded engine on behalf of the CEP
// engine. It carries no database handle of its own — every call takes the
// target connection explicitly so the caller controls transaction scope.
type Runner struct {
	logger *slog.Logger
}

// New returns a Runner that logs retries and failures through logger. A nil
// logger falls back to slog.Default().
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Begin executes BEGIN against conn.
func (r *Runner) Begin(ctx context.Context, conn Execer) error {
	return r.ExecUpdate(ctx, conn, "BEGIN")
}

// Commit executes COMMIT against conn.
func (r *Runner) Commit(ctx context.Context, conn Execer) error {
	return r.ExecUpdate(ctx, conn, "COMMIT")
}

// ExecUpdate prepares, steps to completion, and finalizes query against
// execer, retrying indefinitely (exponential backoff, no elapsed-time
// ceiling) while the error is classified as BUSY. Any other error aborts
// the retry loop immediately and is returned wrapped as *Error.
//
// Reserved for DDL/PRAGMA and one-shot statements — bulk inserts prepare
// their own parameterised statement directly against a *sql.Conn so rows
// can be bound and stepped one at a time (see internal/cep).
func (r *Runner) ExecUpdate(ctx context.Context, execer Execer, query string, args ...any) error {
	op := func() error {
		_, err := execer.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		if isBusy(err) {
			r.logger.Warn("sql statement busy, retrying", "fn", "ExecUpdate", "query", query)
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry on BUSY indefinitely, per spec

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		var perr *backoff.PermanentError
		if errors.As(err, &perr) {
			err = perr.Err
		}
		return &Error{Op: query, Err: err}
	}
	return nil
}

func isBusy(err error) bool {
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "DATABASE IS LOCKED")
}

// BusyBackoffFloor is exposed for tests that want to assert the retry loop
// never waits less than SQLite's own cooperative minimum.
const BusyBackoffFloor = 10 * time.Millisecond
