package sqlrunner

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func TestExecUpdateRunsAgainstRealDB(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	r := New(nil)
	ctx := context.Background()
	require.NoError(t, r.ExecUpdate(ctx, db, "CREATE TABLE t (id INTEGER)"))
	require.NoError(t, r.ExecUpdate(ctx, db, "INSERT INTO t (id) VALUES (?)", 1))

	var got int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT id FROM t").Scan(&got))
	require.Equal(t, 1, got)
}

func TestExecUpdateWrapsNonBusyErrorImmediately(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	r := New(nil)
	err = r.ExecUpdate(context.Background(), db, "INSERT INTO missing_table (id) VALUES (1)")
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, "INSERT INTO missing_table (id) VALUES (1)", rerr.Op)
}

func TestIsBusyClassification(t *testing.T) {
	require.True(t, isBusy(errors.New("sqlite: SQLITE_BUSY: database is locked")))
	require.True(t, isBusy(errors.New("database is locked")))
	require.False(t, isBusy(errors.New("no such table: t")))
}

func TestBeginAndCommit(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	r := New(nil)
	ctx := context.Background()
	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, r.ExecUpdate(ctx, conn, "CREATE TABLE t (id INTEGER)"))
	require.NoError(t, r.Begin(ctx, conn))
	require.NoError(t, r.ExecUpdate(ctx, conn, "INSERT INTO t (id) VALUES (?)", 42))
	require.NoError(t, r.Commit(ctx, conn))

	var got int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT id FROM t").Scan(&got))
	require.Equal(t, 42, got)
}
