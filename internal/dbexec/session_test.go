package dbexec

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolExecutor_NoDatabase(t *testing.T) {
	for name, executor := range map[string]*PoolExecutor{
		"nil db":       NewPoolExecutor(nil),
		"nil receiver": nil,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := executor.QueryContext(context.Background(), "SELECT 1")
			assert.ErrorIs(t, err, sql.ErrConnDone)

			_, err = executor.ExecContext(context.Background(), "DELETE FROM t")
			assert.ErrorIs(t, err, sql.ErrConnDone)
		})
	}
}

func TestPoolExecutor_RunsOnPool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM children").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("DELETE FROM children").WillReturnResult(sqlmock.NewResult(0, 1))

	executor := NewPoolExecutor(db)
	rows, err := executor.QueryContext(context.Background(), "SELECT id FROM children")
	require.NoError(t, err)
	require.True(t, rows.Next())
	var id int
	require.NoError(t, rows.Scan(&id))
	assert.Equal(t, 7, id)
	require.NoError(t, rows.Close())

	res, err := executor.ExecContext(context.Background(), "DELETE FROM children")
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnSession_PinsConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("SET @a").WillReturnResult(sqlmock.NewResult(0, 0))

	session := NewConnSession(db)
	rows, err := session.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.NoError(t, rows.Close())
	conn := session.conn
	require.NotNil(t, conn)

	_, err = session.ExecContext(context.Background(), "SET @a = 1")
	require.NoError(t, err)
	assert.Same(t, conn, session.conn)

	require.NoError(t, session.Close())
	assert.Nil(t, session.conn)
	require.NoError(t, session.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnSession_NilDB(t *testing.T) {
	session := NewConnSession(nil)
	_, err := session.QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

type stubRows struct{ closed bool }

func (r *stubRows) Next() bool             { return false }
func (r *stubRows) Scan(dest ...any) error { return nil }
func (r *stubRows) Err() error             { return nil }
func (r *stubRows) Close() error           { r.closed = true; return nil }

type stubExecutor struct {
	rows    *stubRows
	err     error
	queries int
}

func (e *stubExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	e.queries++
	if e.err != nil {
		return nil, e.err
	}
	e.rows = &stubRows{}
	return e.rows, nil
}

func (e *stubExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, e.err
}

func TestSerializedExecutor_HoldsLockUntilRowsClose(t *testing.T) {
	inner := &stubExecutor{}
	exec := NewSerializedExecutor(inner)

	rows, err := exec.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)

	second := make(chan struct{})
	go func() {
		r, err := exec.QueryContext(context.Background(), "SELECT 2")
		if err == nil {
			_ = r.Close()
		}
		close(second)
	}()

	select {
	case <-second:
		t.Fatal("second query ran while the first rows were open")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, rows.Close())
	require.NoError(t, rows.Close(), "double close must not unlock twice")
	<-second
	assert.Equal(t, 2, inner.queries)
}

func TestSerializedExecutor_ReleasesOnError(t *testing.T) {
	inner := &stubExecutor{err: sql.ErrTxDone}
	exec := NewSerializedExecutor(inner)

	_, err := exec.QueryContext(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, sql.ErrTxDone)
	_, err = exec.QueryContext(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, sql.ErrTxDone)
	_, err = exec.ExecContext(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, sql.ErrTxDone)
}

func TestSessionContext(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)

	exec := NewSerializedExecutor(&stubExecutor{})
	got, ok := SessionFromContext(WithSession(context.Background(), exec))
	require.True(t, ok)
	assert.Same(t, exec, got)
}
