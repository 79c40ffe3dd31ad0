// Package dbexec runs the SQL the planner produces. Statements go either
// straight to the pool or through a request session that pins one connection
// and lets a single statement run on it at a time.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows is a result cursor. Close must be called once the caller is done
// reading, even after an error: rows returned by a SerializedExecutor keep
// the session locked until then, and the next statement on that session
// waits for it.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor is what the query layer and filter predicates run statements
// through. Implementations returned by SessionFromContext are shared by every
// resolver of a request; they accept calls from several goroutines but
// execute them one after another, so a caller holding open Rows must close
// them before issuing another statement on the same goroutine.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PoolExecutor sends each statement to whichever pooled connection is free.
// It carries no session state and needs no serialization.
type PoolExecutor struct {
	db *sql.DB
}

// NewPoolExecutor returns an executor over db.
func NewPoolExecutor(db *sql.DB) *PoolExecutor {
	return &PoolExecutor{db: db}
}

func (e *PoolExecutor) handle() (*sql.DB, error) {
	if e == nil || e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db, nil
}

func (e *PoolExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	db, err := e.handle()
	if err != nil {
		return nil, err
	}
	return db.QueryContext(ctx, query, args...)
}

func (e *PoolExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := e.handle()
	if err != nil {
		return nil, err
	}
	return db.ExecContext(ctx, query, args...)
}
