package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Session is a request-scoped executor. It is not safe for concurrent
// statements on its own; wrap it in a SerializedExecutor when resolvers may
// share it.
type Session interface {
	QueryExecutor
	Close() error
}

// ConnSession pins a single pooled connection for the lifetime of a request.
// The connection is acquired on first use and returned to the pool by Close.
type ConnSession struct {
	db   *sql.DB
	conn *sql.Conn
}

// NewConnSession creates a session over db without acquiring a connection yet.
func NewConnSession(db *sql.DB) *ConnSession {
	return &ConnSession{db: db}
}

func (s *ConnSession) acquire(ctx context.Context) (*sql.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	if s.db == nil {
		return nil, sql.ErrConnDone
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	s.conn = conn
	return conn, nil
}

func (s *ConnSession) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn.QueryContext(ctx, query, args...)
}

func (s *ConnSession) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn.ExecContext(ctx, query, args...)
}

// Close releases the pinned connection, if any.
func (s *ConnSession) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// SerializedExecutor allows one statement at a time on the wrapped executor.
// A query holds the lock until its rows are closed, so callers must drain and
// close rows before issuing the next statement.
type SerializedExecutor struct {
	mu    sync.Mutex
	inner QueryExecutor
}

// NewSerializedExecutor wraps inner.
func NewSerializedExecutor(inner QueryExecutor) *SerializedExecutor {
	return &SerializedExecutor{inner: inner}
}

func (e *SerializedExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	e.mu.Lock()
	rows, err := e.inner.QueryContext(ctx, query, args...)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	return &lockedRows{Rows: rows, release: sync.OnceFunc(e.mu.Unlock)}, nil
}

func (e *SerializedExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inner.ExecContext(ctx, query, args...)
}

// Close closes the wrapped executor when it is a Session.
func (e *SerializedExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.inner.(Session); ok {
		return s.Close()
	}
	return nil
}

type lockedRows struct {
	Rows
	release func()
}

func (r *lockedRows) Close() error {
	defer r.release()
	return r.Rows.Close()
}

type sessionKey struct{}

// WithSession stores the request session in ctx.
func WithSession(ctx context.Context, exec QueryExecutor) context.Context {
	return context.WithValue(ctx, sessionKey{}, exec)
}

// SessionFromContext returns the request session stored by WithSession.
func SessionFromContext(ctx context.Context) (QueryExecutor, bool) {
	if ctx == nil {
		return nil, false
	}
	exec, ok := ctx.Value(sessionKey{}).(QueryExecutor)
	return exec, ok && exec != nil
}
