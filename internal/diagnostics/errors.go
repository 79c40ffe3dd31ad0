// Package diagnostics defines the error kinds surfaced to schema authors and
// GraphQL clients: configuration mistakes, wrapped query failures, not-found
// results, and pass-through cancellation.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ConfigError reports a schema-author mistake found at registration or first
// use. It is never retried.
type ConfigError struct {
	// Type is the entity type being configured.
	Type string
	// Member names the offending navigation or property, when there is one.
	Member  string
	Message string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Type != "" {
		b.WriteString(" on ")
		b.WriteString(e.Type)
	}
	if e.Member != "" {
		b.WriteString(" (")
		b.WriteString(e.Member)
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// Configf builds a ConfigError.
func Configf(entityType, member, format string, args ...any) *ConfigError {
	return &ConfigError{Type: entityType, Member: member, Message: fmt.Sprintf(format, args...)}
}

// QueryError wraps a failed query with the field, entity types and SQL that
// produced it. The cause is always kept.
type QueryError struct {
	Field string
	Types []string
	SQL   string
	Err   error
}

func (e *QueryError) Error() string {
	var b strings.Builder
	b.WriteString("query failed")
	if e.Field != "" {
		b.WriteString(" for field ")
		b.WriteString(e.Field)
	}
	if len(e.Types) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Types, ", "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// WrapQuery wraps err with query context. Cancellation and errors that are
// already QueryErrors are returned unchanged; a field name is filled in when
// the existing QueryError has none.
func WrapQuery(err error, field, sql string, types ...string) error {
	if err == nil || IsCanceled(err) {
		return err
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		if qe.Field == "" && field != "" {
			qe.Field = field
		}
		return err
	}
	return &QueryError{Field: field, Types: types, SQL: sql, Err: NormalizeDriverError(err)}
}

// NotFoundError reports zero rows for a non-nullable single-result field.
type NotFoundError struct {
	Field string
	Type  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found for field %s", e.Type, e.Field)
}

// IsCanceled reports whether err is a context cancellation or deadline.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ErrAccessDenied replaces driver access-denied errors so table and column
// names are not leaked to clients.
var ErrAccessDenied = errors.New("access denied")

const (
	mysqlErrDBAccessDenied     = 1044
	mysqlErrTableAccessDenied  = 1142
	mysqlErrColumnAccessDenied = 1143
)

// NormalizeDriverError maps MySQL access-denied errors to ErrAccessDenied.
func NormalizeDriverError(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDBAccessDenied, mysqlErrTableAccessDenied, mysqlErrColumnAccessDenied:
			return ErrAccessDenied
		}
	}
	return err
}
