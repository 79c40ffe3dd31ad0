package resolver

import (
	"context"

	"entityql/internal/dbexec"
	"entityql/internal/filters"
	"entityql/internal/middleware"
)

type userContextKey struct{}

// WithUserContext attaches a host value that filter predicates receive as
// filters.Context.UserContext.
func WithUserContext(ctx context.Context, value any) context.Context {
	return context.WithValue(ctx, userContextKey{}, value)
}

// UserContextFromContext returns the value attached by WithUserContext.
func UserContextFromContext(ctx context.Context) any {
	return ctx.Value(userContextKey{})
}

func (b *SchemaBuilder) filterContext(ctx context.Context) filters.Context {
	fc := filters.Context{UserContext: UserContextFromContext(ctx)}
	if session, ok := dbexec.SessionFromContext(ctx); ok {
		fc.Session = session
	} else if b.exec != nil {
		fc.Session = b.exec
	}
	if auth, ok := middleware.AuthFromContext(ctx); ok {
		fc.Principal = &auth
	}
	return fc
}
