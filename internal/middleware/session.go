package middleware

import (
	"database/sql"
	"log/slog"
	"net/http"

	"entityql/internal/dbexec"
	"entityql/internal/logging"
)

// SessionMiddleware gives each request one pinned database connection,
// serialized so that resolvers running in parallel never interleave
// statements on it. The connection returns to the pool when the request
// ends.
func SessionMiddleware(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if db == nil {
				next.ServeHTTP(w, r)
				return
			}
			session := dbexec.NewSerializedExecutor(dbexec.NewConnSession(db))
			defer func() {
				if err := session.Close(); err != nil {
					logging.FromContext(r.Context()).Warn("failed to release request session",
						slog.String("error", err.Error()),
					)
				}
			}()
			next.ServeHTTP(w, r.WithContext(dbexec.WithSession(r.Context(), session)))
		})
	}
}
