package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"entityql/internal/observability"
)

// GraphQLMetricsMiddleware records request counts, durations and operation
// shape. GraphiQL page loads (GET without a query) are not counted.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			info, ok := RequestInfoFromContext(r.Context())
			if !ok {
				info = AnalyzeRequest(r)
			}
			if r.Method != http.MethodPost && info.DocumentBytes == 0 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)
			if info.Err == nil && info.OperationType != "unknown" {
				metrics.RecordShape(ctx, info.SelectionDepth, info.FieldCount, info.OperationType)
			}

			start := time.Now()
			wrapped := &bodyRecorder{statusRecorder: statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}}
			next.ServeHTTP(wrapped, r)

			hasErrors := wrapped.statusCode >= 400 || responseHasGraphQLErrors(wrapped.body.Bytes())
			metrics.RecordRequest(ctx, time.Since(start), hasErrors, info.OperationType)
		})
	}
}

// bodyRecorder also keeps a copy of the response body.
type bodyRecorder struct {
	statusRecorder
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	_, _ = w.body.Write(b)
	return w.statusRecorder.Write(b)
}

func responseHasGraphQLErrors(body []byte) bool {
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &payload); err != nil {
		return false
	}
	return len(payload.Errors) > 0
}
