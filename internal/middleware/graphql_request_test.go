package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     func() *http.Request
		want    RequestInfo
		wantErr bool
	}{
		{
			name: "nested query",
			req: func() *http.Request {
				return postJSON(`{"query":"{ children { id parent { property } } }"}`)
			},
			want: RequestInfo{OperationType: "query", FieldCount: 4, SelectionDepth: 3},
		},
		{
			name: "named operation among several",
			req: func() *http.Request {
				return postJSON(`{"query":"query A { people { id } } query B($id: ID!) { child(id: $id) { id } }","operationName":"B"}`)
			},
			want: RequestInfo{OperationName: "B", OperationType: "query", FieldCount: 2, SelectionDepth: 2, VariableCount: 1},
		},
		{
			name: "ambiguous without name",
			req: func() *http.Request {
				return postJSON(`{"query":"query A { people { id } } query B { children { id } }"}`)
			},
			want: RequestInfo{OperationType: "unknown"},
		},
		{
			name: "fragments and inline fragments",
			req: func() *http.Request {
				return postJSON(`{"query":"{ documents { ...D ... on Request { priority } } } fragment D on Document { id title }"}`)
			},
			want: RequestInfo{OperationType: "query", FieldCount: 4, SelectionDepth: 2},
		},
		{
			name: "self-referencing fragment",
			req: func() *http.Request {
				return postJSON(`{"query":"{ employees { ...E } } fragment E on Employee { name manager { ...E } }"}`)
			},
			want: RequestInfo{OperationType: "query", FieldCount: 3, SelectionDepth: 3},
		},
		{
			name: "GET",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape("{ children { id } }"), nil)
			},
			want: RequestInfo{OperationType: "query", FieldCount: 2, SelectionDepth: 2},
		},
		{
			name: "application/graphql body",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader("{ people { id } }"))
				r.Header.Set("Content-Type", "application/graphql; charset=utf-8")
				return r
			},
			want: RequestInfo{OperationType: "query", FieldCount: 2, SelectionDepth: 2},
		},
		{
			name:    "malformed JSON",
			req:     func() *http.Request { return postJSON(`{"query":`) },
			want:    RequestInfo{OperationType: "unknown"},
			wantErr: true,
		},
		{
			name:    "syntax error",
			req:     func() *http.Request { return postJSON(`{"query":"{ children { "}`) },
			want:    RequestInfo{OperationType: "unknown"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeRequest(tt.req())
			if tt.wantErr {
				require.Error(t, got.Err)
			} else {
				require.NoError(t, got.Err)
			}
			assert.Equal(t, tt.want.OperationName, got.OperationName)
			assert.Equal(t, tt.want.OperationType, got.OperationType)
			assert.Equal(t, tt.want.FieldCount, got.FieldCount)
			assert.Equal(t, tt.want.SelectionDepth, got.SelectionDepth)
			assert.Equal(t, tt.want.VariableCount, got.VariableCount)
		})
	}
}

func TestGraphQLRequestMiddleware_RewindsBody(t *testing.T) {
	const body = `{"query":"{ children { id } }"}`
	var seen string
	var info *RequestInfo
	handler := GraphQLRequestMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		info, _ = RequestInfoFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), postJSON(body))

	assert.Equal(t, body, seen)
	require.NotNil(t, info)
	assert.Equal(t, "query", info.OperationType)
}

func postJSON(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}
