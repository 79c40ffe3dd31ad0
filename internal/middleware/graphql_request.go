package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// RequestInfo describes the GraphQL operation of an HTTP request.
type RequestInfo struct {
	OperationName string
	// OperationType is query, mutation or subscription; "unknown" when the
	// document could not be parsed or no operation was selected.
	OperationType  string
	FieldCount     int
	SelectionDepth int
	VariableCount  int
	DocumentBytes  int
	// Err is the decode or parse failure, if any. The GraphQL handler
	// reports it to the client.
	Err error
}

type requestInfoKey struct{}

// RequestInfoFromContext returns the info stored by GraphQLRequestMiddleware.
func RequestInfoFromContext(ctx context.Context) (*RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info, ok && info != nil
}

// GraphQLRequestMiddleware analyzes the GraphQL payload once and stores the
// result for the tracing and metrics layers. The body is rewound for the
// handler.
func GraphQLRequestMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := AnalyzeRequest(r)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))
		})
	}
}

// AnalyzeRequest decodes a GET or POST GraphQL request and measures its
// selected operation.
func AnalyzeRequest(r *http.Request) *RequestInfo {
	query, operationName, err := decodeRequest(r)
	info := &RequestInfo{OperationName: operationName, OperationType: "unknown", DocumentBytes: len(query)}
	if err != nil {
		info.Err = err
		return info
	}
	if strings.TrimSpace(query) == "" {
		return info
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query), Name: "graphql"}),
	})
	if err != nil {
		info.Err = err
		return info
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var ops []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			if d.Name != nil {
				fragments[d.Name.Value] = d
			}
		case *ast.OperationDefinition:
			ops = append(ops, d)
		}
	}
	op := selectOperation(ops, operationName)
	if op == nil {
		return info
	}
	if op.Name != nil {
		info.OperationName = op.Name.Value
	}
	info.OperationType = op.Operation
	info.VariableCount = len(op.VariableDefinitions)
	info.FieldCount, info.SelectionDepth = countFieldsAndDepth(op.SelectionSet, fragments, 1, map[string]bool{})
	return info
}

func decodeRequest(r *http.Request) (query, operationName string, err error) {
	switch r.Method {
	case http.MethodGet:
		return r.URL.Query().Get("query"), r.URL.Query().Get("operationName"), nil
	case http.MethodPost:
	default:
		return "", "", nil
	}
	if r.Body == nil {
		return "", "", nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	mediaType, _, parseErr := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if parseErr == nil && mediaType == "application/graphql" {
		return string(body), "", nil
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", "", nil
	}
	var payload struct {
		Query         string `json:"query"`
		OperationName string `json:"operationName"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return "", "", err
	}
	return payload.Query, payload.OperationName, nil
}

// selectOperation picks the named operation, or the only one when no name
// is given.
func selectOperation(ops []*ast.OperationDefinition, name string) *ast.OperationDefinition {
	if name == "" {
		if len(ops) == 1 {
			return ops[0]
		}
		return nil
	}
	for _, op := range ops {
		if op.Name != nil && op.Name.Value == name {
			return op
		}
	}
	return nil
}

// countFieldsAndDepth walks a selection set. Fragments count once per
// spread path; a fragment spreading itself is cut off.
func countFieldsAndDepth(set *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, depth int, inFlight map[string]bool) (fields, maxDepth int) {
	if set == nil {
		return 0, depth - 1
	}
	maxDepth = depth
	merge := func(n, d int) {
		fields += n
		maxDepth = max(maxDepth, d)
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			fields++
			if sel.SelectionSet != nil {
				merge(countFieldsAndDepth(sel.SelectionSet, fragments, depth+1, inFlight))
			}
		case *ast.InlineFragment:
			merge(countFieldsAndDepth(sel.SelectionSet, fragments, depth, inFlight))
		case *ast.FragmentSpread:
			name := sel.Name.Value
			frag, ok := fragments[name]
			if !ok || inFlight[name] {
				continue
			}
			inFlight[name] = true
			merge(countFieldsAndDepth(frag.SelectionSet, fragments, depth, inFlight))
			delete(inFlight, name)
		}
	}
	return fields, maxDepth
}
