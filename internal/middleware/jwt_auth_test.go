package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "entityql-test-secret"

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func serveWithAuth(t *testing.T, cfg SharedSecretAuthConfig, header string) (*httptest.ResponseRecorder, *AuthContext) {
	t.Helper()

	mw, err := SharedSecretAuthMiddleware(cfg, nil)
	require.NoError(t, err)

	var seen *AuthContext
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth, ok := AuthFromContext(r.Context()); ok {
			seen = &auth
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestSharedSecretAuth_RequiresSecret(t *testing.T) {
	_, err := SharedSecretAuthMiddleware(SharedSecretAuthConfig{Secret: "  "}, nil)
	require.Error(t, err)
}

func TestSharedSecretAuth_AcceptsValidToken(t *testing.T) {
	token := signHS256(t, testSecret, jwt.MapClaims{
		"sub":    "alice",
		"iss":    "entityql-dev",
		"aud":    []string{"entityql"},
		"exp":    time.Now().Add(time.Hour).Unix(),
		"tenant": "a",
	})

	rec, auth := serveWithAuth(t, SharedSecretAuthConfig{Secret: testSecret, Issuer: "entityql-dev", Audience: "entityql"}, "Bearer "+token)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, auth)
	assert.Equal(t, "alice", auth.Subject)
	assert.Equal(t, "entityql-dev", auth.Issuer)
	assert.Equal(t, []string{"entityql"}, auth.Audience)
	assert.Equal(t, "a", auth.Claims["tenant"])
}

func TestSharedSecretAuth_Rejects(t *testing.T) {
	valid := jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name   string
		cfg    SharedSecretAuthConfig
		header string
	}{
		{name: "missing token", cfg: SharedSecretAuthConfig{Secret: testSecret}},
		{name: "wrong scheme", cfg: SharedSecretAuthConfig{Secret: testSecret}, header: "Basic " + signHS256(t, testSecret, valid)},
		{name: "wrong secret", cfg: SharedSecretAuthConfig{Secret: testSecret}, header: "Bearer " + signHS256(t, "other", valid)},
		{
			name:   "expired",
			cfg:    SharedSecretAuthConfig{Secret: testSecret},
			header: "Bearer " + signHS256(t, testSecret, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(-time.Hour).Unix()}),
		},
		{name: "wrong issuer", cfg: SharedSecretAuthConfig{Secret: testSecret, Issuer: "someone-else"}, header: "Bearer " + signHS256(t, testSecret, valid)},
		{name: "garbage", cfg: SharedSecretAuthConfig{Secret: testSecret, Optional: true}, header: "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, auth := serveWithAuth(t, tt.cfg, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assert.Nil(t, auth)
		})
	}
}

func TestSharedSecretAuth_OptionalAllowsAnonymous(t *testing.T) {
	rec, auth := serveWithAuth(t, SharedSecretAuthConfig{Secret: testSecret, Optional: true}, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, auth)
}
