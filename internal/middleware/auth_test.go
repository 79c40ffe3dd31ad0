package middleware

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":      "abc",
		"bearer   abc  ":  "abc",
		"Basic abc":       "",
		"Bearer":          "",
		"":                "",
		" Bearer x.y.z  ": "x.y.z",
	}
	for in, want := range tests {
		assert.Equal(t, want, bearerToken(in), "%q", in)
	}
}

func TestValidateTimeClaims(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	skew := time.Minute

	assert.NoError(t, validateTimeClaims(map[string]interface{}{}, skew, now))
	assert.NoError(t, validateTimeClaims(map[string]interface{}{"exp": float64(now.Unix() - 30)}, skew, now))
	assert.EqualError(t, validateTimeClaims(map[string]interface{}{"exp": now.Unix() - 120}, skew, now), "token expired")
	assert.EqualError(t, validateTimeClaims(map[string]interface{}{"nbf": json.Number("1700000600")}, skew, now), "token not valid yet")
	assert.NoError(t, validateTimeClaims(map[string]interface{}{"nbf": "1700000030"}, skew, now))
}

func TestExtractAudience(t *testing.T) {
	assert.Equal(t, []string{"a"}, extractAudience(map[string]interface{}{"aud": "a"}))
	assert.Equal(t, []string{"a", "b"}, extractAudience(map[string]interface{}{"aud": []interface{}{"a", 1, "b"}}))
	assert.Nil(t, extractAudience(map[string]interface{}{}))
}

func TestAuthContextRoundTrip(t *testing.T) {
	_, ok := AuthFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithAuthContext(context.Background(), AuthContext{Subject: "alice"})
	auth, ok := AuthFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", auth.Subject)
}
