package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"entityql/internal/logging"
	"entityql/internal/observability"
)

const authMethodHS256 = "hs256"

// SharedSecretAuthConfig validates HS256 tokens signed with a shared secret.
// It exists for development and tests where no OIDC issuer is available.
type SharedSecretAuthConfig struct {
	Secret string
	// Issuer and Audience are checked when set.
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	// Optional rejects no requests; a missing token leaves the request
	// anonymous and only a bad token is refused.
	Optional bool
}

// SharedSecretAuthMiddleware authenticates Bearer tokens signed with HS256.
func SharedSecretAuthMiddleware(cfg SharedSecretAuthConfig, metrics *observability.AuthMetrics) (func(http.Handler) http.Handler, error) {
	secret := []byte(strings.TrimSpace(cfg.Secret))
	if len(secret) == 0 {
		return nil, errors.New("shared-secret auth requires a secret")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" && cfg.Optional {
				next.ServeHTTP(w, r)
				return
			}
			metrics.RecordAttempt(ctx, authMethodHS256)
			if raw == "" {
				metrics.RecordFailure(ctx, authMethodHS256, "missing_token")
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
				metrics.RecordFailure(ctx, authMethodHS256, "verification_failed")
				logging.FromContext(ctx).Warn("authentication failed",
					slog.String("reason", "verification_failed"),
					slog.String("error", err.Error()),
				)
				writeUnauthorized(w, "invalid token")
				return
			}

			subject, _ := claims.GetSubject()
			issuer, _ := claims.GetIssuer()
			audience, _ := claims.GetAudience()
			auth := AuthContext{
				Subject:  subject,
				Issuer:   issuer,
				Audience: audience,
				Claims:   claims,
			}
			metrics.RecordSuccess(ctx, authMethodHS256, issuer)
			annotateAuthSpan(ctx, auth)
			next.ServeHTTP(w, r.WithContext(WithAuthContext(ctx, auth)))
		})
	}, nil
}
