package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"entityql/internal/logging"
	"entityql/internal/observability"
)

const (
	authMethodOIDC       = "oidc"
	defaultOIDCClockSkew = 2 * time.Minute
)

// OIDCAuthConfig controls OIDC/JWKS validation.
type OIDCAuthConfig struct {
	Enabled   bool
	IssuerURL string
	Audience  string
	ClockSkew time.Duration
	// CAFile adds a PEM bundle to the roots trusted for the issuer.
	CAFile        string
	SkipTLSVerify bool
}

func newOIDCHTTPClient(cfg OIDCAuthConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.SkipTLSVerify, //nolint:gosec // local development only
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read oidc CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("oidc CA file contains no certificates")
		}
		tlsConfig.RootCAs = pool
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		Timeout:   10 * time.Second,
	}, nil
}

// OIDCAuthMiddleware validates Bearer tokens against the issuer's JWKS and
// attaches the caller to the request context. metrics may be nil.
func OIDCAuthMiddleware(cfg OIDCAuthConfig, logger *logging.Logger, metrics *observability.AuthMetrics) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = defaultOIDCClockSkew
	}
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuerURL.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}
	if logger != nil && cfg.SkipTLSVerify {
		logger.Warn("oidc tls verification is disabled; enable only for local development",
			slog.String("issuer", cfg.IssuerURL),
		)
	}

	httpClient, err := newOIDCHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.Audience})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqLogger := logging.FromContext(ctx)
			metrics.RecordAttempt(ctx, authMethodOIDC)

			reject := func(reason, message string, err error) {
				metrics.RecordFailure(ctx, authMethodOIDC, reason)
				attrs := []any{slog.String("reason", reason), slog.String("path", r.URL.Path)}
				if err != nil {
					attrs = append(attrs, slog.String("error", err.Error()))
				}
				reqLogger.Warn("authentication failed", attrs...)
				writeUnauthorized(w, message)
			}

			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				reject("missing_token", "missing bearer token", nil)
				return
			}
			idToken, err := verifier.Verify(ctx, raw)
			if err != nil {
				reject("verification_failed", "invalid token", err)
				return
			}
			claims := map[string]interface{}{}
			if err := idToken.Claims(&claims); err != nil {
				reject("claims_parse_failed", "invalid token claims", err)
				return
			}
			if err := validateTimeClaims(claims, cfg.ClockSkew, time.Now()); err != nil {
				reject("time_validation_failed", "invalid token", err)
				return
			}

			auth := AuthContext{
				Subject:  idToken.Subject,
				Issuer:   cfg.IssuerURL,
				Audience: extractAudience(claims),
				Claims:   claims,
			}
			metrics.RecordSuccess(ctx, authMethodOIDC, auth.Issuer)
			reqLogger.Debug("authentication successful", slog.String("subject", auth.Subject))
			annotateAuthSpan(ctx, auth)

			next.ServeHTTP(w, r.WithContext(WithAuthContext(ctx, auth)))
		})
	}, nil
}

func annotateAuthSpan(ctx context.Context, auth AuthContext) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String("auth.subject", auth.Subject),
		attribute.String("auth.issuer", auth.Issuer),
		attribute.Bool("auth.authenticated", true),
	)
	if len(auth.Audience) > 0 {
		span.SetAttributes(attribute.StringSlice("auth.audience", auth.Audience))
	}
}
