// Command jwt-mint prints a signed development token for entityql.
//
// HS256 tokens match server.auth.jwt_secret. RS256 tokens (with --key) are
// meant for a local OIDC issuer.
package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
)

type mintOptions struct {
	secret   []byte
	key      *rsa.PrivateKey
	kid      string
	issuer   string
	audience string
	subject  string
	claims   []string
	expires  time.Duration
	now      time.Time
}

func main() {
	currentUser, err := user.Current()
	if err != nil {
		currentUser = &user.User{Username: "user-1"}
	}

	secretPath := pflag.String("secret-file", ".auth/jwt_secret", "Path to the HS256 shared secret")
	keyPath := pflag.String("key", "", "Path to an RSA private key (PEM); switches to RS256")
	kid := pflag.String("kid", "local-key", "JWT key ID (RS256 only)")
	issuer := pflag.String("issuer", "entityql-dev", "JWT issuer")
	audience := pflag.String("audience", "entityql", "JWT audience (comma-separated)")
	subject := pflag.String("subject", currentUser.Username, "JWT subject")
	claims := pflag.StringSlice("claim", nil, "Extra string claim as name=value (repeatable)")
	expires := pflag.Duration("expires", time.Hour, "Token lifetime (e.g. 1h)")
	pflag.Parse()

	opts := mintOptions{
		kid:      *kid,
		issuer:   *issuer,
		audience: *audience,
		subject:  *subject,
		claims:   *claims,
		expires:  *expires,
		now:      time.Now(),
	}
	if *keyPath != "" {
		opts.key, err = loadPrivateKey(*keyPath)
	} else {
		opts.secret, err = loadSecret(*secretPath)
	}
	if err != nil {
		exitErr(err)
	}

	signed, err := mint(opts)
	if err != nil {
		exitErr(err)
	}
	fmt.Println(signed)
}

func mint(opts mintOptions) (string, error) {
	claims := jwt.MapClaims{
		"iss": opts.issuer,
		"sub": opts.subject,
		"aud": splitList(opts.audience),
		"iat": opts.now.Unix(),
		"exp": opts.now.Add(opts.expires).Unix(),
		"nbf": opts.now.Add(-1 * time.Minute).Unix(),
	}
	for _, claim := range opts.claims {
		name, value, ok := strings.Cut(claim, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return "", fmt.Errorf("claim %q must be name=value", claim)
		}
		claims[name] = value
	}

	if opts.key != nil {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		token.Header["kid"] = opts.kid
		return token.SignedString(opts.key)
	}
	if len(opts.secret) == 0 {
		return "", fmt.Errorf("a shared secret or an RSA key is required")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(opts.secret)
}

func loadSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shared secret: %w", err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return nil, fmt.Errorf("shared secret file %s is empty", path)
	}
	return []byte(secret), nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key pem")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type")
	}
	return rsaKey, nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func splitList(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
