package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMint_HS256RoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	now := time.Now()
	signed, err := mint(mintOptions{
		secret:   secret,
		issuer:   "entityql-dev",
		audience: "entityql, other",
		subject:  "alice",
		claims:   []string{"tenant=acme"},
		expires:  time.Hour,
		now:      now,
	})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer("entityql-dev"),
		jwt.WithAudience("entityql"),
	)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims["sub"] != "alice" || claims["tenant"] != "acme" {
		t.Fatalf("unexpected claims: %v", claims)
	}
}

func TestMint_RS256SetsKeyID(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signed, err := mint(mintOptions{key: key, kid: "local-key", subject: "bob", expires: time.Minute, now: time.Now()})
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	token, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) { return &key.PublicKey, nil })
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if token.Header["kid"] != "local-key" {
		t.Fatalf("expected kid header, got %v", token.Header["kid"])
	}
}

func TestMint_Errors(t *testing.T) {
	if _, err := mint(mintOptions{now: time.Now()}); err == nil {
		t.Fatalf("expected error without a secret or key")
	}
	if _, err := mint(mintOptions{secret: []byte("x"), claims: []string{"novalue"}, now: time.Now()}); err == nil {
		t.Fatalf("expected error for malformed claim")
	}
}

func TestLoadSecretAndKey(t *testing.T) {
	dir := t.TempDir()
	secretPath := filepath.Join(dir, "secret")
	if err := os.WriteFile(secretPath, []byte(" s3cret\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	secret, err := loadSecret(secretPath)
	if err != nil || string(secret) != "s3cret" {
		t.Fatalf("unexpected secret %q (%v)", secret, err)
	}

	emptyPath := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyPath, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	if _, err := loadSecret(emptyPath); err == nil {
		t.Fatalf("expected empty secret to fail")
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyPath := filepath.Join(dir, "key.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(keyPath, pemBytes, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	loaded, err := loadPrivateKey(keyPath)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	if !loaded.PublicKey.Equal(&key.PublicKey) {
		t.Fatalf("loaded key does not match")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected list %v", got)
	}
}
