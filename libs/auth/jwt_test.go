package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

func testClaims(tenant, role string) Claims {
	now := time.Now()
	return Claims{
		TenantID: tenant,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(testClaims("tenant-1", "owner"), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	v := newVerifier([]byte(secret), nil, "", 0)
	parsed, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.TenantID != "tenant-1" || parsed.Role != "owner" || parsed.Subject != "user-1" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}

	if _, err := newVerifier([]byte("wrong-secret"), nil, "", 0).Verify(token); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestVerifyRejectsExpiredAndTenantless(t *testing.T) {
	secret := "test-secret"
	v := newVerifier([]byte(secret), nil, "", time.Second)

	expired := testClaims("tenant-1", "owner")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token, _ := SignHS256(expired, secret)
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}

	token, _ = SignHS256(testClaims("", "owner"), secret)
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected token without tenant_id to be rejected")
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	set, err := json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "kid-1",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	})
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	jwks, err := keyfunc.NewJWKSetJSON(set)
	if err != nil {
		t.Fatalf("NewJWKSetJSON failed: %v", err)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims("tenant-2", "admin"))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign RS256: %v", err)
	}

	v := newVerifier(nil, jwks, "", 0)
	parsed, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.TenantID != "tenant-2" || parsed.Role != "admin" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
}

func TestNewVerifierRequiresKeyMaterial(t *testing.T) {
	if _, err := NewVerifier(context.Background(), VerifierConfig{}); err == nil {
		t.Fatal("expected error without secret or jwks url")
	}
}

func TestRequireAuthAndRole(t *testing.T) {
	secret := "test-secret"
	v := newVerifier([]byte(secret), nil, "", 0)
	h := RequireAuth(v)(RequireRole("owner", "admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TenantFromContext(r.Context()) != "tenant-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})))

	send := func(authz string) int {
		req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		return rw.Code
	}

	owner, _ := SignHS256(testClaims("tenant-1", "owner"), secret)
	if code := send("Bearer " + owner); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	member, _ := SignHS256(testClaims("tenant-1", "member"), secret)
	if code := send("Bearer " + member); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := send("Bearer badtoken"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if code := send(""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", code)
	}
}
