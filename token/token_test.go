package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testBase = "https://auth.example.com"

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	return key
}

func newTestIssuer(t *testing.T, ttl time.Duration) *Issuer {
	t.Helper()

	iss, err := NewIssuer(testBase, ttl)
	if err != nil {
		t.Fatalf("issuer init failed: %v", err)
	}
	return iss
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	iss := newTestIssuer(t, time.Hour)
	key := newTestKey(t)

	tok, err := iss.Issue("user@example.com", "app-1", key)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	verified, err := iss.Verify(tok, "app-1", &key.PublicKey)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if verified.Claims.Subject != "user@example.com" {
		t.Fatalf("subject mismatch: %q", verified.Claims.Subject)
	}
	if verified.Claims.Issuer != testBase+"/app/app-1" {
		t.Fatalf("issuer mismatch: %q", verified.Claims.Issuer)
	}
	if verified.Headers["alg"] != "ES256" {
		t.Fatalf("unexpected alg header: %v", verified.Headers["alg"])
	}
	if verified.Claims.IssuedAt == nil || verified.Claims.ExpiresAt == nil {
		t.Fatal("iat and exp must be present")
	}
}

func TestVerifyUnderOtherAppFails(t *testing.T) {
	iss := newTestIssuer(t, time.Hour)
	keyA := newTestKey(t)
	keyB := newTestKey(t)

	tok, err := iss.Issue("user@example.com", "app-a", keyA)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// Other tenant's key and issuer.
	if _, err := iss.Verify(tok, "app-b", &keyB.PublicKey); err != ErrVerification {
		t.Fatalf("expected ErrVerification across tenants, got %v", err)
	}
	// Other tenant's issuer even with the right key.
	if _, err := iss.Verify(tok, "app-b", &keyA.PublicKey); err != ErrVerification {
		t.Fatalf("expected ErrVerification on issuer mismatch, got %v", err)
	}
}

func TestVerifyExpiredFails(t *testing.T) {
	key := newTestKey(t)

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testBase + "/app/app-1",
			Subject:   "user@example.com",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	iss := newTestIssuer(t, time.Hour)
	if _, err := iss.Verify(expired, "app-1", &key.PublicKey); err != ErrVerification {
		t.Fatalf("expected ErrVerification for expired token, got %v", err)
	}
}

func TestVerifyMalformedFails(t *testing.T) {
	iss := newTestIssuer(t, time.Hour)
	key := newTestKey(t)

	for _, bad := range []string{
		"",
		"not-even-a-real-token",
		"fakeheaders.fakeclaims.whoknows",
	} {
		if _, err := iss.Verify(bad, "app-1", &key.PublicKey); err != ErrVerification {
			t.Fatalf("expected ErrVerification for %q, got %v", bad, err)
		}
	}
}

func TestVerifyRejectsForeignAlgorithm(t *testing.T) {
	iss := newTestIssuer(t, time.Hour)
	key := newTestKey(t)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testBase + "/app/app-1",
			Subject:   "user@example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("hmac-secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := iss.Verify(hs, "app-1", &key.PublicKey); err != ErrVerification {
		t.Fatalf("expected ErrVerification for HS256 token, got %v", err)
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	iss := newTestIssuer(t, time.Hour)
	key := newTestKey(t)

	tok, err := iss.IssueRefresh("user@example.com", "app-1", "uid-123", 24*time.Hour, key)
	if err != nil {
		t.Fatalf("issue refresh failed: %v", err)
	}
	if strings.Count(tok, ".") != 2 {
		t.Fatalf("not a compact JWT: %q", tok)
	}

	subject, uid, err := iss.VerifyRefresh(tok, "app-1", &key.PublicKey)
	if err != nil {
		t.Fatalf("verify refresh failed: %v", err)
	}
	if subject != "user@example.com" || uid != "uid-123" {
		t.Fatalf("claim mismatch: subject=%q uid=%q", subject, uid)
	}
}

func TestRefreshRequiresUID(t *testing.T) {
	iss := newTestIssuer(t, time.Hour)
	key := newTestKey(t)

	// An identity token has no uid and must not pass as a refresh token.
	idTok, err := iss.Issue("user@example.com", "app-1", key)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, _, err := iss.VerifyRefresh(idTok, "app-1", &key.PublicKey); err != ErrVerification {
		t.Fatalf("expected ErrVerification without uid claim, got %v", err)
	}
}

func TestIssueRefreshRequiresLifetime(t *testing.T) {
	iss := newTestIssuer(t, time.Hour)
	key := newTestKey(t)

	if _, err := iss.IssueRefresh("user@example.com", "app-1", "uid", 0, key); err != ErrCreation {
		t.Fatalf("expected ErrCreation for zero lifetime, got %v", err)
	}
}
