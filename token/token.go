// Package token mints and verifies the signed wire artifacts of the
// service: short-lived identity tokens and long-lived refresh tokens, both
// ES256 and both cryptographically scoped to a single tenant app through
// the issuer claim.
package token

import (
	"crypto/ecdsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrVerification covers every verification failure: bad signature,
// malformed token, expired token, issuer mismatch. Collapsing these into
// one error keeps the service from acting as a validity oracle.
var ErrVerification = errors.New("token: verification failed")

// ErrCreation is returned when a token cannot be minted, typically because
// the tenant app lacks the required key material.
var ErrCreation = errors.New("token: creation failed")

var allowedAlgs = []string{jwt.SigningMethodES256.Alg()}

// Claims are the registered claims carried by identity tokens plus the
// refresh-token uid.
type Claims struct {
	UID string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// Verified is the result of a successful verification, exposed to tenant
// apps through the verify endpoint.
type Verified struct {
	Headers map[string]any `json:"headers"`
	Claims  Claims         `json:"claims"`
}

// Issuer mints and verifies tokens for tenant apps. The zero value is not
// usable; construct with NewIssuer.
type Issuer struct {
	base        string
	identityTTL time.Duration
}

// NewIssuer returns an Issuer rooted at the given issuer base URL.
// identityTTL bounds the lifetime of identity tokens; refresh lifetimes are
// per tenant and passed at mint time.
func NewIssuer(base string, identityTTL time.Duration) (*Issuer, error) {
	if base == "" {
		return nil, errors.New("token: issuer base required")
	}
	if identityTTL <= 0 {
		return nil, errors.New("token: identity TTL must be positive")
	}

	return &Issuer{base: base, identityTTL: identityTTL}, nil
}

// AppIssuer returns the exact issuer claim value for a tenant app. A token
// signed for one app never carries another app's issuer, which is the
// tenant-isolation boundary enforced by Verify.
func (i *Issuer) AppIssuer(appID string) string {
	return i.base + "/app/" + appID
}

// Issue mints a short-lived identity token for subject, signed with the
// tenant's private key.
func (i *Issuer) Issue(subject, appID string, key *ecdsa.PrivateKey) (string, error) {
	return i.sign(subject, appID, "", i.identityTTL, key)
}

// IssueRefresh mints a refresh token carrying uid, with the tenant's
// configured refresh lifetime.
func (i *Issuer) IssueRefresh(subject, appID, uid string, ttl time.Duration, key *ecdsa.PrivateKey) (string, error) {
	if ttl <= 0 {
		return "", ErrCreation
	}
	return i.sign(subject, appID, uid, ttl, key)
}

func (i *Issuer) sign(subject, appID, uid string, ttl time.Duration, key *ecdsa.PrivateKey) (string, error) {
	if key == nil {
		return "", ErrCreation
	}

	now := time.Now()
	claims := Claims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.AppIssuer(appID),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	if err != nil {
		return "", ErrCreation
	}
	return signed, nil
}

// Verify checks signature, algorithm allow-list, expiry, and exact issuer
// match against the tenant app's public key. Every failure is
// ErrVerification; callers must not learn which check failed.
func (i *Issuer) Verify(tokenStr, appID string, pub *ecdsa.PublicKey) (*Verified, error) {
	if pub == nil {
		return nil, ErrVerification
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(
		tokenStr,
		&claims,
		func(*jwt.Token) (any, error) { return pub, nil },
		jwt.WithValidMethods(allowedAlgs),
		jwt.WithIssuer(i.AppIssuer(appID)),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrVerification
	}

	return &Verified{Headers: parsed.Header, Claims: claims}, nil
}

// VerifyRefresh verifies a refresh token the same way Verify does and
// extracts the (subject, uid) pair used to look up the persisted record.
func (i *Issuer) VerifyRefresh(tokenStr, appID string, pub *ecdsa.PublicKey) (subject, uid string, err error) {
	verified, err := i.Verify(tokenStr, appID, pub)
	if err != nil {
		return "", "", err
	}
	if verified.Claims.UID == "" || verified.Claims.Subject == "" {
		return "", "", ErrVerification
	}

	return verified.Claims.Subject, verified.Claims.UID, nil
}
