package emberauth

import (
	"errors"

	"github.com/emberauth/emberauth/token"
)

var (
	// ErrEngineNotReady is returned when an Engine method is called on an
	// engine missing a required dependency.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrNotFound is returned when a tenant app or refresh record does not
	// exist.
	ErrNotFound = errors.New("not found")

	// ErrAppExists is returned when inserting an app whose ID is taken.
	ErrAppExists = errors.New("app already exists")

	// ErrTokenVerification covers signature, issuer, expiry, and malformed
	// token failures. The classes are deliberately collapsed so callers
	// cannot use the engine as a validity oracle.
	ErrTokenVerification = token.ErrVerification

	// ErrTokenCreation is returned when a token cannot be minted, such as a
	// refresh token requested on an app without refresh enabled.
	ErrTokenCreation = token.ErrCreation

	// ErrChallengeInvalid is returned when a presented one-time code or
	// magic-link secret does not match, has expired, or was never issued.
	// The cases are deliberately indistinguishable.
	ErrChallengeInvalid = errors.New("challenge invalid")

	// ErrQuotaExhausted is returned when an app's authentication quota is
	// spent. Surfaced to callers as a service-unavailable condition.
	ErrQuotaExhausted = errors.New("authentication quota exhausted")

	// ErrDeleteProtected is returned when an app deletion is attempted
	// without a valid deletion-protection code.
	ErrDeleteProtected = errors.New("deletion protection code required")

	// ErrSecretStoreUnavailable wraps ephemeral-store backend failures.
	ErrSecretStoreUnavailable = errors.New("secret store unavailable")

	// ErrKeyMaterial is returned when tenant key material cannot be
	// decrypted or parsed. This indicates misconfiguration of the system
	// key, not a recoverable per-request condition.
	ErrKeyMaterial = errors.New("tenant key material unusable")
)
