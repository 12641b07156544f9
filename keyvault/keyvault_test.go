package keyvault

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()

	key := make([]byte, SystemKeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand read failed: %v", err)
	}
	return key
}

func TestNewRejectsBadKey(t *testing.T) {
	if _, err := New(nil); err != ErrNoSystemKey {
		t.Fatalf("expected ErrNoSystemKey for nil key, got %v", err)
	}
	if _, err := New(make([]byte, 16)); err != ErrNoSystemKey {
		t.Fatalf("expected ErrNoSystemKey for short key, got %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := New(testKey(t))
	if err != nil {
		t.Fatalf("vault init failed: %v", err)
	}

	plaintext := []byte("tenant signing key material")
	ct, err := v.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if bytes.Contains(ct, plaintext) {
		t.Fatal("ciphertext contains plaintext")
	}

	got, err := v.Decrypt(ct)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	v1, _ := New(testKey(t))
	v2, _ := New(testKey(t))

	ct, err := v1.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	if _, err := v2.Decrypt(ct); err != ErrDecrypt {
		t.Fatalf("expected ErrDecrypt under wrong key, got %v", err)
	}
}

func TestDecryptCorruptedCiphertextFails(t *testing.T) {
	v, _ := New(testKey(t))

	ct, err := v.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	ct[len(ct)-1] ^= 0xff

	if _, err := v.Decrypt(ct); err != ErrDecrypt {
		t.Fatalf("expected ErrDecrypt for corrupted ciphertext, got %v", err)
	}
	if _, err := v.Decrypt([]byte("tiny")); err != ErrDecrypt {
		t.Fatalf("expected ErrDecrypt for truncated ciphertext, got %v", err)
	}
}

func TestSealOpenKeyRoundTrip(t *testing.T) {
	v, _ := New(testKey(t))

	key, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("keypair generation failed: %v", err)
	}

	sealed, err := v.SealKey(key)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	opened, err := v.OpenKey(sealed)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !key.Equal(opened) {
		t.Fatal("opened key does not equal generated key")
	}
}

func TestEncryptStringRoundTrip(t *testing.T) {
	v, _ := New(testKey(t))

	enc, err := v.EncryptString("user@example.com")
	if err != nil {
		t.Fatalf("encrypt string failed: %v", err)
	}

	got, err := v.DecryptString(enc)
	if err != nil {
		t.Fatalf("decrypt string failed: %v", err)
	}
	if got != "user@example.com" {
		t.Fatalf("round trip mismatch: got %q", got)
	}

	if _, err := v.DecryptString("!!not-base64url!!"); err == nil {
		t.Fatal("expected error for malformed input")
	}
}

func TestPublicJWK(t *testing.T) {
	key, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("keypair generation failed: %v", err)
	}

	jwk := PublicJWK(&key.PublicKey)
	if jwk.Kty != "EC" || jwk.Crv != "P-256" || jwk.Alg != "ES256" {
		t.Fatalf("unexpected JWK header fields: %+v", jwk)
	}
	if jwk.X == "" || jwk.Y == "" {
		t.Fatal("JWK coordinates must not be empty")
	}
}
