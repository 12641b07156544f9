// Package keyvault holds custody of tenant signing keys. Key material is
// encrypted at rest with a process-wide AES-256-GCM key that lives only in
// memory; the vault refuses to initialize without it.
package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
)

// SystemKeySize is the required size of the process symmetric key in bytes.
const SystemKeySize = 32

var (
	// ErrNoSystemKey is returned when the vault is constructed without a
	// usable symmetric key.
	ErrNoSystemKey = errors.New("keyvault: system key missing or wrong size")

	// ErrDecrypt is returned when ciphertext cannot be authenticated or
	// decrypted. Callers treat this as fatal misconfiguration, not a
	// retryable condition.
	ErrDecrypt = errors.New("keyvault: decrypt failed")
)

// Vault encrypts and decrypts tenant key material with the process key.
// A Vault is immutable after construction and safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// New constructs a Vault from a 32-byte symmetric key.
func New(systemKey []byte) (*Vault, error) {
	if len(systemKey) != SystemKeySize {
		return nil, ErrNoSystemKey
	}

	block, err := aes.NewCipher(systemKey)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under the process key. The random nonce is
// prepended to the returned ciphertext.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < v.aead.NonceSize() {
		return nil, ErrDecrypt
	}

	nonce := ciphertext[:v.aead.NonceSize()]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext[v.aead.NonceSize():], nil)
	if err != nil {
		return nil, ErrDecrypt
	}

	return plaintext, nil
}

// EncryptString seals a UTF-8 string and encodes the result as unpadded
// base64url, so it can travel through a client-controlled URL parameter.
func (v *Vault) EncryptString(s string) (string, error) {
	ct, err := v.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(ct), nil
}

// DecryptString reverses EncryptString.
func (v *Vault) DecryptString(s string) (string, error) {
	ct, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", ErrDecrypt
	}
	pt, err := v.Decrypt(ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// GenerateKeyPair produces a fresh P-256 signing key for a tenant app.
func GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// EncodePrivateKey serializes a private key as PKCS#8 PEM.
func EncodePrivateKey(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// DecodePrivateKey parses a PKCS#8 PEM private key.
func DecodePrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("keyvault: no PEM block in key material")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("keyvault: unexpected key type %T", parsed)
	}
	return key, nil
}

// SealKey generates PEM for key and encrypts it for storage on the tenant
// document.
func (v *Vault) SealKey(key *ecdsa.PrivateKey) ([]byte, error) {
	pemBytes, err := EncodePrivateKey(key)
	if err != nil {
		return nil, err
	}
	return v.Encrypt(pemBytes)
}

// OpenKey decrypts stored key material back into a usable private key.
func (v *Vault) OpenKey(ciphertext []byte) (*ecdsa.PrivateKey, error) {
	pemBytes, err := v.Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	return DecodePrivateKey(pemBytes)
}

// JWK is the public half of a tenant signing key in JSON Web Key form,
// as served to tenant apps that verify identity tokens themselves.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
}

// PublicJWK exports an ECDSA public key as a P-256 JWK.
func PublicJWK(pub *ecdsa.PublicKey) JWK {
	byteLen := (pub.Curve.Params().BitSize + 7) / 8

	return JWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(pub.X.FillBytes(make([]byte, byteLen))),
		Y:   base64.RawURLEncoding.EncodeToString(pub.Y.FillBytes(make([]byte, byteLen))),
		Use: "sig",
		Alg: "ES256",
	}
}
