// Package crypto implements the cookie encryption envelope and the random
// values used by the login flow.
//
// Cookie values are sealed with AES-256-GCM into a versioned binary envelope
//
//	[version:1][nonce:12][ciphertext:N][tag:16]
//
// transported as unpadded base64url. The format is shared with other token
// handler implementations, so it must not change without bumping the version
// byte.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	versionSize = 1
	nonceSize   = 12
	tagSize     = 16

	currentVersion = 1

	// A well-formed envelope holds at least one ciphertext byte.
	minEnvelopeSize = versionSize + nonceSize + 1 + tagSize
)

// ErrInvalidEnvelope reports a value that fails the length or version checks
// before any decryption is attempted: not our format, or truncated.
var ErrInvalidEnvelope = errors.New("cookie value is not a valid envelope")

// ErrDecryptionFailed reports a well-formed envelope whose authentication
// tag did not verify: wrong key, corrupted ciphertext, or a cookie written
// before a key rotation. Callers map this to re-authentication rather than a
// hard failure.
var ErrDecryptionFailed = errors.New("cookie decryption failed")

// EncryptCookie seals plaintext under key with a fresh random nonce and
// returns the base64url-encoded envelope. The key must be 32 bytes.
func EncryptCookie(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	envelope := make([]byte, 0, versionSize+nonceSize+len(plaintext)+tagSize)
	envelope = append(envelope, currentVersion)
	envelope = append(envelope, nonce...)
	envelope = gcm.Seal(envelope, nonce, []byte(plaintext), nil)

	return base64.RawURLEncoding.EncodeToString(envelope), nil
}

// DecryptCookie opens a value produced by EncryptCookie. It verifies the
// envelope format before touching the cipher and the authentication tag
// before trusting the plaintext.
func DecryptCookie(key []byte, value string) (string, error) {
	envelope, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidEnvelope, "not base64url")
	}

	if len(envelope) < minEnvelopeSize {
		return "", fmt.Errorf("%w: length %d below minimum %d", ErrInvalidEnvelope, len(envelope), minEnvelopeSize)
	}
	if envelope[0] != currentVersion {
		return "", fmt.Errorf("%w: unsupported version %d", ErrInvalidEnvelope, envelope[0])
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonce := envelope[versionSize : versionSize+nonceSize]
	ciphertext := envelope[versionSize+nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
