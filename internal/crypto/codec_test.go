package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)

	for _, plaintext := range []string{
		"a",
		"an access token value",
		strings.Repeat("x", 4096),
		`{"codeVerifier":"abc","state":"def"}`,
	} {
		sealed, err := EncryptCookie(key, plaintext)
		require.NoError(t, err)

		// Cookie-safe: no padding, no characters outside base64url
		assert.NotContains(t, sealed, "=")
		assert.NotContains(t, sealed, "+")
		assert.NotContains(t, sealed, "/")

		opened, err := DecryptCookie(key, sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	key := testKey(t)

	first, err := EncryptCookie(key, "same plaintext")
	require.NoError(t, err)
	second, err := EncryptCookie(key, "same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestDecryptWrongKey(t *testing.T) {
	sealed, err := EncryptCookie(testKey(t), "secret")
	require.NoError(t, err)

	_, err = DecryptCookie(testKey(t), sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptTamperedEnvelope(t *testing.T) {
	key := testKey(t)
	sealed, err := EncryptCookie(key, "secret value")
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	require.NoError(t, err)

	// Flip one bit in every byte position past the version byte. Nonce,
	// ciphertext and tag corruption must all fail authentication.
	for i := versionSize; i < len(raw); i++ {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		_, err := DecryptCookie(key, base64.RawURLEncoding.EncodeToString(tampered))
		assert.ErrorIs(t, err, ErrDecryptionFailed, "byte %d", i)
	}
}

func TestDecryptInvalidEnvelope(t *testing.T) {
	key := testKey(t)

	t.Run("not base64url", func(t *testing.T) {
		_, err := DecryptCookie(key, "not/valid+base64=")
		assert.ErrorIs(t, err, ErrInvalidEnvelope)
	})

	t.Run("too short", func(t *testing.T) {
		short := base64.RawURLEncoding.EncodeToString(make([]byte, minEnvelopeSize-1))
		_, err := DecryptCookie(key, short)
		assert.ErrorIs(t, err, ErrInvalidEnvelope)
	})

	t.Run("unknown version", func(t *testing.T) {
		sealed, err := EncryptCookie(key, "secret")
		require.NoError(t, err)
		raw, err := base64.RawURLEncoding.DecodeString(sealed)
		require.NoError(t, err)
		raw[0] = 2

		_, err = DecryptCookie(key, base64.RawURLEncoding.EncodeToString(raw))
		assert.ErrorIs(t, err, ErrInvalidEnvelope)
	})
}

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	token2, err := GenerateSecureToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)

	// base64url encoding of 32 bytes is 43 chars unpadded
	assert.Equal(t, 43, len(token))
}

func TestParseEncryptionKey(t *testing.T) {
	t.Run("hex key used directly", func(t *testing.T) {
		hexKey := strings.Repeat("4f", 32)
		key, err := ParseEncryptionKey(hexKey)
		require.NoError(t, err)
		assert.Len(t, key, 32)
		assert.Equal(t, byte(0x4f), key[0])
	})

	t.Run("passphrase derived", func(t *testing.T) {
		key, err := ParseEncryptionKey("correct horse battery staple")
		require.NoError(t, err)
		assert.Len(t, key, 32)

		again, err := ParseEncryptionKey("correct horse battery staple")
		require.NoError(t, err)
		assert.Equal(t, key, again)

		other, err := ParseEncryptionKey("a different passphrase")
		require.NoError(t, err)
		assert.NotEqual(t, key, other)
	})

	t.Run("empty rejected", func(t *testing.T) {
		_, err := ParseEncryptionKey("")
		assert.Error(t, err)
	})
}
