package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32

// hkdfInfo binds derived keys to their purpose so the same master secret
// can safely be used elsewhere.
const hkdfInfo = "spa-front cookie encryption"

// ParseEncryptionKey turns the configured encryption key string into AES key
// material. A 64-character hex string is decoded and used directly; anything
// else is treated as a passphrase and expanded to 32 bytes with HKDF-SHA256,
// so operators can supply a master secret instead of raw key bytes.
func ParseEncryptionKey(value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}

	if len(value) == keySize*2 {
		if key, err := hex.DecodeString(value); err == nil {
			return key, nil
		}
	}

	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, []byte(value), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}
