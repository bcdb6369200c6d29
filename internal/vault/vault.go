// Package vault encrypts credential secrets at rest. Stored values are
// tagged so they self-describe: "enc:v1:" prefixed base64 is AES-256-GCM
// ciphertext, anything else is legacy plaintext from rows that predate
// encryption. A tagged value that fails to decrypt is corrupted and fails
// closed rather than being misread as plaintext.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// encPrefix tags ciphertext values; the version segment lets a future
// algorithm change coexist with v1 rows.
const encPrefix = "enc:v1:"

// ErrEncryptionKeyNotSet is returned when the vault was constructed without
// a key but an operation requires one.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set LIFESYNC_SECRET_KEY")

// ErrCredentialCorrupted is returned when a tagged value cannot be decoded
// or authenticated. Callers must treat the credential as unusable, never
// fall back to interpreting the value as plaintext.
var ErrCredentialCorrupted = errors.New("credential value corrupted")

// Vault performs authenticated encryption of credential values.
type Vault struct {
	key []byte // 32-byte AES-256 key; nil disables encryption operations.
}

// New creates a Vault. key must be 32 bytes for AES-256-GCM, or nil to
// disable encryption (operations return ErrEncryptionKeyNotSet).
func New(key []byte) (*Vault, error) {
	if key != nil && len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(key))
	}
	return &Vault{key: key}, nil
}

// IsEncrypted reports whether value carries the ciphertext tag.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encPrefix)
}

// Encrypt seals plaintext with AES-256-GCM and returns the tagged stored
// form: "enc:v1:" + base64(nonce || ciphertext || tag).
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if v.key == nil {
		return "", ErrEncryptionKeyNotSet
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt returns the plaintext for a stored value. Untagged values are
// legacy plaintext and are returned verbatim; tagged values that fail to
// decode or authenticate return ErrCredentialCorrupted.
func (v *Vault) Decrypt(stored string) (string, error) {
	if !IsEncrypted(stored) {
		return stored, nil
	}
	if v.key == nil {
		return "", ErrEncryptionKeyNotSet
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode: %v", ErrCredentialCorrupted, err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrCredentialCorrupted)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialCorrupted, err)
	}

	return string(plaintext), nil
}
