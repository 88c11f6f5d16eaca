// Package secrets handles the `secure:` values a pipeline file may carry in
// place of plaintext credentials: AES-256-GCM sealed, base64 spelled, and
// decrypted at run time with a key file that stays out of the repository.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// Prefix marks a pipeline value as encrypted.
const Prefix = "secure:"

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// GenerateKey returns a fresh random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// WriteKeyFile stores the key hex-encoded, readable only by its owner.
func WriteKeyFile(path string, key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600)
}

// ReadKeyFile loads a key written by WriteKeyFile.
func ReadKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key file %s: key must be %d bytes, got %d", path, KeySize, len(key))
	}
	return key, nil
}

// IsEncrypted reports whether a pipeline value is a sealed secret.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Encrypt seals a value for embedding in a pipeline file.
func Encrypt(key []byte, plaintext string) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt unseals a `secure:` value.
func Decrypt(key []byte, value string) (string, error) {
	b64, ok := strings.CutPrefix(value, Prefix)
	if !ok {
		return "", fmt.Errorf("not a %q value", Prefix)
	}
	sealed, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("malformed secret: %w", err)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("malformed secret: too short")
	}
	plaintext, err := aead.Open(nil, sealed[:aead.NonceSize()], sealed[aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("cannot decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

// Resolve passes plaintext values through untouched and decrypts sealed
// ones.  A sealed value with no key configured is an error; forgetting to
// mount the key shouldn't quietly deploy with the literal string.
func Resolve(key []byte, value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	if len(key) == 0 {
		return "", fmt.Errorf("value is encrypted but no key is configured")
	}
	return Decrypt(key, value)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
