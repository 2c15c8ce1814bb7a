package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"
)

const (
	// SecretPrefix marks an encrypted configuration value.
	SecretPrefix = "enc:"

	// SecretKeyEnv names the environment variable holding the passphrase.
	SecretKeyEnv = "SCANPIPE_SECRET_KEY"
)

// secretKey derives the 32 byte AEAD key from a passphrase.
func secretKey(passphrase string) []byte {
	sum := sha3.Sum256([]byte(passphrase))
	return sum[:]
}

// EncryptSecret seals plaintext with XChaCha20-Poly1305 and returns an
// enc: prefixed, base64 encoded nonce||ciphertext.
func EncryptSecret(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrMissingSecretKey
	}
	aead, err := chacha20poly1305.NewX(secretKey(passphrase))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SecretPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSecret opens a value produced by EncryptSecret.
// Values without the enc: prefix are returned unchanged.
func DecryptSecret(value, passphrase string) (string, error) {
	encoded, ok := strings.CutPrefix(value, SecretPrefix)
	if !ok {
		return value, nil
	}
	if passphrase == "" {
		return "", ErrMissingSecretKey
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}
	aead, err := chacha20poly1305.NewX(secretKey(passphrase))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrInvalidSecret
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}
	return string(plain), nil
}

// ResolveSecrets decrypts every field that may hold an enc: value.
func (c *Config) ResolveSecrets(passphrase string) error {
	fields := []*string{
		&c.Database.URL,
		&c.Database.Password,
		&c.Storage.AccessKey,
		&c.Storage.SecretKey,
	}
	for _, f := range fields {
		plain, err := DecryptSecret(*f, passphrase)
		if err != nil {
			return err
		}
		*f = plain
	}
	return nil
}
