// Package vault provides the envelope encryption used for stored secrets:
// customer evidence-store credentials and customer signing keys.
//
// Every blob is base64(salt ‖ iv ‖ ciphertext) with a 16-byte salt and a
// 12-byte GCM nonce. The AES-256 key is derived per blob with
// PBKDF2-HMAC-SHA-256 at 100 000 iterations, so the process secret never
// touches the ciphertext directly.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	nonceSize  = 12
	keySize    = 32
	iterations = 100_000
)

// Environment variables holding the process secrets.
const (
	EnvAPIKeySecret     = "API_KEY_ENCRYPTION_SECRET"
	EnvSigningKeySecret = "SIGNING_KEY_ENCRYPTION_SECRET"
)

// ErrCiphertextTooShort is returned when a decoded blob cannot even hold the
// salt and nonce prefix.
var ErrCiphertextTooShort = errors.New("vault: ciphertext shorter than salt+iv prefix")

// ErrSecretMissing is returned when the required process secret is unset.
var ErrSecretMissing = errors.New("vault: encryption secret not configured")

// Vault encrypts and decrypts secret blobs with a fixed process secret.
type Vault struct {
	secret []byte
}

// New creates a Vault from a raw secret string.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrSecretMissing
	}
	return &Vault{secret: []byte(secret)}, nil
}

// FromEnv creates a Vault from the named environment variable.
func FromEnv(envVar string) (*Vault, error) {
	return New(os.Getenv(envVar))
}

// Encrypt seals plaintext into a base64(salt‖iv‖ciphertext) blob.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("vault: generate salt: %w", err)
	}

	gcm, err := v.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	blob := make([]byte, 0, saltSize+nonceSize+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt.
func (v *Vault) Decrypt(encoded string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("vault: blob not base64: %w", err)
	}
	if len(blob) < saltSize+nonceSize {
		return nil, ErrCiphertextTooShort
	}

	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	ciphertext := blob[saltSize+nonceSize:]

	gcm, err := v.aead(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt failed: %w", err)
	}
	return plaintext, nil
}

func (v *Vault) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(v.secret, salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("vault: create GCM: %w", err)
	}
	return gcm, nil
}
