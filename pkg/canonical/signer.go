package canonical

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// ErrBadSignature is returned when a signature does not verify.
var ErrBadSignature = errors.New("canonical: signature verification failed")

// Signer signs manifest hashes with an RSA private key.
//
// The signed message is the UTF-8 bytes of the hex hash string, not the raw
// digest bytes. That keeps signatures interoperable with verifiers that only
// ever see the hex-encoded content hash.
type Signer struct {
	priv  *rsa.PrivateKey
	KeyID string
}

// NewSigner wraps an RSA private key.
func NewSigner(priv *rsa.PrivateKey, keyID string) *Signer {
	return &Signer{priv: priv, KeyID: keyID}
}

// Sign produces a base64 (standard alphabet, padded) RSA-PKCS1v1.5-SHA256
// signature over the hex hash string.
func (s *Signer) Sign(hexHash string) (string, error) {
	if s.priv == nil {
		return "", errors.New("canonical: signer has no private key")
	}
	digest := sha256.Sum256([]byte(hexHash))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.priv, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("canonical: sign failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// PublicKeyPEM returns the signer's public key as an SPKI PEM block.
func (s *Signer) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&s.priv.PublicKey)
	if err != nil {
		return "", fmt.Errorf("canonical: marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// Verify checks a base64 signature against the hex hash string using an RSA
// public key.
func Verify(pub *rsa.PublicKey, hexHash, signatureB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("canonical: signature not base64: %w", err)
	}
	digest := sha256.Sum256([]byte(hexHash))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return ErrBadSignature
	}
	return nil
}

// ParsePrivateKeyPEM parses a PKCS#8 PEM RSA private key. PKCS#1 blocks are
// accepted for keys generated by older tooling.
func ParsePrivateKeyPEM(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("canonical: no PEM block in private key")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("canonical: private key is not RSA")
		}
		return rsaKey, nil
	}
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("canonical: parse private key: %w", err)
	}
	return rsaKey, nil
}

// ParsePublicKeyPEM parses an SPKI PEM RSA public key.
func ParsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("canonical: no PEM block in public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("canonical: parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("canonical: public key is not RSA")
	}
	return rsaKey, nil
}
