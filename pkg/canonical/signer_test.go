package canonical

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestSignVerify_RoundTrip(t *testing.T) {
	key := testKey(t)
	signer := NewSigner(key, "test-key-1")

	manifest := map[string]interface{}{
		"schema_version":    "1.2.0",
		"evaluation_run_id": "7b0b2f4e-0000-4000-8000-000000000001",
	}

	hash, err := Hash(manifest)
	require.NoError(t, err)

	sig, err := signer.Sign(hash)
	require.NoError(t, err)

	require.NoError(t, Verify(&key.PublicKey, hash, sig))
}

func TestVerify_RejectsTamperedManifest(t *testing.T) {
	key := testKey(t)
	signer := NewSigner(key, "test-key-1")

	hash, err := Hash(map[string]interface{}{"iterations": 100})
	require.NoError(t, err)
	sig, err := signer.Sign(hash)
	require.NoError(t, err)

	// A single changed value produces a different hash; the old signature
	// must not verify over it.
	tampered, err := Hash(map[string]interface{}{"iterations": 101})
	require.NoError(t, err)
	require.NotEqual(t, hash, tampered)
	require.ErrorIs(t, Verify(&key.PublicKey, tampered, sig), ErrBadSignature)
}

func TestVerify_RejectsWrongKey(t *testing.T) {
	key := testKey(t)
	other := testKey(t)
	signer := NewSigner(key, "test-key-1")

	hash, err := Hash(map[string]string{"k": "v"})
	require.NoError(t, err)
	sig, err := signer.Sign(hash)
	require.NoError(t, err)

	require.ErrorIs(t, Verify(&other.PublicKey, hash, sig), ErrBadSignature)
}

func TestParsePEM_RoundTrip(t *testing.T) {
	key := testKey(t)
	signer := NewSigner(key, "test-key-1")

	pubPEM, err := signer.PublicKeyPEM()
	require.NoError(t, err)

	pub, err := ParsePublicKeyPEM(pubPEM)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey.N, pub.N)
}

func TestParsePrivateKeyPEM_RejectsGarbage(t *testing.T) {
	_, err := ParsePrivateKeyPEM("not a pem block")
	require.Error(t, err)
}
