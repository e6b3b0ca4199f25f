package vault

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	v, err := New("unit-test-secret")
	require.NoError(t, err)

	plaintext := []byte(`{"accessKeyId":"AKIA...","secretAccessKey":"..."}`)

	ct, err := v.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, string(plaintext), ct)

	got, err := v.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestEncrypt_UniqueBlobsPerCall(t *testing.T) {
	v, err := New("unit-test-secret")
	require.NoError(t, err)

	a, err := v.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := v.Encrypt([]byte("same"))
	require.NoError(t, err)

	// Fresh salt and nonce every call.
	require.NotEqual(t, a, b)
}

func TestDecrypt_TooShort(t *testing.T) {
	v, err := New("unit-test-secret")
	require.NoError(t, err)

	short := base64.StdEncoding.EncodeToString(make([]byte, 27))
	_, err = v.Decrypt(short)
	require.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestDecrypt_WrongSecret(t *testing.T) {
	v1, err := New("secret-one")
	require.NoError(t, err)
	v2, err := New("secret-two")
	require.NoError(t, err)

	ct, err := v1.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = v2.Decrypt(ct)
	require.Error(t, err)
}

func TestDecrypt_NotBase64(t *testing.T) {
	v, err := New("unit-test-secret")
	require.NoError(t, err)

	_, err = v.Decrypt("!!! not base64 !!!")
	require.Error(t, err)
}

func TestNew_EmptySecret(t *testing.T) {
	_, err := New("")
	require.ErrorIs(t, err, ErrSecretMissing)
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvAPIKeySecret, "env-secret")

	v, err := FromEnv(EnvAPIKeySecret)
	require.NoError(t, err)

	ct, err := v.Encrypt([]byte("x"))
	require.NoError(t, err)
	got, err := v.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, []byte("x"), got)
}
