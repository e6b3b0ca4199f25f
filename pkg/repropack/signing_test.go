package repropack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biaslens/biaslens/pkg/config"
	"github.com/biaslens/biaslens/pkg/contracts"
	"github.com/biaslens/biaslens/pkg/store"
	"github.com/biaslens/biaslens/pkg/vault"
)

func defaultSigningConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SigningPrivateKeyPEM: testPrivateKeyPEM(t),
		SigningKeyID:         "biaslens-default",
		SigningAuthority:     "BiasLens",
	}
}

func TestResolveSigningDefault(t *testing.T) {
	st := store.NewMemoryStore() // no team signing config

	m, err := ResolveSigning(context.Background(), st, nil, defaultSigningConfig(t), "team-1")
	require.NoError(t, err)

	assert.Equal(t, contracts.SigningBiasLens, m.Mode)
	assert.Equal(t, "BiasLens", m.Authority)
	assert.Equal(t, "biaslens-default", m.KeyID)
	assert.NotEmpty(t, m.PublicKeyPEM) // derived from the private key

	sig, err := m.Signer.Sign("abc123")
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
}

func TestResolveSigningCustomerKey(t *testing.T) {
	v, err := vault.New("test-signing-secret")
	require.NoError(t, err)
	encrypted, err := v.Encrypt([]byte(testPrivateKeyPEM(t)))
	require.NoError(t, err)

	pubPEM := testMaterial(t).PublicKeyPEM
	st := store.NewMemoryStore()
	st.SigningConfigs["team-1"] = contracts.TeamSigningConfig{
		TeamID: "team-1", SigningMode: contracts.SigningCustomer,
	}
	st.SigningKeys = []contracts.SigningKey{{
		ID: "cust-key-1", TeamID: "team-1", Authority: "acme",
		Status: "active", PublicKeyPEM: pubPEM, PrivateKeyEncrypted: encrypted,
	}}

	m, err := ResolveSigning(context.Background(), st, v, defaultSigningConfig(t), "team-1")
	require.NoError(t, err)

	assert.Equal(t, contracts.SigningCustomer, m.Mode)
	assert.Equal(t, "acme", m.Authority)
	assert.Equal(t, "cust-key-1", m.KeyID)
	assert.Equal(t, pubPEM, m.PublicKeyPEM)
}

func TestResolveSigningBiasLensModeUsesDefault(t *testing.T) {
	st := store.NewMemoryStore()
	st.SigningConfigs["team-1"] = contracts.TeamSigningConfig{
		TeamID: "team-1", SigningMode: contracts.SigningBiasLens,
	}

	m, err := ResolveSigning(context.Background(), st, nil, defaultSigningConfig(t), "team-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.SigningBiasLens, m.Mode)
}

func TestResolveSigningCustomerWithoutActiveKey(t *testing.T) {
	st := store.NewMemoryStore()
	st.SigningConfigs["team-1"] = contracts.TeamSigningConfig{
		TeamID: "team-1", SigningMode: contracts.SigningCustomer,
	}
	st.SigningKeys = []contracts.SigningKey{
		{ID: "old", TeamID: "team-1", Authority: "acme", Status: "revoked"},
	}

	v, err := vault.New("test-signing-secret")
	require.NoError(t, err)
	_, err = ResolveSigning(context.Background(), st, v, defaultSigningConfig(t), "team-1")
	assert.Error(t, err)
}

func TestResolveSigningMissingDefaultKey(t *testing.T) {
	st := store.NewMemoryStore()
	_, err := ResolveSigning(context.Background(), st, nil, &config.Config{}, "team-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.EnvSigningPrivateKey)
}
