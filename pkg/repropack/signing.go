package repropack

import (
	"context"
	"errors"
	"fmt"

	"github.com/biaslens/biaslens/pkg/canonical"
	"github.com/biaslens/biaslens/pkg/config"
	"github.com/biaslens/biaslens/pkg/contracts"
	"github.com/biaslens/biaslens/pkg/store"
	"github.com/biaslens/biaslens/pkg/vault"
)

// KeyStore is the slice of the store the signing resolver reads.
type KeyStore interface {
	GetTeamSigningConfig(ctx context.Context, teamID string) (*contracts.TeamSigningConfig, error)
	GetActiveSigningKey(ctx context.Context, teamID string) (*contracts.SigningKey, error)
}

// ResolveSigning picks the signing material for a team: the team's own active
// key when it opted into customer signing, otherwise the process default from
// the environment. A team without a signing config uses the default. Missing
// material is an error; the caller treats it as fatal for the evaluation.
func ResolveSigning(ctx context.Context, keys KeyStore, v *vault.Vault, cfg *config.Config, teamID string) (*Material, error) {
	sc, err := keys.GetTeamSigningConfig(ctx, teamID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return defaultMaterial(cfg)
	case err != nil:
		return nil, fmt.Errorf("repropack: load signing config for team %s: %w", teamID, err)
	}

	if sc.SigningMode != contracts.SigningCustomer {
		return defaultMaterial(cfg)
	}

	key, err := keys.GetActiveSigningKey(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("repropack: team %s requires customer signing but has no active key: %w", teamID, err)
	}
	if v == nil {
		return nil, fmt.Errorf("repropack: no vault to decrypt signing key %s", key.ID)
	}
	pemBytes, err := v.Decrypt(key.PrivateKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("repropack: decrypt signing key %s: %w", key.ID, err)
	}
	priv, err := canonical.ParsePrivateKeyPEM(string(pemBytes))
	if err != nil {
		return nil, fmt.Errorf("repropack: parse signing key %s: %w", key.ID, err)
	}

	return &Material{
		Mode:         contracts.SigningCustomer,
		Authority:    key.Authority,
		KeyID:        key.ID,
		Signer:       canonical.NewSigner(priv, key.ID),
		PublicKeyPEM: key.PublicKeyPEM,
	}, nil
}

func defaultMaterial(cfg *config.Config) (*Material, error) {
	if cfg.SigningPrivateKeyPEM == "" {
		return nil, errors.New("repropack: " + config.EnvSigningPrivateKey + " is not set")
	}
	priv, err := canonical.ParsePrivateKeyPEM(cfg.SigningPrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("repropack: parse default signing key: %w", err)
	}
	signer := canonical.NewSigner(priv, cfg.SigningKeyID)

	pubPEM := cfg.SigningPublicKeyPEM
	if pubPEM == "" {
		if pubPEM, err = signer.PublicKeyPEM(); err != nil {
			return nil, err
		}
	}

	return &Material{
		Mode:         contracts.SigningBiasLens,
		Authority:    cfg.SigningAuthority,
		KeyID:        cfg.SigningKeyID,
		Signer:       signer,
		PublicKeyPEM: pubPEM,
	}, nil
}
