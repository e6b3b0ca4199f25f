package repropack

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/biaslens/biaslens/pkg/canonical"
	"github.com/biaslens/biaslens/pkg/contracts"
)

// schemaRange is the span of manifest schemas this verifier understands.
var schemaRange = mustConstraint(">=1.0.0, <2.0.0")

// ErrUnsupportedSchema is returned for packs outside the supported schema
// range.
var ErrUnsupportedSchema = errors.New("repropack: unsupported schema version")

// AuthorityKeys is the store lookup used when a pack carries no embedded
// public key and is not signed by the process-default authority.
type AuthorityKeys interface {
	GetSigningKeyByAuthority(ctx context.Context, authority string) (*contracts.SigningKey, error)
}

// VerifyResult is the outcome of one verification.
type VerifyResult struct {
	Valid              bool        `json:"valid"`
	HashMatches        bool        `json:"hashMatches"`
	SignatureValid     bool        `json:"signatureValid"`
	SigningAuthority   string      `json:"signingAuthority"`
	ExpectedHash       string      `json:"expectedHash"`
	ComputedHash       string      `json:"computedHash"`
	LegacyHash         string      `json:"legacyHash"`
	ReplayInstructions interface{} `json:"replayInstructions,omitempty"`
	CustomerEvidenceID string      `json:"customerEvidenceId,omitempty"`
}

// Verifier checks pack integrity and signatures. Key resolution order: the
// pack's embedded public key, then the process-default key when the claimed
// authority matches DefaultAuthority, then an active store key by authority.
type Verifier struct {
	Keys                AuthorityKeys // may be nil
	DefaultAuthority    string
	DefaultPublicKeyPEM string
}

// VerifyPack verifies a stored pack record.
func (v *Verifier) VerifyPack(ctx context.Context, pack *contracts.ReproPack) (*VerifyResult, error) {
	return v.Verify(ctx, pack.Content, pack.Signature, pack.ContentHash, pack.SigningAuthority)
}

// Verify recomputes the canonical and legacy hashes of content, resolves the
// public key, and checks the signature. Packs hashed before canonical
// serialization landed still verify through the legacy hash: when
// expectedHash matches the legacy form, a signature over the legacy hash is
// accepted in place of one over the canonical hash.
func (v *Verifier) Verify(ctx context.Context, content map[string]interface{}, signature, expectedHash, authority string) (*VerifyResult, error) {
	if err := checkSchema(content); err != nil {
		return nil, err
	}

	computed, err := canonical.Hash(content)
	if err != nil {
		return nil, fmt.Errorf("repropack: recompute hash: %w", err)
	}
	legacy, err := canonical.LegacyHash(content)
	if err != nil {
		return nil, fmt.Errorf("repropack: recompute legacy hash: %w", err)
	}

	result := &VerifyResult{
		SigningAuthority:   authority,
		ExpectedHash:       expectedHash,
		ComputedHash:       computed,
		LegacyHash:         legacy,
		HashMatches:        expectedHash == computed || expectedHash == legacy,
		ReplayInstructions: content["replay_instructions"],
	}
	if ref, ok := content["evidence_reference_id"].(string); ok {
		result.CustomerEvidenceID = ref
	}

	pub, err := v.resolveKey(ctx, content, authority)
	if err != nil {
		return nil, err
	}

	// Signatures cover the canonical hash; legacy packs signed the legacy
	// serialization's hash instead.
	if canonical.Verify(pub, computed, signature) == nil {
		result.SignatureValid = true
	} else if expectedHash == legacy && canonical.Verify(pub, legacy, signature) == nil {
		result.SignatureValid = true
	}

	result.Valid = result.HashMatches && result.SignatureValid
	return result, nil
}

func (v *Verifier) resolveKey(ctx context.Context, content map[string]interface{}, authority string) (*rsa.PublicKey, error) {
	if signing, ok := content["signing"].(map[string]interface{}); ok {
		if pemStr, ok := signing["public_key"].(string); ok && pemStr != "" {
			return canonical.ParsePublicKeyPEM(pemStr)
		}
	}
	if authority == v.DefaultAuthority && v.DefaultPublicKeyPEM != "" {
		return canonical.ParsePublicKeyPEM(v.DefaultPublicKeyPEM)
	}
	if v.Keys != nil {
		key, err := v.Keys.GetSigningKeyByAuthority(ctx, authority)
		if err != nil {
			return nil, fmt.Errorf("repropack: no key for authority %q: %w", authority, err)
		}
		return canonical.ParsePublicKeyPEM(key.PublicKeyPEM)
	}
	return nil, fmt.Errorf("repropack: no public key available for authority %q", authority)
}

func checkSchema(content map[string]interface{}) error {
	raw, ok := content["schema_version"].(string)
	if !ok || raw == "" {
		return fmt.Errorf("%w: missing schema_version", ErrUnsupportedSchema)
	}
	version, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedSchema, raw)
	}
	if !schemaRange.Check(version) {
		return fmt.Errorf("%w: %s", ErrUnsupportedSchema, raw)
	}
	return nil
}

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}
