package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/biaslens/biaslens/pkg/config"
	"github.com/biaslens/biaslens/pkg/contracts"
	"github.com/biaslens/biaslens/pkg/repropack"
)

// runVerifyPackCmd implements `biaslens verify-pack` — offline verification
// of an exported repro pack record.
//
// Exit codes:
//
//	0 = pack valid
//	1 = pack invalid or verification error
//	2 = usage error
func runVerifyPackCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify-pack", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		packPath      string
		publicKeyPath string
		jsonOutput    bool
	)
	cmd.StringVar(&packPath, "pack", "", "Path to the repro pack record JSON (REQUIRED)")
	cmd.StringVar(&publicKeyPath, "public-key", "", "PEM file with the authority public key (defaults to REPRO_PACK_SIGNING_PUBLIC_KEY)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if packPath == "" {
		fmt.Fprintln(stderr, "Error: --pack is required")
		cmd.Usage()
		return 2
	}

	data, err := os.ReadFile(packPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading pack: %v\n", err)
		return 1
	}
	var pack contracts.ReproPack
	if err := json.Unmarshal(data, &pack); err != nil {
		fmt.Fprintf(stderr, "Error parsing pack record: %v\n", err)
		return 1
	}

	cfg := config.Load()
	publicKey := cfg.SigningPublicKeyPEM
	if publicKeyPath != "" {
		pemData, err := os.ReadFile(publicKeyPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading public key: %v\n", err)
			return 1
		}
		publicKey = string(pemData)
	}

	verifier := &repropack.Verifier{
		DefaultAuthority:    cfg.SigningAuthority,
		DefaultPublicKeyPEM: publicKey,
	}
	result, err := verifier.VerifyPack(context.Background(), &pack)
	if err != nil {
		if jsonOutput {
			out := map[string]any{"pack": packPath, "valid": false, "error": err.Error()}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Fprintln(stdout, string(data))
		} else {
			fmt.Fprintf(stderr, "Verification failed: %v\n", err)
		}
		return 1
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		icon := "✅"
		if !result.Valid {
			icon = "❌"
		}
		fmt.Fprintf(stdout, "%s Pack %s\n", icon, pack.ID)
		fmt.Fprintf(stdout, "   Evaluation: %s\n", pack.EvaluationRunID)
		fmt.Fprintf(stdout, "   Authority:  %s\n", result.SigningAuthority)
		fmt.Fprintf(stdout, "   Hash:       match=%v\n", result.HashMatches)
		fmt.Fprintf(stdout, "   Signature:  valid=%v\n", result.SignatureValid)
	}

	if !result.Valid {
		return 1
	}
	return 0
}
