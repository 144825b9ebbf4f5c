package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cloudx-io/scionauction/oracle"
	"github.com/cloudx-io/scionauction/oracleapi"
	"github.com/cloudx-io/scionauction/validation"
)

func main() {
	var (
		proofInput     = flag.String("proof", "", "Draw response or draw proof JSON (file path or inline JSON)")
		publicKeyInput = flag.String("public-key", "", "Oracle base64 Ed25519 public key (or a file holding it)")
		outputFormat   = flag.String("format", "text", "Output format: text or json")
		help           = flag.Bool("help", false, "Show usage information")
	)
	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}
	if *proofInput == "" || *publicKeyInput == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --proof and --public-key are both required\n")
		os.Exit(1)
	}

	proof, err := readProof(readInput(*proofInput))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading proof: %v\n", err)
		os.Exit(2)
	}

	publicKey, err := oracle.ParsePublicKey(strings.TrimSpace(string(readInput(*publicKeyInput))))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading public key: %v\n", err)
		os.Exit(2)
	}

	result, err := validation.VerifyDrawProof(proof, publicKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		outputJSON(proof, result)
	} else {
		outputText(proof, result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println("Oracle Draw Proof Validator")
	fmt.Println()
	fmt.Println("Recomputes a randomness draw from its signed proof.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  draw-validator --proof <json> --public-key <base64> [options]")
	fmt.Println()
	fmt.Println("Required Flags:")
	fmt.Println("  --proof <json>           draw_response or its proof object (file path or inline JSON)")
	fmt.Println("  --public-key <base64>    Oracle public key, as attested by key-validator")
	fmt.Println()
	fmt.Println("Optional Flags:")
	fmt.Println("  --format <text|json>     Output format (default: text)")
	fmt.Println("  --help                   Show this help message")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Validation passed")
	fmt.Println("  1 - Validation failed")
	fmt.Println("  2 - Invalid input or runtime error")
}

func readInput(input string) []byte {
	if data, err := os.ReadFile(input); err == nil {
		return data
	}
	return []byte(input)
}

// readProof accepts either a full draw_response or the bare proof.
func readProof(data []byte) (*oracleapi.DrawProof, error) {
	var resp oracleapi.DrawResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	if resp.Type == oracleapi.TypeDrawResponse {
		if resp.Proof == nil {
			return nil, fmt.Errorf("draw response carries no proof: %s", resp.Message)
		}
		return resp.Proof, nil
	}

	var proof oracleapi.DrawProof
	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("parse proof: %w", err)
	}
	if proof.ProofCOSEBase64 == "" {
		return nil, fmt.Errorf("missing proof_cose_base64 field")
	}
	return &proof, nil
}

func outputText(proof *oracleapi.DrawProof, result *validation.DrawValidationResult) {
	fmt.Println("Oracle Draw Proof Validator")
	fmt.Println("===========================")
	fmt.Printf("  Subject: %s\n", proof.Input.Subject)
	fmt.Printf("  Range:   %d\n", proof.Input.Range)
	fmt.Printf("  Nonce:   %d\n", proof.Input.Nonce)
	fmt.Printf("  Round:   %d\n", proof.Input.Round)
	fmt.Printf("  Value:   %d\n", proof.Value)
	fmt.Println()
	fmt.Printf("  Signature Valid: %v\n", result.SignatureValid)
	fmt.Printf("  Input Match:     %v\n", result.InputMatch)
	fmt.Printf("  Value Valid:     %v\n", result.ValueValid)
	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}
	fmt.Println()
	if result.IsValid() {
		fmt.Println("VALIDATION: ✓ PASSED")
	} else {
		fmt.Println("VALIDATION: ✗ FAILED")
	}
}

func outputJSON(proof *oracleapi.DrawProof, result *validation.DrawValidationResult) {
	data, err := json.MarshalIndent(map[string]any{
		"valid":           result.IsValid(),
		"input":           proof.Input,
		"value":           proof.Value,
		"signature_valid": result.SignatureValid,
		"input_match":     result.InputMatch,
		"value_valid":     result.ValueValid,
		"details":         result.ValidationDetails,
	}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(data))
}
