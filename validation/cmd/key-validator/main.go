package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudx-io/scionauction/oracleapi"
	"github.com/cloudx-io/scionauction/validation"
)

// plainTextHandler writes bare messages to stdout, without timestamps or levels.
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(context.Context, slog.Level) bool { return true }

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *plainTextHandler) WithGroup(string) slog.Handler      { return h }

var logger = slog.New(&plainTextHandler{})

const usage = `Oracle Key Attestation Validator

Checks that an oracle signing key was generated inside a known enclave image.

Usage:
  key-validator --key-response <path> [--public-key <base64|path>] [options]

Required Flags:
  --key-response <path>      key_response JSON returned by the oracle

Optional Flags:
  --public-key <base64|path> Key to check against the attestation (default: the response's public_key)
  --pcrs <path>              Known PCR sets (default: validation/pcrs.json)
  --format <text|json>       Output format (default: text)
  --help                     Show this help message

Exit Codes:
  0 - Validation passed
  1 - Validation failed
  2 - Invalid input or runtime error`

func main() {
	var (
		keyResponsePath = flag.String("key-response", "", "Path to key response JSON file (required)")
		publicKeyInput  = flag.String("public-key", "", "Expected base64 public key or a file holding it")
		pcrsPath        = flag.String("pcrs", validation.DefaultPCRConfigPath(), "Path to known PCR sets")
		outputFormat    = flag.String("format", "text", "Output format: text or json")
		help            = flag.Bool("help", false, "Show usage information")
	)
	flag.Parse()

	if *help {
		logger.Info(usage)
		os.Exit(0)
	}
	if *keyResponsePath == "" {
		logger.Info(usage)
		os.Exit(1)
	}

	keyResponse, err := readKeyResponse(*keyResponsePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading key response: %v\n", err)
		os.Exit(2)
	}

	expectedKey := keyResponse.PublicKey
	if *publicKeyInput != "" {
		expectedKey = readValue(*publicKeyInput)
	}

	knownPCRs, err := validation.LoadPCRsFromFile(*pcrsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading PCR sets: %v\n", err)
		os.Exit(2)
	}

	result, err := validation.ValidateKeyAttestationWithPCRs(keyResponse.AttestationCOSEBase64, expectedKey, knownPCRs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		if err := outputJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
			os.Exit(2)
		}
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
}

func readKeyResponse(path string) (*oracleapi.KeyResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var keyResponse oracleapi.KeyResponse
	if err := json.Unmarshal(data, &keyResponse); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if keyResponse.AttestationCOSEBase64 == "" {
		return nil, fmt.Errorf("missing attestation_cose_base64 field in key response")
	}
	return &keyResponse, nil
}

// readValue returns the contents of input if it names a file, else input itself.
func readValue(input string) string {
	if data, err := os.ReadFile(input); err == nil {
		return strings.TrimSpace(string(data))
	}
	return input
}

func outputText(result *validation.KeyValidationResult) {
	logger.Info("Oracle Key Attestation Validator")
	logger.Info("================================")
	logger.Info(fmt.Sprintf("  PCRs Valid:          %v", result.PCRsValid))
	logger.Info(fmt.Sprintf("  Certificate Valid:   %v", result.CertificateValid))
	logger.Info(fmt.Sprintf("  Signature Valid:     %v", result.SignatureValid))
	logger.Info(fmt.Sprintf("  Key Algorithm Valid: %v", result.KeyAlgorithmValid))
	logger.Info(fmt.Sprintf("  Public Key Match:    %v", result.PublicKeyMatch))
	logger.Info("")
	logger.Info("Details:")
	for _, detail := range result.ValidationDetails {
		logger.Info("  - " + detail)
	}
	logger.Info("")
	if result.IsValid() {
		logger.Info("VALIDATION: ✓ PASSED")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
	}
}

func outputJSON(result *validation.KeyValidationResult) error {
	data, err := json.MarshalIndent(map[string]any{
		"valid":               result.IsValid(),
		"pcrs_valid":          result.PCRsValid,
		"certificate_valid":   result.CertificateValid,
		"signature_valid":     result.SignatureValid,
		"key_algorithm_valid": result.KeyAlgorithmValid,
		"public_key_match":    result.PublicKeyMatch,
		"details":             result.ValidationDetails,
	}, "", "  ")
	if err != nil {
		return err
	}
	logger.Info(string(data))
	return nil
}
