package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudx-io/scionauction/oracleapi"
)

// ValidateKeyAttestation validates an oracle key attestation against the PCR
// sets in DefaultPCRConfigPath.
//
// Parameters:
//   - attestationCOSEBase64: KeyResponse.AttestationCOSEBase64
//   - expectedPublicKey: the base64 Ed25519 key the caller intends to trust
//
// Returns:
//   - KeyValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing config)
func ValidateKeyAttestation(attestationCOSEBase64 oracleapi.AttestationCOSEBase64, expectedPublicKey string) (*KeyValidationResult, error) {
	knownPCRs, err := LoadPCRsFromFile(DefaultPCRConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load PCR configuration: %w", err)
	}
	return ValidateKeyAttestationWithPCRs(attestationCOSEBase64, expectedPublicKey, knownPCRs)
}

// ValidateKeyAttestationWithPCRs is ValidateKeyAttestation with explicit PCR sets.
func ValidateKeyAttestationWithPCRs(attestationCOSEBase64 oracleapi.AttestationCOSEBase64, expectedPublicKey string, knownPCRs []PCRSet) (*KeyValidationResult, error) {
	base, _, userDataBytes, err := validateCommonAttestation(attestationCOSEBase64, knownPCRs)
	if err != nil {
		return nil, err
	}

	var userData oracleapi.KeyAttestationUserData
	if len(userDataBytes) > 0 {
		if err := json.Unmarshal(userDataBytes, &userData); err != nil {
			return nil, fmt.Errorf("parse user data: %w", err)
		}
	}

	result := &KeyValidationResult{BaseValidationResult: *base}

	if userData.KeyAlgorithm == oracleapi.KeyAlgorithmEd25519 {
		result.KeyAlgorithmValid = true
	} else {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("Unexpected key algorithm %q", userData.KeyAlgorithm))
	}

	attested := strings.TrimSpace(userData.PublicKey)
	switch {
	case attested == "":
		result.ValidationDetails = append(result.ValidationDetails, "Public key missing from attestation")
	case attested == strings.TrimSpace(expectedPublicKey):
		result.PublicKeyMatch = true
		result.ValidationDetails = append(result.ValidationDetails, "Public key matches attestation")
	default:
		result.ValidationDetails = append(result.ValidationDetails, "Public key mismatch: provided key does not match attested key")
	}

	return result, nil
}
