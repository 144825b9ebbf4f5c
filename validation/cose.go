package validation

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/scionauction/oracleapi"
	"github.com/cloudx-io/scionauction/oracleapi/parsing"
)

// VerifyCOSESignature verifies a Nitro COSE_Sign1 attestation against the
// signing certificate embedded in it.
func VerifyCOSESignature(coseB64 oracleapi.AttestationCOSEBase64, certB64 string) error {
	coseBytes, err := coseB64.Decode()
	if err != nil {
		return fmt.Errorf("decode COSE bytes: %w", err)
	}

	cert, err := decodeCertificate(certB64)
	if err != nil {
		return err
	}

	// AWS Nitro returns untagged COSE_Sign1 (4-element array)
	parts, err := parsing.SplitSign1(coseBytes)
	if err != nil {
		return err
	}
	sigStructure, err := parsing.SigStructure(parts)
	if err != nil {
		return err
	}

	// AWS Nitro uses ES384 (ECDSA P-384 with SHA-384)
	ecdsaKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not ECDSA")
	}
	verifier, err := cose.NewVerifier(cose.AlgorithmES384, ecdsaKey)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}
	if err := verifier.Verify(sigStructure, parts.Signature); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}
	return nil
}
