package validation

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/scionauction/core"
	"github.com/cloudx-io/scionauction/oracleapi"
)

// VerifyDrawProof checks a draw proof against the oracle's public key: the
// COSE_Sign1 signature, that the signed payload is the claimed input and that
// the claimed value is SHA-256 of the signature reduced modulo the range.
//
// Failed checks are recorded in the result. An error means the proof could not
// be decoded.
func VerifyDrawProof(proof *oracleapi.DrawProof, publicKey ed25519.PublicKey) (*DrawValidationResult, error) {
	if proof == nil {
		return nil, fmt.Errorf("draw proof is nil")
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(publicKey))
	}

	raw, err := base64.StdEncoding.DecodeString(proof.ProofCOSEBase64)
	if err != nil {
		return nil, fmt.Errorf("decode proof: %w", err)
	}
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(raw); err != nil {
		return nil, fmt.Errorf("parse COSE_Sign1: %w", err)
	}

	result := &DrawValidationResult{ValidationDetails: []string{}}
	note := func(format string, args ...any) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf(format, args...))
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmEd25519, publicKey)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		note("Signature verification failed: %v", err)
	} else {
		result.SignatureValid = true
		note("Signature verified")
	}

	var signed oracleapi.DrawInput
	if err := cbor.Unmarshal(msg.Payload, &signed); err != nil {
		note("Signed payload is not a draw input: %v", err)
	} else if signed != proof.Input {
		note("Input mismatch: signed %+v, claimed %+v", signed, proof.Input)
	} else {
		result.InputMatch = true
		note("Input matches signed payload (round %d)", signed.Round)
	}

	switch {
	case proof.Input.Range == 0:
		note("Range is zero")
	default:
		digest := sha256.Sum256(msg.Signature)
		expected := core.ReduceDigest(digest[:], proof.Input.Range)
		if expected == proof.Value {
			result.ValueValid = true
			note("Value %d derived from signature", proof.Value)
		} else {
			note("Value mismatch: claimed %d, signature yields %d", proof.Value, expected)
		}
	}

	return result, nil
}
