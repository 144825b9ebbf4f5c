package oracle

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/scionauction/core"
	"github.com/cloudx-io/scionauction/oracleapi"
)

// EnclaveAttester interface for dependency injection and testing
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// Prove draws a value for req and returns it with its proof.
//
// The payload signed is the CBOR encoding of the draw input, including a round
// number this key never reuses. Ed25519 signatures are deterministic, so each
// input has exactly one valid signature and the value derived from it cannot be
// chosen by the oracle after the fact.
//
// Returns:
//   - a proof whose Value is SHA-256(signature) reduced modulo req.Range
//   - an error if the range is zero or signing fails
func Prove(km *KeyManager, req oracleapi.DrawRequest) (*oracleapi.DrawProof, error) {
	if req.Range == 0 {
		return nil, fmt.Errorf("draw range must be positive")
	}

	input := oracleapi.DrawInput{
		Subject: req.Subject,
		Range:   req.Range,
		Nonce:   req.Nonce,
		Round:   km.nextRound(),
	}
	payload, err := cbor.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode draw input: %w", err)
	}

	signer, err := cose.NewSigner(cose.AlgorithmEd25519, km.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected[cose.HeaderLabelAlgorithm] = cose.AlgorithmEd25519
	msg.Payload = payload
	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, fmt.Errorf("failed to sign draw: %w", err)
	}

	encoded, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("failed to encode proof: %w", err)
	}

	return &oracleapi.DrawProof{
		Input:           input,
		Value:           DrawValue(msg.Signature, input.Range),
		ProofCOSEBase64: base64.StdEncoding.EncodeToString(encoded),
	}, nil
}

// DrawValue maps a proof signature onto [0, n).
func DrawValue(signature []byte, n uint64) uint64 {
	digest := sha256.Sum256(signature)
	return core.ReduceDigest(digest[:], n)
}

func generateNonce() (string, error) {
	randomBytes := make([]byte, 32) // 256 bits of entropy
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// GenerateKeyAttestation asks the NSM to bind the oracle's public key to the
// enclave measurements.
func GenerateKeyAttestation(attester EnclaveAttester, km *KeyManager) (oracleapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	userData, err := json.Marshal(oracleapi.KeyAttestationUserData{
		KeyAlgorithm: oracleapi.KeyAlgorithmEd25519,
		PublicKey:    km.PublicKeyBase64(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key user data: %w", err)
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestation, err := attester.Attest(enclave.AttestationOptions{
		UserData: userData,
		Nonce:    []byte(nonce),
	})
	if err != nil {
		return nil, fmt.Errorf("NSM key attestation failed: %w", err)
	}
	return oracleapi.AttestationCOSE(attestation), nil
}

// HandleKeyRequest returns the public key with its attestation.
func HandleKeyRequest(attester EnclaveAttester, km *KeyManager) (*oracleapi.KeyResponse, error) {
	attestation, err := GenerateKeyAttestation(attester, km)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key attestation: %w", err)
	}

	doc, userDataBytes, err := attestation.ParseAttestationDoc()
	if err != nil {
		return nil, fmt.Errorf("failed to parse key attestation: %w", err)
	}
	var userData oracleapi.KeyAttestationUserData
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		return nil, fmt.Errorf("failed to parse key attestation user data: %w", err)
	}

	return &oracleapi.KeyResponse{
		Type:                  oracleapi.TypeKeyResponse,
		PublicKey:             km.PublicKeyBase64(),
		KeyAttestation:        &oracleapi.KeyAttestationDoc{AttestationDoc: doc, UserData: &userData},
		AttestationCOSEBase64: attestation.Base64(),
	}, nil
}
