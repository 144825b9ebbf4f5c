// Package oracleapi holds the wire types shared by the randomness oracle, its
// clients and the offline validators.
package oracleapi

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cloudx-io/scionauction/oracleapi/parsing"
)

// Request and response type tags on the oracle's JSON protocol.
const (
	TypePing          = "ping"
	TypePong          = "pong"
	TypeKeyRequest    = "key_request"
	TypeKeyResponse   = "key_response"
	TypeDrawRequest   = "draw_request"
	TypeDrawResponse  = "draw_response"
	TypeErrorResponse = "error"
)

// KeyAlgorithmEd25519 names the oracle's signing key type in key attestations.
const KeyAlgorithmEd25519 = "Ed25519"

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// PCRsFromRaw formats the raw CBOR PCR map.
func PCRsFromRaw(raw map[uint64][]byte) PCRs {
	return PCRs{
		ImageFileHash:   parsing.FormatPCR(raw[0]),
		KernelHash:      parsing.FormatPCR(raw[1]),
		ApplicationHash: parsing.FormatPCR(raw[2]),
		IAMRoleHash:     parsing.FormatPCR(raw[3]),
		InstanceIDHash:  parsing.FormatPCR(raw[4]),
		SigningCertHash: parsing.FormatPCR(raw[8]),
	}
}

// AttestationDoc is the decoded, JSON-friendly form of a Nitro attestation.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"`
	CABundle        []string  `json:"cabundle"`
	PublicKey       string    `json:"public_key"`
	Nonce           string    `json:"nonce"`
}

// KeyAttestationUserData is embedded in the attestation of the oracle's signing key.
type KeyAttestationUserData struct {
	KeyAlgorithm string `json:"key_algorithm"` // KeyAlgorithmEd25519
	PublicKey    string `json:"public_key"`    // base64 of the raw 32-byte key
}

// KeyAttestationDoc is an attestation binding the oracle's signing key to the enclave image.
type KeyAttestationDoc struct {
	AttestationDoc
	UserData *KeyAttestationUserData `json:"user_data"`
}

// AttestationCOSE is a raw COSE_Sign1 attestation as returned by the NSM.
type AttestationCOSE []byte

// ParseAttestationDoc decodes the attestation document and returns it with the
// raw user data bytes, which the caller interprets.
func (a AttestationCOSE) ParseAttestationDoc() (AttestationDoc, []byte, error) {
	raw, err := parsing.DecodeNitroDocument(a)
	if err != nil {
		return AttestationDoc{}, nil, err
	}
	doc := AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs:            PCRsFromRaw(raw.PCRs),
		Certificate:     base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:        parsing.EncodeCertificateBundle(raw.CABundle),
		PublicKey:       base64.StdEncoding.EncodeToString(raw.PublicKey),
		Nonce:           string(raw.Nonce),
	}
	return doc, raw.UserData, nil
}

// Base64 encodes the attestation for JSON transport.
func (a AttestationCOSE) Base64() AttestationCOSEBase64 {
	return AttestationCOSEBase64(base64.StdEncoding.EncodeToString(a))
}

// AttestationCOSEBase64 is an AttestationCOSE in base64 for JSON transport.
type AttestationCOSEBase64 string

// Decode returns the raw COSE bytes.
func (a AttestationCOSEBase64) Decode() (AttestationCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(string(a))
	if err != nil {
		return nil, fmt.Errorf("decode base64 attestation: %w", err)
	}
	return AttestationCOSE(data), nil
}

// KeyResponse answers a key_request.
type KeyResponse struct {
	Type                  string                `json:"type"`
	PublicKey             string                `json:"public_key"` // base64 of the raw Ed25519 key
	KeyAttestation        *KeyAttestationDoc    `json:"key_attestation,omitempty"`
	AttestationCOSEBase64 AttestationCOSEBase64 `json:"attestation_cose_base64,omitempty"`
}

// DrawRequest asks the oracle for a value in [0, Range).
type DrawRequest struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Range   uint64 `json:"range"`
	Nonce   uint64 `json:"nonce"`
}

// DrawInput is the signed payload of a draw proof. Round is assigned by the
// oracle and never repeats for the lifetime of its key.
type DrawInput struct {
	Subject string `cbor:"1,keyasint" json:"subject"`
	Range   uint64 `cbor:"2,keyasint" json:"range"`
	Nonce   uint64 `cbor:"3,keyasint" json:"nonce"`
	Round   uint64 `cbor:"4,keyasint" json:"round"`
}

// DrawProof carries a drawn value and the COSE_Sign1 message it derives from.
// Value is SHA-256 of the signature reduced modulo Input.Range.
type DrawProof struct {
	Input           DrawInput `json:"input"`
	Value           uint64    `json:"value"`
	ProofCOSEBase64 string    `json:"proof_cose_base64"`
}

// DrawResponse answers a draw_request.
type DrawResponse struct {
	Type    string     `json:"type"`
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Proof   *DrawProof `json:"proof,omitempty"`
}

// ErrorResponse is returned for malformed or unknown requests.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
