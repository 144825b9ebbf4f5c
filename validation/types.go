package validation

// BaseValidationResult contains common validation results for all attestation types
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// KeyValidationResult contains validation results specific to oracle key attestations
type KeyValidationResult struct {
	BaseValidationResult
	KeyAlgorithmValid bool
	PublicKeyMatch    bool
}

// IsValid returns true if all key validation checks passed
func (r *KeyValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.KeyAlgorithmValid && r.PublicKeyMatch
}

// DrawValidationResult contains the results of checking one draw proof
type DrawValidationResult struct {
	SignatureValid    bool
	InputMatch        bool
	ValueValid        bool
	ValidationDetails []string
}

// IsValid returns true if the proof is signed by the key, covers the claimed
// input and yields the claimed value
func (r *DrawValidationResult) IsValid() bool {
	return r.SignatureValid && r.InputMatch && r.ValueValid
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // repo commit used to build the oracle enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
