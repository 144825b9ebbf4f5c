package validation

import (
	"fmt"

	"github.com/cloudx-io/scionauction/oracleapi"
)

// validateCommonAttestation checks the enclave measurements, the certificate
// chain and the NSM signature of an attestation. Failed checks are recorded in
// the result; an error means the attestation could not be examined at all.
func validateCommonAttestation(coseB64 oracleapi.AttestationCOSEBase64, knownPCRs []PCRSet) (*BaseValidationResult, oracleapi.AttestationDoc, []byte, error) {
	coseBytes, err := coseB64.Decode()
	if err != nil {
		return nil, oracleapi.AttestationDoc{}, nil, err
	}
	doc, userData, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, oracleapi.AttestationDoc{}, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	result := &BaseValidationResult{ValidationDetails: []string{}}
	note := func(format string, args ...any) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf(format, args...))
	}

	if ok, idx := ValidatePCRs(doc.PCRs, knownPCRs); ok {
		result.PCRsValid = true
		note("PCR measurements valid")
		note("Matched PCR set: #%d (commit: %s)", idx, knownPCRs[idx].CommitHash)
	} else {
		note("PCR0: %s (no match)", doc.PCRs.ImageFileHash)
		note("PCR1: %s (no match)", doc.PCRs.KernelHash)
		note("PCR2: %s (no match)", doc.PCRs.ApplicationHash)
	}

	switch {
	case doc.Certificate == "":
		note("Missing certificate")
	case len(doc.CABundle) == 0:
		note("Missing CA bundle")
	default:
		if err := ValidateCertificateChain(doc.Certificate, doc.CABundle, doc.Timestamp); err != nil {
			note("Certificate chain validation failed: %v", err)
		} else {
			result.CertificateValid = true
			note("Certificate chain verified")
		}
	}

	if err := VerifyCOSESignature(coseB64, doc.Certificate); err != nil {
		note("COSE signature verification failed: %v", err)
	} else {
		result.SignatureValid = true
		note("COSE signature verified")
	}

	return result, doc, userData, nil
}
