package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Sign1Parts holds the byte fields of an untagged COSE_Sign1 array:
// [protected, unprotected, payload, signature].
type Sign1Parts struct {
	Protected []byte
	Payload   []byte
	Signature []byte
}

// SplitSign1 decodes the 4-element COSE_Sign1 array that AWS Nitro emits.
// The unprotected header map is dropped.
func SplitSign1(coseBytes []byte) (Sign1Parts, error) {
	var coseArray []any
	if err := cbor.Unmarshal(coseBytes, &coseArray); err != nil {
		return Sign1Parts{}, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(coseArray) != 4 {
		return Sign1Parts{}, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}

	var parts Sign1Parts
	var ok bool
	if parts.Protected, ok = coseArray[0].([]byte); !ok {
		return Sign1Parts{}, fmt.Errorf("invalid protected headers in COSE structure")
	}
	if parts.Payload, ok = coseArray[2].([]byte); !ok {
		return Sign1Parts{}, fmt.Errorf("invalid payload in COSE structure")
	}
	if parts.Signature, ok = coseArray[3].([]byte); !ok {
		return Sign1Parts{}, fmt.Errorf("invalid signature in COSE structure")
	}
	return parts, nil
}

// SigStructure builds the Sig_structure a COSE_Sign1 signature covers,
// with an empty external_aad.
func SigStructure(parts Sign1Parts) ([]byte, error) {
	data, err := cbor.Marshal([]any{"Signature1", parts.Protected, []byte{}, parts.Payload})
	if err != nil {
		return nil, fmt.Errorf("marshal Sig_structure: %w", err)
	}
	return data, nil
}
