// Package oracle runs the verifiable randomness oracle inside a Nitro enclave
// and provides the client the engine draws through.
package oracle

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync/atomic"
)

// KeyManager holds the oracle's Ed25519 signing key and its draw round counter.
type KeyManager struct {
	privateKey ed25519.PrivateKey // Keep private - sensitive!
	PublicKey  ed25519.PublicKey
	round      atomic.Uint64
}

// NewKeyManager generates a fresh key pair. Inside an enclave crypto/rand draws
// on NSM-seeded kernel entropy, so the key never exists outside the enclave.
func NewKeyManager() (*KeyManager, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &KeyManager{privateKey: privateKey, PublicKey: publicKey}, nil
}

// NewKeyManagerFromSeed derives the key pair from a 32-byte seed. For tests and
// local runs outside an enclave.
func NewKeyManagerFromSeed(seed []byte) (*KeyManager, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	privateKey := ed25519.NewKeyFromSeed(seed)
	return &KeyManager{
		privateKey: privateKey,
		PublicKey:  privateKey.Public().(ed25519.PublicKey),
	}, nil
}

// PublicKeyBase64 returns the raw public key in standard base64.
func (km *KeyManager) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(km.PublicKey)
}

// nextRound returns a round number never handed out before by this key.
func (km *KeyManager) nextRound() uint64 {
	return km.round.Add(1)
}

// ParsePublicKey decodes a base64 raw Ed25519 public key.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
