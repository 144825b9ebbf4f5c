package core

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync/atomic"
)

// InsecureRandomSource derives draws from a public seed, a round counter, the
// subject and the nonce. The round advances on every draw, including draws made
// by calls that are later rolled back, the way block entropy moves on between
// transactions. Anyone who knows the seed can predict every draw; use it for
// tests and local runs.
type InsecureRandomSource struct {
	seed  []byte
	round atomic.Uint64
}

// NewInsecureRandomSource returns a source keyed by seed. A nil seed is replaced
// with 32 bytes from crypto/rand, which keeps draws unpredictable across restarts
// but not verifiable.
func NewInsecureRandomSource(seed []byte) (*InsecureRandomSource, error) {
	if seed == nil {
		seed = make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("entropy generation failed: %w", err)
		}
	}
	return &InsecureRandomSource{seed: append([]byte(nil), seed...)}, nil
}

// Draw returns SHA256(seed | subject | n | nonce | round) reduced modulo n.
// The 256-bit digest makes the modulo bias negligible for any uint64 n.
func (s *InsecureRandomSource) Draw(_ context.Context, subject Address, n uint64, nonce uint64) (uint64, error) {
	if n == 0 {
		return 0, fmt.Errorf("draw range must be positive")
	}

	var buf [24]byte
	binary.BigEndian.PutUint64(buf[:8], n)
	binary.BigEndian.PutUint64(buf[8:16], nonce)
	binary.BigEndian.PutUint64(buf[16:], s.round.Add(1))

	h := sha256.New()
	h.Write(s.seed)
	h.Write([]byte("|"))
	h.Write([]byte(subject))
	h.Write([]byte("|"))
	h.Write(buf[:])

	return ReduceDigest(h.Sum(nil), n), nil
}

// ReduceDigest maps a hash digest onto [0, n).
func ReduceDigest(digest []byte, n uint64) uint64 {
	v := new(big.Int).SetBytes(digest)
	return v.Mod(v, new(big.Int).SetUint64(n)).Uint64()
}
