package oracle

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mdlayher/vsock"
	"go.uber.org/zap"

	"github.com/cloudx-io/scionauction/core"
	"github.com/cloudx-io/scionauction/oracleapi"
	"github.com/cloudx-io/scionauction/validation"
)

// ErrProofRejected is returned when a draw proof fails verification.
var ErrProofRejected = errors.New("draw proof rejected")

// Dialer opens one connection to the oracle.
type Dialer func(ctx context.Context) (net.Conn, error)

// VsockDialer dials the oracle enclave from its parent instance.
func VsockDialer(cid, port uint32) Dialer {
	return func(context.Context) (net.Conn, error) {
		conn, err := vsock.Dial(cid, port, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial oracle at vsock %d:%d: %w", cid, port, err)
		}
		return conn, nil
	}
}

// TCPDialer dials an oracle served over TCP, as in local runs and tests.
func TCPDialer(addr string) Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
}

// Client draws verified randomness from the oracle. It implements
// core.RandomSource.
//
// Every proof is checked against the oracle's public key before its value is
// used, and rounds must strictly increase so a recorded proof cannot be
// replayed.
type Client struct {
	dial      Dialer
	publicKey ed25519.PublicKey
	timeout   time.Duration
	log       *zap.Logger

	mu        sync.Mutex
	lastRound uint64
}

var _ core.RandomSource = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client's logger.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.log = logger }
}

// WithTimeout bounds each request when the context has no earlier deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a client trusting publicKey, which should come from a
// validated key attestation.
func NewClient(dial Dialer, publicKey ed25519.PublicKey, opts ...ClientOption) *Client {
	c := &Client{
		dial:      dial,
		publicKey: publicKey,
		timeout:   10 * time.Second,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func roundTrip(ctx context.Context, dial Dialer, timeout time.Duration, req any, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(conn).Decode(&raw); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var base struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if base.Type == oracleapi.TypeErrorResponse {
		return fmt.Errorf("oracle error: %s", base.Message)
	}
	return json.Unmarshal(raw, resp)
}

// Ping checks that the oracle answers.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		Type string `json:"type"`
	}
	if err := roundTrip(ctx, c.dial, c.timeout, map[string]string{"type": oracleapi.TypePing}, &resp); err != nil {
		return err
	}
	if resp.Type != oracleapi.TypePong {
		return fmt.Errorf("unexpected ping response type %q", resp.Type)
	}
	return nil
}

// FetchKey asks the oracle for its public key and attestation. The caller
// validates the attestation before trusting the key.
func FetchKey(ctx context.Context, dial Dialer) (*oracleapi.KeyResponse, error) {
	var resp oracleapi.KeyResponse
	if err := roundTrip(ctx, dial, 30*time.Second, map[string]string{"type": oracleapi.TypeKeyRequest}, &resp); err != nil {
		return nil, err
	}
	if resp.Type != oracleapi.TypeKeyResponse {
		return nil, fmt.Errorf("unexpected key response type %q", resp.Type)
	}
	return &resp, nil
}

// Draw requests a value in [0, n) for subject and verifies its proof.
func (c *Client) Draw(ctx context.Context, subject core.Address, n uint64, nonce uint64) (uint64, error) {
	if n == 0 {
		return 0, fmt.Errorf("draw range must be positive")
	}

	req := oracleapi.DrawRequest{
		Type:    oracleapi.TypeDrawRequest,
		Subject: string(subject),
		Range:   n,
		Nonce:   nonce,
	}
	var resp oracleapi.DrawResponse
	if err := roundTrip(ctx, c.dial, c.timeout, req, &resp); err != nil {
		return 0, fmt.Errorf("oracle draw failed: %w", err)
	}
	if !resp.Success || resp.Proof == nil {
		return 0, fmt.Errorf("oracle draw failed: %s", resp.Message)
	}

	proof := resp.Proof
	if err := c.accept(req, proof); err != nil {
		c.log.Warn("rejected draw proof",
			zap.String("subject", req.Subject),
			zap.Uint64("round", proof.Input.Round),
			zap.Error(err))
		return 0, err
	}

	c.log.Debug("draw verified",
		zap.String("subject", req.Subject),
		zap.Uint64("range", n),
		zap.Uint64("round", proof.Input.Round),
		zap.Uint64("value", proof.Value))
	return proof.Value, nil
}

func (c *Client) accept(req oracleapi.DrawRequest, proof *oracleapi.DrawProof) error {
	if proof.Input.Subject != req.Subject || proof.Input.Range != req.Range || proof.Input.Nonce != req.Nonce {
		return fmt.Errorf("%w: proof is for a different request", ErrProofRejected)
	}

	result, err := validation.VerifyDrawProof(proof, c.publicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProofRejected, err)
	}
	if !result.IsValid() {
		return fmt.Errorf("%w: %v", ErrProofRejected, result.ValidationDetails)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if proof.Input.Round <= c.lastRound {
		return fmt.Errorf("%w: round %d not after %d", ErrProofRejected, proof.Input.Round, c.lastRound)
	}
	c.lastRound = proof.Input.Round
	return nil
}
