package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/mdlayher/vsock"
	"go.uber.org/zap"

	"github.com/cloudx-io/scionauction/oracleapi"
)

// DefaultPort is the vsock port the oracle listens on.
const DefaultPort uint32 = 5000

const connectionDeadline = 30 * time.Second

// NitroAttester returns the enclave's NSM handle.
func NitroAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// Server answers ping, key and draw requests over vsock, one JSON request and
// one JSON response per connection.
type Server struct {
	port       uint32
	maxWorkers int
	keys       *KeyManager
	attester   func() (EnclaveAttester, error)
	log        *zap.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server's logger.
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) { s.log = logger }
}

// WithAttester replaces the NSM attester lookup, mostly for tests.
func WithAttester(fn func() (EnclaveAttester, error)) ServerOption {
	return func(s *Server) { s.attester = fn }
}

// WithMaxWorkers bounds the number of connections handled at once.
func WithMaxWorkers(n int) ServerOption {
	return func(s *Server) { s.maxWorkers = n }
}

// NewServer creates a server signing with keys.
func NewServer(port uint32, keys *KeyManager, opts ...ServerOption) *Server {
	s := &Server{
		port:       port,
		maxWorkers: 16,
		keys:       keys,
		attester:   NitroAttester,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe listens on the configured vsock port until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := vsock.Listen(s.port, nil)
	if err != nil {
		return fmt.Errorf("failed to create vsock listener: %w", err)
	}
	s.log.Info("oracle listening", zap.Uint32("port", s.port))
	return s.Serve(ctx, listener)
}

// Serve accepts connections from l until ctx is done. Connections arriving
// while every worker is busy are closed immediately.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	semaphore := make(chan struct{}, s.maxWorkers)
	s.log.Info("worker pool initialized", zap.Int("max_workers", s.maxWorkers))

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error("failed to accept connection", zap.Error(err))
			continue
		}

		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handleConnection(c)
			}(conn)
		default:
			s.log.Info("no workers available, rejecting connection")
			if err := conn.Close(); err != nil {
				s.log.Error("failed to close rejected connection", zap.Error(err))
			}
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic recovered in handleConnection", zap.Any("panic", r))
		}
		if err := conn.Close(); err != nil {
			s.log.Debug("failed to close connection", zap.Error(err))
		}
	}()

	_ = conn.SetDeadline(time.Now().Add(connectionDeadline))

	var raw json.RawMessage
	if err := json.NewDecoder(conn).Decode(&raw); err != nil {
		s.log.Error("failed to read request", zap.Error(err))
		return
	}

	response := s.respond(raw)
	if err := json.NewEncoder(conn).Encode(response); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

func errorResponse(format string, args ...any) oracleapi.ErrorResponse {
	return oracleapi.ErrorResponse{Type: oracleapi.TypeErrorResponse, Message: fmt.Sprintf(format, args...)}
}

// respond dispatches one request on its type tag.
func (s *Server) respond(raw []byte) any {
	var baseReq struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &baseReq); err != nil {
		return errorResponse("Failed to decode request: %v", err)
	}
	s.log.Debug("received request", zap.String("type", baseReq.Type))

	switch baseReq.Type {
	case oracleapi.TypePing:
		return map[string]any{
			"type":      oracleapi.TypePong,
			"message":   "oracle is healthy",
			"timestamp": time.Now().Unix(),
		}

	case oracleapi.TypeKeyRequest:
		attester, err := s.attester()
		if err != nil {
			s.log.Error("key request failed", zap.Error(err))
			return errorResponse("Failed to initialize TEE attester: %v", err)
		}
		keyResp, err := HandleKeyRequest(attester, s.keys)
		if err != nil {
			s.log.Error("key request failed", zap.Error(err))
			return errorResponse("Key request failed: %v", err)
		}
		return keyResp

	case oracleapi.TypeDrawRequest:
		var req oracleapi.DrawRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorResponse("Failed to decode draw request: %v", err)
		}
		proof, err := Prove(s.keys, req)
		if err != nil {
			s.log.Warn("draw failed", zap.String("subject", req.Subject), zap.Error(err))
			return oracleapi.DrawResponse{Type: oracleapi.TypeDrawResponse, Success: false, Message: err.Error()}
		}
		s.log.Debug("draw served",
			zap.String("subject", req.Subject),
			zap.Uint64("range", req.Range),
			zap.Uint64("round", proof.Input.Round))
		return oracleapi.DrawResponse{Type: oracleapi.TypeDrawResponse, Success: true, Proof: proof}

	default:
		return errorResponse("Unknown request type: %s", baseReq.Type)
	}
}
