// Command scion-oracle serves verifiable draws from inside a Nitro enclave.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/cloudx-io/scionauction/logging"
	"github.com/cloudx-io/scionauction/oracle"
)

func main() {
	logger, err := logging.New(os.Getenv("SCION_LOG_LEVEL"), false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("oracle stopped", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	maxWorkers, err := getRequiredEnvInt("SCION_ORACLE_MAX_WORKERS")
	if err != nil {
		return err
	}
	logger.Info("using environment", zap.String("key", "SCION_ORACLE_MAX_WORKERS"), zap.Int("value", maxWorkers))

	port := oracle.DefaultPort
	if v := os.Getenv("SCION_ORACLE_PORT"); v != "" {
		p, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid value for SCION_ORACLE_PORT: %s", v)
		}
		port = uint32(p)
	}

	keys, err := loadKeys()
	if err != nil {
		return err
	}
	logger.Info("key manager initialized", zap.String("public_key", keys.PublicKeyBase64()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := oracle.NewServer(port, keys,
		oracle.WithServerLogger(logger),
		oracle.WithMaxWorkers(maxWorkers))

	// Outside an enclave the oracle can serve plain TCP for local development.
	if addr := os.Getenv("SCION_ORACLE_TCP_ADDR"); addr != "" {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		logger.Warn("serving over TCP, draws are not attested", zap.String("addr", l.Addr().String()))
		return srv.Serve(ctx, l)
	}
	return srv.ListenAndServe(ctx)
}

// loadKeys generates a fresh key unless SCION_ORACLE_SEED pins one for local runs.
func loadKeys() (*oracle.KeyManager, error) {
	seedHex := os.Getenv("SCION_ORACLE_SEED")
	if seedHex == "" {
		return oracle.NewKeyManager()
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid SCION_ORACLE_SEED: %w", err)
	}
	return oracle.NewKeyManagerFromSeed(seed)
}

func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a positive integer)", key, value)
	}
	return n, nil
}
