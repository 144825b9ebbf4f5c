// Command scionauctiond serves the scion auction and trait engine over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cloudx-io/scionauction/api"
	"github.com/cloudx-io/scionauction/config"
	"github.com/cloudx-io/scionauction/core"
	"github.com/cloudx-io/scionauction/logging"
	"github.com/cloudx-io/scionauction/oracle"
	"github.com/cloudx-io/scionauction/store"
	"github.com/cloudx-io/scionauction/tokens"
	"github.com/cloudx-io/scionauction/validation"
)

func main() {
	var (
		configPath = flag.String("config", "scion.yaml", "Path to the YAML configuration")
		envFile    = flag.String("env", ".env", "Optional .env file with SCION_* overrides")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = config.LoadEnv(&cfg, *envFile)
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("scionauctiond stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	journal, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := journal.Close(); err != nil {
			logger.Warn("failed to close journal", zap.Error(err))
		}
	}()
	lastSeq, err := journal.LastSeq(ctx)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	logger.Info("journal opened", zap.String("driver", cfg.Store.Driver), zap.Uint64("last_seq", lastSeq))

	funds := tokens.NewLedger("USD")
	rerollFunds := tokens.NewLedger("SCN")
	if err := config.SeedBalances(cfg.Balances, funds, rerollFunds); err != nil {
		return err
	}

	random, err := randomSource(ctx, cfg.Oracle, logger)
	if err != nil {
		return err
	}

	hub := api.NewHub(logger.Named("hub"), cfg.HTTP.AllowedOrigins...)
	go hub.Run(ctx)

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	engine, err := core.NewEngine(engineCfg, core.Dependencies{
		Funds:       funds,
		RerollFunds: rerollFunds,
		Passes:      tokens.NewRegistry("pass"),
		Scions:      tokens.NewRegistry("scion"),
		Random:      random,
		Creatures: map[core.CreatureLine]core.TokenRegistry{
			core.LineArchangel: tokens.NewRegistry(string(core.LineArchangel)),
			core.LineWatcher:   tokens.NewRegistry(string(core.LineWatcher)),
		},
	},
		core.WithLogger(logger.Named("engine")),
		core.WithEventSeq(lastSeq),
		core.WithEventSink(core.MultiSink{
			store.NewSink(journal, logger.Named("journal")),
			hub,
			core.LogSink{Logger: logger.Named("events")},
		}),
	)
	if err != nil {
		return err
	}
	if err := config.Apply(ctx, engine, cfg); err != nil {
		return fmt.Errorf("apply config: %w", err)
	}

	srv := api.NewServer(engine,
		api.WithLogger(logger.Named("api")),
		api.WithJournal(journal),
		api.WithHub(hub),
		api.WithAllowedOrigins(cfg.HTTP.AllowedOrigins))

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// randomSource picks the oracle client when one is configured, else the
// insecure hash source.
func randomSource(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (core.RandomSource, error) {
	var dial oracle.Dialer
	switch {
	case cfg.CID != 0:
		port := cfg.Port
		if port == 0 {
			port = oracle.DefaultPort
		}
		dial = oracle.VsockDialer(cfg.CID, port)
	case cfg.Addr != "":
		dial = oracle.TCPDialer(cfg.Addr)
	default:
		logger.Warn("using insecure random source, draws are predictable")
		var seed []byte
		if cfg.InsecureSeed != "" {
			seed = []byte(cfg.InsecureSeed)
		}
		return core.NewInsecureRandomSource(seed)
	}

	publicKey := cfg.PublicKey
	if publicKey == "" {
		resp, err := oracle.FetchKey(ctx, dial)
		if err != nil {
			return nil, fmt.Errorf("fetch oracle key: %w", err)
		}
		if cfg.CID != 0 {
			result, err := validation.ValidateKeyAttestation(resp.AttestationCOSEBase64, resp.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("validate oracle key: %w", err)
			}
			if !result.IsValid() {
				return nil, fmt.Errorf("oracle key attestation rejected: %v", result.ValidationDetails)
			}
			logger.Info("oracle key attested", zap.Strings("details", result.ValidationDetails))
		} else {
			logger.Warn("oracle key fetched over TCP without attestation", zap.String("addr", cfg.Addr))
		}
		publicKey = resp.PublicKey
	}

	key, err := oracle.ParsePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	client := oracle.NewClient(dial, key, oracle.WithClientLogger(logger.Named("oracle")))
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("oracle unreachable: %w", err)
	}
	return client, nil
}
