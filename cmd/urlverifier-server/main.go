package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/urlverifier/internal/cache"
	"github.com/pendergraft/urlverifier/internal/chain"
	"github.com/pendergraft/urlverifier/internal/config"
	"github.com/pendergraft/urlverifier/internal/genlayer"
	"github.com/pendergraft/urlverifier/internal/observability/metrics"
	"github.com/pendergraft/urlverifier/internal/server"
	"github.com/pendergraft/urlverifier/internal/storage"
	"github.com/pendergraft/urlverifier/internal/validation"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "urlverifier-server",
		Short:   "urlverifier server - on-chain URL verification gateway",
		Version: version,
	}

	// Default behavior (no subcommand) is to serve
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe()
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newKeysCmd())
	rootCmd.AddCommand(newAccountCmd())
	rootCmd.AddCommand(newSubmissionsCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// openStore opens storage with a quiet logger for one-shot admin commands.
func openStore(ctx context.Context) (storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	store, err := storage.New(cfg.Storage, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

// newChainClient builds an uninitialized session client from config.
func newChainClient(cfg *config.Config, logger *slog.Logger) (*genlayer.Client, error) {
	if cfg.Chain.ContractAddress != "" {
		if err := validation.ValidateContractAddress(cfg.Chain.ContractAddress); err != nil {
			return nil, fmt.Errorf("CONTRACT_ADDRESS: %w", err)
		}
	}

	endpoint, err := cfg.Chain.Endpoint(chain.DefaultRegistry())
	if err != nil {
		return nil, fmt.Errorf("resolving network: %w", err)
	}

	return genlayer.NewClient(endpoint,
		genlayer.WithAccountSource(genlayer.AccountSource(cfg.Account.PrivateKey, cfg.Account.KeyFile)),
		genlayer.WithPollPolicy(genlayer.PollPolicy{
			Attempts: cfg.Poll.Attempts,
			Interval: cfg.Poll.Interval,
		}),
		genlayer.WithLogger(logger),
	), nil
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg)
	logger.Info("starting urlverifier-server", "version", version)

	metrics.Init(cfg.Metrics.Enabled, "urlverifier")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	payloads, err := cache.New(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer payloads.Close()

	client, err := newChainClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	endpoint := client.Endpoint()
	logger.Info("chain endpoint",
		"network", endpoint.Key,
		"chain_id", endpoint.ID,
		"rpc_url", endpoint.RPCURL,
		"contract", endpoint.ContractAddress,
	)
	if !endpoint.Configured() {
		logger.Warn("CONTRACT_ADDRESS is not set; serving in setup-required mode")
	}

	srv := server.New(cfg, store, client, payloads, logger, version)

	if cfg.Chain.AutoInitialize && endpoint.Configured() {
		go srv.Warmup(ctx)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 2)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler:           srv.MetricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics: %w", err)
			}
		}()
	}

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
