package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wafguard-systems/wafguard/internal/repository"
	"github.com/wafguard-systems/wafguard/internal/statscache"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read API only, without the ingest pipeline",
	Long: `Serve starts the HTTP read API against an existing database without
tailing the audit log. Useful for running API replicas alongside a single
ingesting daemon.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.NewPostgresStore(ctx, cfg.Database.Postgres.ConnString())
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer store.Close()

	cache, err := statscache.New(cfg.Redis.URL, cfg.Redis.TTL, cfg.Redis.Enabled)
	if err != nil {
		return fmt.Errorf("init stats cache: %w", err)
	}
	defer cache.Close()

	srv := newHTTPServer(cfg, store, cache, logger)
	srvErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "read API listening", "port", cfg.Server.Port)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.InfoContext(ctx, "shutting down")
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("shutdown complete")

	return nil
}
