package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/wafguard-systems/wafguard/internal/classifier"
	"github.com/wafguard-systems/wafguard/internal/config"
	"github.com/wafguard-systems/wafguard/internal/correlator"
	"github.com/wafguard-systems/wafguard/internal/handlers"
	"github.com/wafguard-systems/wafguard/internal/logging"
	"github.com/wafguard-systems/wafguard/internal/models"
	"github.com/wafguard-systems/wafguard/internal/pipeline"
	"github.com/wafguard-systems/wafguard/internal/repository"
	"github.com/wafguard-systems/wafguard/internal/server"
	"github.com/wafguard-systems/wafguard/internal/statscache"
	"github.com/wafguard-systems/wafguard/internal/tailer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full daemon: tailer, correlator and read API",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connString := cfg.Database.Postgres.ConnString()
	if err := applyMigrations(connString, logger); err != nil {
		return err
	}

	store, err := repository.NewPostgresStore(ctx, connString)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer store.Close()

	cls, err := buildClassifier(cfg)
	if err != nil {
		return err
	}

	cache, err := statscache.New(cfg.Redis.URL, cfg.Redis.TTL, cfg.Redis.Enabled)
	if err != nil {
		return fmt.Errorf("init stats cache: %w", err)
	}
	defer cache.Close()

	corr := correlator.New(cls, cfg.Correlation.Window, models.Thresholds{
		Medium: cfg.Correlation.MediumThreshold,
		High:   cfg.Correlation.HighThreshold,
	})
	proc := pipeline.New(store, corr, logger, cfg.Ingest.QueueSize, cfg.Ingest.EnqueueTimeout)
	tl := tailer.New(cfg.Ingest.LogPath, cfg.Ingest.PollInterval, logger, proc.Enqueue)

	procDone := make(chan struct{})
	go func() {
		defer close(procDone)
		if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorContext(ctx, "processor stopped", "error", err)
		}
	}()

	tailDone := make(chan struct{})
	go func() {
		defer close(tailDone)
		if err := tl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorContext(ctx, "tailer stopped", "error", err)
		}
	}()

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
			stop()
			<-tailDone
			<-procDone
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(ctx, "http shutdown failed", "error", err)
	}

	<-tailDone
	<-procDone
	logger.Info("shutdown complete")

	return nil
}

// buildClassifier loads the CRS prefix table, merging an override file when
// one is configured.
func buildClassifier(cfg *config.Config) (*classifier.Classifier, error) {
	if cfg.Classifier.RulesPath == "" {
		return classifier.New(), nil
	}
	cls, err := classifier.NewFromFile(cfg.Classifier.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("load classifier rules: %w", err)
	}
	return cls, nil
}

// applyMigrations brings the schema up to date before the daemon starts.
func applyMigrations(connString string, logger *logging.Logger) error {
	m, err := migrate.New("file://migrations", connString)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")

	return nil
}

// newHTTPServer assembles the read API server.
func newHTTPServer(cfg *config.Config, store repository.Store, cache *statscache.Cache, logger *logging.Logger) *http.Server {
	h := handlers.NewHandler(store, cache, logger)
	router := server.NewRouter(h, cfg.Server.AllowedOrigins)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
