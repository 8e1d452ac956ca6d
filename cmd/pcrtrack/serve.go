package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/meistericham/pcrtrack/internal/backup"
	"github.com/meistericham/pcrtrack/internal/config"
	"github.com/meistericham/pcrtrack/internal/observability"
	"github.com/meistericham/pcrtrack/internal/profile"
	"github.com/meistericham/pcrtrack/internal/server"
	"github.com/meistericham/pcrtrack/internal/session"
	"github.com/meistericham/pcrtrack/internal/storage"
	"github.com/meistericham/pcrtrack/internal/storage/local"
	pgstore "github.com/meistericham/pcrtrack/internal/storage/postgres"
	"github.com/meistericham/pcrtrack/internal/store"
)

var (
	serveConfigPath string
	serveListen     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `pcrtrack --config path` and `pcrtrack serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&serveListen, "listen", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServe starts the pcrtrack server.
func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("PCRTRACK_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	logger.Info("starting pcrtrack", slog.String("config", serveConfigPath))

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetricsCollector()

	backend, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("closing storage", slog.String("error", err.Error()))
		}
	}()

	if err := backend.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating storage: %w", err)
	}

	st := store.New(backend, logger, metrics)
	if err := st.Hydrate(ctx); err != nil {
		return fmt.Errorf("hydrating state: %w", err)
	}

	provider := session.NewHTTPProvider(session.HTTPConfig{
		BaseURL:    cfg.Identity.BaseURL,
		AnonKey:    cfg.Identity.AnonKey,
		ServiceKey: cfg.Identity.ServiceKey,
		JWTSecret:  cfg.Identity.JWTSecret,
	}, logger)
	resolver := session.NewResolver(backend.Users(), logger)
	syncer := profile.NewSynchronizer(backend.Users(), logger)

	// Scheduled state snapshots.
	runner, err := backup.New(st, cfg.BackupDir(), cfg.BackupSchedule(), cfg.BackupKeep(), logger)
	if err != nil {
		return fmt.Errorf("initializing backups: %w", err)
	}
	go runner.Run(ctx)

	gw := server.NewGateway(server.FromConfig(cfg), st, provider, resolver, syncer, metrics, logger)
	if pg, ok := backend.(*pgstore.Store); ok {
		gw.WithReadiness(pg.Ping)
	}

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("server exited with error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return gw.Stop(shutdownCtx)
}

// openBackend opens the configured storage driver.
func openBackend(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	sc := cfg.StorageConfig()
	switch sc.Driver {
	case storage.DriverPostgres:
		db, err := pgstore.Open(pgstore.Config{
			DSN:             sc.Postgres.DSN,
			MaxOpenConns:    sc.Postgres.MaxOpenConns,
			MaxIdleConns:    sc.Postgres.MaxIdleConns,
			ConnMaxLifetime: time.Duration(sc.Postgres.ConnMaxLifetimeS) * time.Second,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres storage: %w", err)
		}
		return pgstore.NewStore(db), nil
	case storage.DriverLocal:
		st, err := local.Open(local.Config{
			Path:     sc.Local.Path,
			Debounce: time.Duration(sc.Local.DebounceMS) * time.Millisecond,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("opening local storage: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}
