package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/glykeria-rk/thesisadmincli/internal/config"
	"github.com/glykeria-rk/thesisadmincli/internal/db"
	"github.com/glykeria-rk/thesisadmincli/internal/health"
	"github.com/glykeria-rk/thesisadmincli/internal/httpapi"
	"github.com/glykeria-rk/thesisadmincli/internal/logging"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/service"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store/memory"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store/postgres"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store/sqlite"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	locks := service.NewKeyLock()
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithLocation(cfg.Location),
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:   logger,
		Addr:     cfg.HTTPAddr,
		Location: cfg.Location,
		Rules:    service.NewRuleService(st, locks, opts...),
		Registry: service.NewIdentityRegistry(st, locks, opts...),
		Verifier: service.NewVerificationService(st, locks, opts...),
		Audit:    service.NewAuditTrail(st, opts...),
	})

	var hs *health.Server
	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			return fmt.Errorf("health listen: %w", err)
		}
		hs = health.New(logger)
		go func() {
			if err := hs.Serve(lis); err != nil {
				logger.Warn("health server stopped", zap.Error(err))
			}
		}()
		defer hs.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.Store.Driver),
			zap.String("timezone", cfg.Location.String()),
		)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var probe *health.Probe
	if hs != nil {
		probe = health.NewProbe(hs, health.StoreCheck(st), health.ProbeConfig{}, logger)
		probe.Start(ctx)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	if probe != nil {
		probe.Stop()
		hs.SetServing(false)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("using in-memory store; state is lost on exit")
		return memory.New(), func() {}, nil

	case "sqlite":
		conn, err := db.Open(ctx, db.Config{Path: cfg.Store.SQLitePath})
		if err != nil {
			return nil, nil, err
		}
		if cfg.SeedDev {
			if err := db.SeedDev(ctx, conn, db.SeedDevOptions{}); err != nil {
				_ = conn.Close()
				return nil, nil, err
			}
			logger.Info("seeded dev identity")
		}
		writer := db.NewWorker(conn)
		return sqlite.New(conn, writer), func() {
			writer.Close()
			_ = conn.Close()
		}, nil

	case "postgres":
		migrations, err := db.OpenPostgres(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		_ = migrations.Close()

		pool, err := postgres.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
