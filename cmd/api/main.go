package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"checklist/api/internal/app"
	"checklist/api/internal/checklist"
	"checklist/api/internal/config"
	"checklist/api/internal/lock"
	"checklist/api/internal/logging"
	"checklist/api/internal/store"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, logging.LevelError, logging.FormatJSON).Error("invalid configuration", "error", err.Error())
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	db, err := store.Open(ctx, cfg.DBDriver, cfg.DataSource())
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.DBDriver); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	version, err := store.SchemaVersion(ctx, db, cfg.DBDriver)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("database ready", "driver", cfg.DBDriver, "schema_version", version)

	group, ctx := errgroup.WithContext(ctx)

	// Per-session locks live in Redis when configured so replicas share them.
	var locker checklist.Locker
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for session locks")
		redisLocker, err := lock.NewRedisLocker(cfg.RedisURL, cfg.LockTTL, cfg.LockRetryInterval)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisLocker.Close()
		locker = redisLocker
	} else {
		logger.Info("using in-process session locks")
		locks := lock.NewKeyedMutex()
		janitor, err := lock.NewJanitor(locks, cfg.LockPruneSchedule, cfg.LockIdleAfter, logger)
		if err != nil {
			return err
		}
		janitor.Start()
		group.Go(func() error {
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return janitor.Stop(stopCtx)
		})
		locker = locks
	}

	service := app.New(cfg, store.NewSQLStore(db, cfg.DBDriver), locker, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group.Go(func() error {
		logger.Info("checklist API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		logger.Info("checklist API stopped")
		return nil
	})

	return group.Wait()
}
