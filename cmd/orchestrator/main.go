// Command orchestrator runs the worker fleet for one process, reconciling
// registry desired state into per-binding purchase loops.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/ulid/v2"

	"github.com/okedigitalmedia/voucherd/internal/adapter/idv"
	"github.com/okedigitalmedia/voucherd/internal/adapter/registry/redisreg"
	"github.com/okedigitalmedia/voucherd/internal/adapter/repo/postgres"
	"github.com/okedigitalmedia/voucherd/internal/config"
	"github.com/okedigitalmedia/voucherd/internal/observability"
	"github.com/okedigitalmedia/voucherd/internal/orchestrator"
	"github.com/okedigitalmedia/voucherd/internal/usecase"
)

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "orchestrator"
	}
	return fmt.Sprintf("%s-%s", host, ulid.Make().String())
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := redisreg.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	accountRepo := postgres.NewAccountRepo(pool)
	bindingRepo := postgres.NewBindingRepo(pool)
	serverRepo := postgres.NewServerRepo(pool)
	transactionRepo := postgres.NewTransactionRepo(pool)

	registry := redisreg.New(rdb, cfg.LockTTL(), cfg.HeartbeatTTL())
	providers := idv.NewFactory(cfg)
	transactionSvc := usecase.NewTransactionService(transactionRepo, bindingRepo, accountRepo, serverRepo, providers)

	rt := orchestrator.New(instanceID(), registry, bindingRepo, transactionSvc, cfg.ReconcileInterval, logger)
	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("orchestrator runtime exited", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("orchestrator stopped")
}
