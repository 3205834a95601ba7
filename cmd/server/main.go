// Command server starts the voucherd HTTP API.
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

	"github.com/okedigitalmedia/voucherd/internal/adapter/httpserver"
	"github.com/okedigitalmedia/voucherd/internal/adapter/idv"
	"github.com/okedigitalmedia/voucherd/internal/adapter/registry/redisreg"
	"github.com/okedigitalmedia/voucherd/internal/adapter/repo/postgres"
	"github.com/okedigitalmedia/voucherd/internal/app"
	"github.com/okedigitalmedia/voucherd/internal/config"
	"github.com/okedigitalmedia/voucherd/internal/observability"
	"github.com/okedigitalmedia/voucherd/internal/usecase"
)

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

	ctx := context.Background()
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

	serverRepo := postgres.NewServerRepo(pool)
	accountRepo := postgres.NewAccountRepo(pool)
	bindingRepo := postgres.NewBindingRepo(pool)
	transactionRepo := postgres.NewTransactionRepo(pool)

	registry := redisreg.New(rdb, cfg.LockTTL(), cfg.HeartbeatTTL())
	providers := idv.NewFactory(cfg)

	serverSvc := usecase.NewServerService(serverRepo, bindingRepo)
	accountSvc := usecase.NewAccountService(accountRepo, bindingRepo)
	bindingSvc := usecase.NewBindingService(bindingRepo, accountRepo, serverRepo, providers)
	transactionSvc := usecase.NewTransactionService(transactionRepo, bindingRepo, accountRepo, serverRepo, providers)
	orchestrationSvc := usecase.NewOrchestrationService(registry, bindingRepo)
	toolsSvc := usecase.NewToolsService(serverRepo, accountRepo, bindingRepo, providers)

	dbCheck, redisCheck := app.BuildReadinessChecks(pool, rdb)

	srv := httpserver.NewServer(cfg, serverSvc, accountSvc, bindingSvc,
		transactionSvc, orchestrationSvc, toolsSvc, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, logger, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
