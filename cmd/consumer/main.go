package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/RnD-Experts-Team/PNE-EO/internal/application/factories/infrastructure"
	"github.com/RnD-Experts-Team/PNE-EO/internal/config"
	"github.com/RnD-Experts-Team/PNE-EO/internal/consumer"
	"github.com/RnD-Experts-Team/PNE-EO/internal/consumer/handlers"
	natsinfra "github.com/RnD-Experts-Team/PNE-EO/internal/infrastructure/nats"
	"github.com/RnD-Experts-Team/PNE-EO/internal/infrastructure/postgres"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	// Startup configuration errors are the only non-zero exits; once the
	// loop is running it only stops on process termination.
	if len(cfg.Nats.Streams) == 0 {
		logger.Error("no streams configured in nats.streams")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Metrics Server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("consumer metrics listening", "port", cfg.Metrics.Port)
		http.ListenAndServe(":"+cfg.Metrics.Port, mux)
	}()

	// Infrastructure (Postgres + NATS)
	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	nc, err := infraFactory.Nats()
	if err != nil {
		logger.Error("failed to connect to nats", "error", err)
		os.Exit(1)
	}

	js, err := natsinfra.NewJetStream(nc)
	if err != nil {
		logger.Error("failed to init jetstream", "error", err)
		os.Exit(1)
	}

	txManager := postgres.NewTxManager(pgPool)
	inboxRepo := postgres.NewInboxRepository(pgPool)
	userRepo := postgres.NewUserRepository(pgPool)
	storeRepo := postgres.NewStoreRepository(pgPool)

	router := consumer.NewRouter()
	router.Register("auth.v1.user.created", handlers.NewUserCreated(userRepo))
	router.Register("auth.v1.user.updated", handlers.NewUserUpdated(userRepo))
	router.Register("auth.v1.user.deleted", handlers.NewUserDeleted(userRepo))
	router.Register("auth.v1.store.created", handlers.NewStoreCreated(storeRepo))
	router.Register("auth.v1.store.updated", handlers.NewStoreUpdated(storeRepo))
	router.Register("auth.v1.store.deleted", handlers.NewStoreDeleted(storeRepo))

	worker := consumer.New(js, txManager, inboxRepo, router, cfg.Nats.Streams, cfg.Consumer, logger)

	logger.Info("event consumer started",
		"streams", len(cfg.Nats.Streams),
		"max_attempts", cfg.Consumer.MaxAttempts,
		"batch", cfg.Consumer.Batch)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("consumer shut down")
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
