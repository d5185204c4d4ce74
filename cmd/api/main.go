package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"example.com/runlog/internal/api"
	"example.com/runlog/internal/auth"
	"example.com/runlog/internal/config"
	"example.com/runlog/internal/domain"
	"example.com/runlog/internal/logger"
	"example.com/runlog/internal/outbox"
	"example.com/runlog/internal/persistence"
	httptransport "example.com/runlog/internal/transport/http"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := persistence.Open(ctx, cfg)
	if err != nil {
		zl.Fatal("failed to open run store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer store.Close()

	var dispatcher *outbox.Dispatcher
	if store.Pool != nil && cfg.OutboxEnabled {
		publisher := outbox.NewPublisher(outbox.DefaultPublisherConfig(cfg.KafkaBrokers))
		defer func() {
			if err := publisher.Close(); err != nil {
				zl.Error("closing kafka publisher", zap.Error(err))
			}
		}()

		registry := outbox.NewRegistryClient(cfg.SchemaRegistryURL, nil)
		dispatcher = outbox.NewDispatcher(store.Pool, publisher, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(zl.Named("outbox")))
		if err := dispatcher.Prime(ctx); err != nil {
			zl.Warn("schema registry not ready, resolving schemas lazily", zap.Error(err))
		}

		go dispatcher.Start(ctx)
	}

	service := domain.NewService(store.Runs)
	handler := api.NewHandler(service, api.WithLogger(zl.Named("api")))
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	router := httptransport.NewRouter(httptransport.RouterConfig{
		CORSOrigin:   cfg.CORSOrigin,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}, handler, authMiddleware, zl.Named("http"))

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), router)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		zl.Info("runlog api listening",
			zap.String("address", cfg.HTTPAddress),
			zap.String("store", cfg.StoreBackend),
			zap.Bool("outbox", dispatcher != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	<-shutdownCh
	zl.Info("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
