package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/opsdesk/opsdesk/config"
	"github.com/opsdesk/opsdesk/internal/api"
	"github.com/opsdesk/opsdesk/internal/api/handlers"
	"github.com/opsdesk/opsdesk/internal/core/auth"
	"github.com/opsdesk/opsdesk/internal/core/entity"
	"github.com/opsdesk/opsdesk/internal/core/order"
	"github.com/opsdesk/opsdesk/internal/core/product"
	"github.com/opsdesk/opsdesk/internal/core/sequence"
	"github.com/opsdesk/opsdesk/internal/core/supplier"
	"github.com/opsdesk/opsdesk/internal/pkg/logger"
	"github.com/opsdesk/opsdesk/internal/storage/memory"
	"github.com/opsdesk/opsdesk/internal/storage/postgres"
	"github.com/opsdesk/opsdesk/internal/storage/resilient"
	"github.com/opsdesk/opsdesk/internal/storage/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	if cfg.JWT.Secret == "" {
		log.Fatalf("OPSDESK_JWT_SECRET environment variable is required")
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("initialize logger: %v", err)
	}
	defer logger.Sync()

	var st store.Store
	switch cfg.Database.Backend {
	case "memory":
		st = memory.NewStore()
		logger.Info("using in-memory store backend")
	default:
		client, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			logger.Error("connect to database", zap.Error(err))
			os.Exit(1)
		}
		defer client.Close()
		st = client
		logger.Info("connected to database")
	}

	// Authentication provider
	authRepo := auth.NewRepository(st)
	authService := auth.NewService(authRepo, &cfg.JWT)

	// Resilient data-access layer
	retryOpts := resilient.Options{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		BaseDelay:     cfg.Retry.BaseDelay,
		MaxDelay:      cfg.Retry.MaxDelay,
		AuthAttempts:  cfg.Retry.AuthAttempts,
		AuthPollDelay: cfg.Retry.AuthPollDelay,
	}
	state := authService.State()
	repoFor := func(typeName string) *resilient.Repository {
		return resilient.New(st, state, typeName, retryOpts, logger.L())
	}
	seq := sequence.NewGenerator(st, logger.L())

	// Entity services
	registry := entity.NewRegistry()
	registry.Register(supplier.NewService(repoFor(supplier.TypeName), seq, logger.L()).Service)
	registry.Register(product.NewService(repoFor(product.TypeName), seq, logger.L()).Service)
	registry.Register(order.NewService(repoFor(order.TypeName), seq, logger.L()).Service)
	for _, typeName := range []string{"customers", "workers", "recipes", "purchase_orders", "cash_closures"} {
		registry.Register(entity.NewService(repoFor(typeName), seq, typeName, entity.Hooks{}, logger.L()))
	}

	// Handlers and router
	authHandler := handlers.NewAuthHandler(authService)
	entityHandler := handlers.NewEntityHandler(registry)
	router := api.NewRouter(authService, authHandler, entityHandler)
	engine := router.Setup(cfg.Server.Mode)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down server")
		_ = st.SetConnectivity(context.Background(), false)
		logger.Sync()
		os.Exit(0)
	}()

	logger.Info("starting server", zap.String("port", cfg.Server.Port))
	if err := engine.Run(":" + cfg.Server.Port); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
