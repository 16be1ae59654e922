package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/fintrack/internal/bootstrap"
	"github.com/cassiomorais/fintrack/internal/controller"
	"github.com/cassiomorais/fintrack/internal/infrastructure/identity"
	infraRedis "github.com/cassiomorais/fintrack/internal/infrastructure/redis"
	"github.com/cassiomorais/fintrack/internal/repository/postgres"
	"github.com/cassiomorais/fintrack/internal/service"
	"github.com/cassiomorais/fintrack/internal/web"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "fintrack-api", "fintrack")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	cfg := app.Config

	// --- Repositories ---
	accountRepo := postgres.NewAccountRepository(app.Pool)
	userRepo := postgres.NewUserRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)
	viewCache := infraRedis.NewViewCache(app.Redis, cfg.Cache.DashboardTTL)

	// --- Identity ---
	verifier := identity.NewVerifier(cfg.Identity)
	profiles := identity.NewProfileClient(cfg.Identity, app.Metrics)

	// --- Services ---
	identityService := service.NewIdentityService(userRepo, profiles, app.Metrics, app.Logger)
	accountService := service.NewAccountService(
		identityService, accountRepo, userRepo, outboxRepo, txManager, viewCache, app.Metrics, app.Logger,
	)

	pages, err := web.NewHandler(accountService, cfg.Web, app.Logger)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to load page templates")
	}

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		DB:               app.Pool,
		Redis:            app.Redis,
		AccountService:   accountService,
		IdentityService:  identityService,
		Verifier:         verifier,
		IdempotencyStore: idempotencyRepo,
		Web:              pages,
		Metrics:          app.Metrics,
		Logger:           app.Logger,
		ServerConfig:     cfg.Server,
		IdentityConfig:   cfg.Identity,
		IdempotencyTTL:   cfg.Worker.IdempotencyTTL,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
