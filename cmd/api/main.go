package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"charforge/internal/adapter/repo"
	"charforge/internal/engine"
	"charforge/internal/http/handlers"
	"charforge/internal/http/httpapi"
	"charforge/internal/infra"
	"charforge/internal/storage"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := infra.EnsureSchema(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("api: schema bootstrap failed")
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}
	engineClient, err := engine.NewClient(engine.Options{
		BaseURL:        cfg.EngineBaseURL,
		ClientID:       cfg.EngineClientID,
		RequestTimeout: cfg.EngineReqTimeout,
		HealthTimeout:  cfg.EngineHealthTimeout,
		Logger:         &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure engine client")
	}

	app := handlers.NewApp(
		repo.NewCharacterRepository(pool),
		repo.NewReferenceImageRepository(pool),
		repo.NewReferenceJobRepository(pool),
		store,
		engineClient,
		logger,
	)
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, logger, cfg.CORSOrigins))

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("api: listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown failed")
	}
	logger.Info().Msg("api: stopped")
}
