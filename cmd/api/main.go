package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"editserver/internal/adapter/repo"
	"editserver/internal/cache"
	"editserver/internal/chain"
	"editserver/internal/edits"
	"editserver/internal/http/handlers"
	"editserver/internal/http/httpapi"
	"editserver/internal/infra"
	"editserver/internal/infra/geoip"
	"editserver/internal/queue"
	"editserver/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	runner := infra.NewSQLRunner(pool, logger)
	editRepo := repo.NewEditRepository(runner)
	feedbackRepo := repo.NewFeedbackRepository(runner)
	resolver := chain.NewResolver(editRepo, cfg.MaxChainLength)
	readCache := cache.New(rdb, cfg.AppEnv, logger)
	jobs := queue.New(rdb, cfg.AppEnv)

	fileStore, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	var geo geoip.CountryResolver
	if cfg.GeoIPDBPath != "" {
		geo, err = geoip.NewResolver(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("geoip database unavailable, feedback will be stored without country")
			geo = nil
		}
	}

	service := edits.NewService(editRepo, feedbackRepo, resolver, jobs, readCache, fileStore, geo, logger)
	app := handlers.NewApp(service, logger)

	router := httpapi.NewRouter(httpapi.Options{
		App:            app,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		SubmitPerDay:   cfg.SubmitLimitPerDay,
		StatusPerMin:   cfg.RateLimitPerMin,
		MediaDir:       cfg.StoragePath,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
