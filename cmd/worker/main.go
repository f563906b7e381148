package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"editserver/internal/adapter/repo"
	"editserver/internal/cache"
	"editserver/internal/infra"
	"editserver/internal/pipeline"
	"editserver/internal/providers/flux"
	"editserver/internal/providers/prompt"
	"editserver/internal/queue"
	"editserver/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer rdb.Close()

	runner := infra.NewSQLRunner(pool, logger)
	editRepo := repo.NewEditRepository(runner)
	readCache := cache.New(rdb, cfg.AppEnv, logger)
	jobs := queue.New(rdb, cfg.AppEnv)

	fileStore, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	editor, err := flux.NewClient(flux.Options{
		APIURL:     cfg.FluxAPIURL,
		APIKey:     cfg.BFLAPIKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure flux client")
	}

	processor, err := pipeline.NewProcessor(pipeline.Options{
		Store:    editRepo,
		Cache:    readCache,
		Fetcher:  newFetcher(fileStore),
		Uploads:  fileStore,
		Editor:   editor,
		Enhancer: newEnhancer(cfg, logger),
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure pipeline")
	}

	consumer := queue.NewConsumer(jobs, processor.Process, cfg.JobSoftTimeLimit, cfg.JobHardTimeLimit, logger)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// newFetcher resolves locally stored originals from disk and everything else
// over HTTP, so follow-up edits on our own results never loop through the
// public media endpoint.
func newFetcher(fileStore *storage.FileStore) storage.Fetcher {
	return storage.NewFallbackFetcher(fileStore, storage.NewHTTPFetcher(nil))
}

// newEnhancer picks the prompt provider from configuration. Enhancement is
// optional: a disabled flag or missing key means edits run with the user's
// prompt as written.
func newEnhancer(cfg *infra.Config, logger infra.Logger) prompt.Enhancer {
	if !cfg.EnhancementActive {
		logger.Info().Msg("worker: prompt enhancement disabled")
		return nil
	}
	switch strings.ToLower(cfg.PromptProvider) {
	case "openai":
		enhancer, err := prompt.NewOpenAIEnhancer(prompt.OpenAIOptions{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("worker: openai enhancer unavailable, enhancement off")
			return nil
		}
		return enhancer
	default:
		enhancer, err := prompt.NewGeminiEnhancer(prompt.GeminiOptions{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("worker: gemini enhancer unavailable, enhancement off")
			return nil
		}
		return enhancer
	}
}
