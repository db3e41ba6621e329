package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/SamoM225/the-bible-translations/internal/api"
	"github.com/SamoM225/the-bible-translations/internal/config"
	"github.com/SamoM225/the-bible-translations/internal/pipeline"
	"github.com/SamoM225/the-bible-translations/internal/service/ai"
	"github.com/SamoM225/the-bible-translations/internal/service/cache"
	"github.com/SamoM225/the-bible-translations/internal/service/database"
	"github.com/SamoM225/the-bible-translations/internal/service/langdir"
	"github.com/SamoM225/the-bible-translations/internal/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Translation pipeline starting",
		zap.String("source_language", cfg.Pipeline.SourceLanguage),
		zap.Int("batch_size", cfg.Pipeline.BatchSize),
	)

	postgres, err := database.NewPostgresService(database.PostgresConfig{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		Database:        cfg.Postgres.Database,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Error("Failed to connect to postgres", zap.Error(err))
		os.Exit(1)
	}
	defer postgres.Close()

	store := database.NewTranslationStore(postgres, logger)

	// Redis is optional: language lookups fall back to the store.
	var cacheSvc *cache.CacheService
	if svc, cacheErr := cache.NewCacheService(cache.CacheConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger); cacheErr != nil {
		logger.Warn("Redis unavailable, running without the language cache", zap.Error(cacheErr))
	} else {
		cacheSvc = svc
		defer cacheSvc.Close()
	}

	buildCtx, buildCancel := context.WithTimeout(context.Background(), 30*time.Second)
	engine, err := ai.NewEngineManager(buildCtx, ai.EngineConfig{
		GeminiAPIKey:       cfg.Gemini.APIKey,
		DefaultGeminiModel: cfg.Gemini.Model,
		OpenAIAPIKey:       cfg.OpenAI.APIKey,
		DefaultOpenAIModel: cfg.OpenAI.Model,
		EnableFallback:     cfg.OpenAI.EnableFallback,
	}, logger)
	buildCancel()
	if err != nil {
		logger.Error("Failed to create engine manager", zap.Error(err))
		os.Exit(1)
	}

	var langCache langdir.Cache
	if cacheSvc != nil {
		langCache = cacheSvc
	}
	languages := langdir.New(store, langCache, cfg.Pipeline.SourceLanguage, logger)

	classifier := pipeline.NewClassifier(
		cfg.Review.SensitiveTerms,
		cfg.Review.JustificationPhrases,
		cfg.Review.WarningPhrases,
	)
	requester := pipeline.NewRequester(engine, pipeline.RetryPolicy{
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		BaseDelay:      cfg.Pipeline.BaseDelay,
		RateLimitDelay: cfg.Pipeline.RateLimitDelay,
	}, logger)
	reconciler := pipeline.NewReconciler(store, classifier, logger)
	orchestrator := pipeline.NewOrchestrator(store, languages, requester, reconciler, store, pipeline.Options{
		BatchSize:     cfg.Pipeline.BatchSize,
		BatchDelay:    cfg.Pipeline.BatchDelay,
		LanguageDelay: cfg.Pipeline.LanguageDelay,
		JobBudget:     cfg.Pipeline.JobBudget,
	}, logger)

	handlers := api.NewHandlers(orchestrator, languages, logger)
	server := api.NewServer(cfg.HTTP.Addr, handlers, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("Server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
