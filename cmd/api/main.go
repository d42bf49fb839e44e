package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"heirloom/internal/adapter/repo"
	"heirloom/internal/domain"
	"heirloom/internal/events"
	httpapi "heirloom/internal/http"
	"heirloom/internal/http/handlers"
	"heirloom/internal/infra"
	"heirloom/internal/infra/credentials"
	"heirloom/internal/infra/geoip"
	"heirloom/internal/jobs"
	"heirloom/internal/providers/gemini"
	"heirloom/internal/providers/openrouter"
	"heirloom/internal/restoration"
	"heirloom/internal/storage"
)

const reapInterval = time.Minute

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Job store: Postgres when configured, otherwise in memory.
	var jobRepo domain.JobRepository
	if cfg.DatabaseURL != "" {
		if err := infra.Migrate(ctx, cfg.DatabaseURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("database migration failed")
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()

		runner := infra.NewSQLRunner(pool, logger)
		if err := credentials.NewStore(runner).FillMissing(ctx, cfg); err != nil {
			logger.Warn().Err(err).Msg("could not load stored provider credentials")
		}
		jobRepo = repo.NewJobRepository(runner)
	} else {
		logger.Warn().Msg("DATABASE_URL not set; restoration jobs are kept in memory")
		jobRepo = repo.NewMemoryJobRepository()
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise blob storage")
	}

	var publisher domain.EventPublisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka publisher")
		}
		defer kp.Close()
		publisher = kp
	}

	manager, err := jobs.NewManager(jobs.Options{
		Repo:   jobRepo,
		Blobs:  blobs,
		Events: publisher,
		Logger: &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create job manager")
	}

	primary := openrouter.NewClient(openrouter.Options{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Model:   cfg.OpenRouterModel,
		Referer: cfg.OpenRouterReferer,
		Title:   cfg.OpenRouterTitle,
		Timeout: cfg.ProviderTimeout,
		Logger:  &logger,
	})
	fallback := gemini.NewClient(gemini.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Timeout: cfg.ProviderTimeout,
		Logger:  &logger,
	})
	if !cfg.HasProviderKey() {
		logger.Warn().Msg("no provider API key configured; uploads need a caller api_key")
	}

	policy := restoration.NewPolicy(primary, cfg.OpenRouterAPIKey, fallback, cfg.GeminiAPIKey)
	orchestrator := restoration.NewOrchestrator(policy, manager, blobs, &logger)
	pipeline, err := restoration.NewPipeline(restoration.PipelineOptions{
		Jobs:         manager,
		Orchestrator: orchestrator,
		Async:        cfg.RestoreAsync,
		Logger:       &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create restoration pipeline")
	}

	countries, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	routerOpts := httpapi.RouterOptions{
		CORSOrigins:      cfg.CORSOrigins,
		UploadsPerMinute: cfg.RateLimitPerMin,
		Logger:           logger,
	}
	if countries != nil {
		defer countries.Close()
		routerOpts.Countries = countries
	}

	app := handlers.NewApp(pipeline, manager, blobs, &logger)
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, routerOpts))

	go reapStaleJobs(ctx, manager, cfg.StaleJobAge, &logger)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Bool("async", cfg.RestoreAsync).
			Str("storage", cfg.StorageBackend).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ProviderTimeout+10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	pipeline.Wait()
	logger.Info().Msg("server stopped")
}

func newBlobStore(ctx context.Context, cfg *infra.Config) (domain.BlobStore, error) {
	if cfg.StorageBackend == infra.StorageMinIO {
		return storage.NewMinIOStore(ctx, storage.MinIOOptions{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.MinIORegion,
		})
	}
	return storage.NewFileStore(cfg.StoragePath)
}

// reapStaleJobs fails jobs left in processing by a crash or restart.
func reapStaleJobs(ctx context.Context, manager *jobs.Manager, age time.Duration, logger *infra.Logger) {
	if age <= 0 {
		return
	}
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := manager.FailStale(ctx, age)
			if err != nil {
				logger.Error().Err(err).Msg("stale job sweep failed")
				continue
			}
			if n > 0 {
				logger.Warn().Int("jobs", n).Msg("failed stale restoration jobs")
			}
		}
	}
}
