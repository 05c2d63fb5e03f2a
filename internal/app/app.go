package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scholarr/plagiarism-service/internal/config"
	"github.com/scholarr/plagiarism-service/internal/database"
	"github.com/scholarr/plagiarism-service/internal/delivery/httpd"
	"github.com/scholarr/plagiarism-service/internal/metrics"
	"github.com/scholarr/plagiarism-service/internal/repository"
	"github.com/scholarr/plagiarism-service/internal/service"
	"github.com/scholarr/plagiarism-service/internal/service/storage"
	"github.com/scholarr/plagiarism-service/internal/service/textproc"
	"github.com/scholarr/plagiarism-service/internal/worker"
	"github.com/scholarr/plagiarism-service/internal/worker/queue"
)

type App struct {
	server           *http.Server
	logger           zerolog.Logger
	config           *config.Config
	db               *sql.DB
	plagiarismWorker worker.PlagiarismWorker
	rabbitMQRepo     repository.RabbitMQRepository
	redisClient      *redis.Client
	cancel           context.CancelFunc
}

func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	rabbitMQRepo, err := repository.NewRabbitMQRepository(cfg.RabbitMQ.URL, log)
	if err != nil {
		return nil, err
	}

	if err := rabbitMQRepo.SetupQueue(
		cfg.RabbitMQ.Exchange,
		cfg.RabbitMQ.QueueName,
		cfg.RabbitMQ.AttachmentLinkedKey,
		cfg.RabbitMQ.SubmissionDeletedKey,
	); err != nil {
		rabbitMQRepo.Close()
		return nil, err
	}

	artifactStore, err := newArtifactStore(cfg.Storage, log)
	if err != nil {
		rabbitMQRepo.Close()
		return nil, err
	}

	var (
		redisClient *redis.Client
		statusRepo  repository.StatusRepository
	)
	if cfg.Redis.Enabled {
		redisClient, err = database.NewRedis(cfg.Redis)
		if err != nil {
			rabbitMQRepo.Close()
			return nil, err
		}
		statusRepo = repository.NewStatusRepository(redisClient, cfg.Redis.StatusTTL, log)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Pipeline status tracking enabled")
	}

	m := metrics.New()

	rabbitMQPublisher := queue.NewRabbitMQPublisher(rabbitMQRepo.Channel(), log)
	rabbitMQConsumer := queue.NewRabbitMQConsumer(
		rabbitMQRepo.Channel(),
		cfg.RabbitMQ.QueueName,
		cfg.RabbitMQ.ConsumerTag,
		cfg.RabbitMQ.PrefetchCount,
		log,
	)

	submissionRepo := repository.NewSubmissionRepository(db, log)
	plagiarismRepo := repository.NewPlagiarismRepository(db, log)

	extractor := textproc.NewExtractor(
		textproc.NewPandocConverter(cfg.Extractor.PandocPath),
		log,
		textproc.ExtractorConfig{
			MediaRoot: cfg.Extractor.MediaRoot,
			Timeout:   cfg.Extractor.Timeout,
		},
	)

	plagiarismService := service.NewPlagiarismService(
		submissionRepo,
		plagiarismRepo,
		extractor,
		storage.NewModelStore(artifactStore),
		rabbitMQPublisher,
		statusRepo,
		m,
		log,
		service.PlagiarismConfig{
			NgramOrder:       cfg.Analysis.NgramOrder,
			MaxComparisons:   cfg.Analysis.MaxComparisons,
			MissingArtifacts: cfg.Analysis.MissingArtifacts,
			Timeout:          cfg.Analysis.Timeout,
		},
		service.EventsConfig{
			Exchange:            cfg.RabbitMQ.Exchange,
			AttachmentLinkedKey: cfg.RabbitMQ.AttachmentLinkedKey,
			CompletedKey:        cfg.RabbitMQ.PlagiarismCompletedKey,
			FailedKey:           cfg.RabbitMQ.PlagiarismFailedKey,
		},
	)

	reportService := service.NewReportService(plagiarismRepo, statusRepo, log)

	workerPool := worker.NewWorkerPool(cfg.Analysis.MaxWorkers, m, log)

	plagiarismWorker := worker.NewPlagiarismWorker(
		workerPool,
		rabbitMQConsumer,
		plagiarismService,
		m,
		worker.RoutingKeys{
			AttachmentLinked:  cfg.RabbitMQ.AttachmentLinkedKey,
			SubmissionDeleted: cfg.RabbitMQ.SubmissionDeletedKey,
		},
		log,
	)

	handler := httpd.NewHandler(
		plagiarismService,
		reportService,
		plagiarismWorker,
		rabbitMQRepo,
		httpd.NewRateLimiter(cfg.Server.TriggerRPS, cfg.Server.TriggerBurst),
		m,
		log,
	)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		server:           server,
		logger:           log,
		config:           cfg,
		db:               db,
		plagiarismWorker: plagiarismWorker,
		rabbitMQRepo:     rabbitMQRepo,
		redisClient:      redisClient,
	}, nil
}


func newArtifactStore(cfg config.StorageConfig, log zerolog.Logger) (storage.ArtifactStore, error) {
	switch cfg.Provider {
	case "filesystem":
		return storage.NewFileStore(cfg.Filesystem.Dir, cfg.Filesystem.Extension, log)
	case "minio":
		return storage.NewMinIOStore(storage.MinIOConfig{
			Endpoint:       cfg.MinIO.Endpoint,
			AccessKey:      cfg.MinIO.AccessKey,
			SecretKey:      cfg.MinIO.SecretKey,
			Bucket:         cfg.MinIO.Bucket,
			Region:         cfg.MinIO.Region,
			Prefix:         cfg.MinIO.Prefix,
			Extension:      cfg.Filesystem.Extension,
			UseSSL:         cfg.MinIO.UseSSL,
			ConnectTimeout: cfg.MinIO.ConnectTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}

func (a *App) startWorker() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.plagiarismWorker.Start(ctx); err != nil {
		cancel()
		a.logger.Error().Err(err).Msg("Failed to start plagiarism worker")
		return err
	}
	return nil
}

// Run starts the queue worker and serves HTTP until Shutdown.
func (a *App) Run() error {
	if err := a.startWorker(); err != nil {
		return err
	}

	a.logger.Info().Msgf("Starting plagiarism service on %s", a.config.Server.Address)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunWorker consumes events without serving HTTP and blocks until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	if err := a.startWorker(); err != nil {
		return err
	}

	a.logger.Info().Msg("Standalone plagiarism worker running")
	<-ctx.Done()
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down plagiarism service...")

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
	}

	// Stop drains in-flight pipelines before their context is cancelled.
	if err := a.plagiarismWorker.Stop(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to stop plagiarism worker")
	}
	if a.cancel != nil {
		a.cancel()
	}

	if a.rabbitMQRepo != nil {
		if err := a.rabbitMQRepo.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close Redis connection")
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	a.logger.Info().Msg("Plagiarism service stopped")
	return nil
}
