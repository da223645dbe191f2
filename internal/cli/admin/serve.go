package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	openaiapi "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/api/handlers"
	"github.com/ragdesk/ragdesk/internal/api/middleware"
	"github.com/ragdesk/ragdesk/internal/config"
	"github.com/ragdesk/ragdesk/internal/database"
	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/jobs"
	"github.com/ragdesk/ragdesk/internal/openai"
	"github.com/ragdesk/ragdesk/internal/repository"
	"github.com/ragdesk/ragdesk/internal/server"
	"github.com/ragdesk/ragdesk/internal/service"
	"github.com/ragdesk/ragdesk/internal/storage"
	"github.com/ragdesk/ragdesk/internal/telemetry"
	"github.com/ragdesk/ragdesk/internal/watcher"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the ragdesk API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("RAGDESK_OPENAI_API_KEY is required")
	}

	modelClient := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      openaiapi.EmbeddingModel(cfg.EmbeddingModel),
		ChatModel:           cfg.ChatModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})

	chunkRepo := repository.NewChunkRepository(pool)
	feedbackRepo := repository.NewFeedbackRepository(pool)
	ingestJobRepo := repository.NewIngestJobRepository(pool)

	sessions := service.NewSessionCache(cfg.SessionCapacity, cfg.SessionTTL)
	retriever := service.NewHybridRetriever(chunkRepo)
	ingestSvc := service.NewIngestService(chunkRepo, modelClient, sessions, cfg.EmbeddingDimensions)
	catalogSvc := service.NewCatalogService(chunkRepo)
	promoter := service.NewFeedbackPromoter(chunkRepo, feedbackRepo, modelClient, sessions)

	buildAnswerer := func(p middleware.Principal) *service.Answerer {
		return service.NewAnswerer(modelClient, modelClient, retriever, service.AnswererConfig{
			Department:          p.Department,
			AccessLevels:        domain.LevelsUpTo(p.AccessLevel),
			MinSimilarity:       cfg.MinSimilarity,
			SimilarityThreshold: cfg.SimilarityThreshold,
			HybridAlpha:         cfg.HybridAlpha,
		})
	}

	var spool handlers.DocumentSpool = &unconfiguredSpool{}
	var ingestWorker *jobs.Worker
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		spool = s3Client

		ingestProcessor := jobs.NewIngestWorker(ingestJobRepo, s3Client, ingestSvc)
		ingestWorker = jobs.NewWorker("ingest", ingestProcessor, 10*time.Second)
		go ingestWorker.Start(ctx)
		log.Println("ingest worker started")
	}

	watcherCtx, stopWatcher := context.WithCancel(ctx)
	defer stopWatcher()
	var dropWatcher *watcher.DropWatcher
	if cfg.HasWatcher() {
		dropWatcher, err = watcher.NewDropWatcher(cfg.WatchDir, ingestSvc, nil)
		if err != nil {
			return fmt.Errorf("failed to start drop watcher: %w", err)
		}
		go dropWatcher.Start(watcherCtx)
	}

	routerCfg := server.RouterConfig{
		ChatHandler:     handlers.NewChatHandler(sessions, buildAnswerer),
		SearchHandler:   handlers.NewSearchHandler(modelClient, retriever),
		DocumentHandler: handlers.NewDocumentHandler(ingestSvc, catalogSvc, spool, ingestJobRepo),
		FeedbackHandler: handlers.NewFeedbackHandler(feedbackRepo, promoter),
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.NewRouter(routerCfg),
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if ingestWorker != nil {
		ingestWorker.Stop()
	}
	if dropWatcher != nil {
		stopWatcher()
		if err := dropWatcher.Stop(); err != nil {
			log.Printf("drop watcher stop: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// unconfiguredSpool rejects async uploads when no object storage is wired.
type unconfiguredSpool struct{}

func (*unconfiguredSpool) PutDocument(ctx context.Context, key, content string) error {
	return fmt.Errorf("object storage not configured: RAGDESK_S3_ENDPOINT required")
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && upErr != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	}

	if upErr == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
