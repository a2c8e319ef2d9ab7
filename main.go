package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/quiz-grading-service/internal/config"
	"github.com/SAP-F-2025/quiz-grading-service/internal/events"
	"github.com/SAP-F-2025/quiz-grading-service/internal/handlers"
	"github.com/SAP-F-2025/quiz-grading-service/internal/jobs"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/quiz-grading-service/internal/services"
	"github.com/SAP-F-2025/quiz-grading-service/internal/utils"
	"github.com/SAP-F-2025/quiz-grading-service/internal/validator"
	"github.com/SAP-F-2025/quiz-grading-service/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(slogLogger)
	logger := utils.NewSlogLogger(slogLogger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Redis is optional; without it reads go straight to the database
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, running without cache", "error", err)
			redisClient = nil
		}
	}

	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
		CasdoorConfig: casdoor.CasdoorConfig{
			Endpoint:         cfg.Casdoor.Endpoint,
			ClientID:         cfg.Casdoor.ClientID,
			ClientSecret:     cfg.Casdoor.ClientSecret,
			Certificate:      cfg.Casdoor.Cert,
			OrganizationName: cfg.Casdoor.Organization,
			ApplicationName:  cfg.Casdoor.Application,
		},
	})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}
	repo := repoManager.GetRepository()

	publisher, eventsBackend, err := newEventPublisher(cfg, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}

	serviceManager := services.NewServiceManager(repo, publisher, slogLogger, validator.New(), services.ServiceManagerConfig{
		ExpiryGrace:   cfg.Scheduler.ExpiryGrace,
		CacheEnabled:  redisClient != nil,
		EventsBackend: eventsBackend,
	})
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	var scheduler *jobs.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = jobs.NewScheduler(serviceManager.Attempt(), serviceManager.Grading(), jobs.Config{
			ExpireSpec:       cfg.Scheduler.ExpireSpec,
			GradePendingSpec: cfg.Scheduler.GradePendingSpec,
			BatchSize:        cfg.Scheduler.BatchSize,
		}, slogLogger)
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger, cfg.CORSAllowedOrigins)

	authMiddleware := handlers.NewCasdoorAuthMiddleware(cfg.Casdoor, repo.User(), logger)
	handlers.NewHandlerManager(serviceManager, logger, authMiddleware).SetupRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment, "events", eventsBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	if scheduler != nil {
		scheduler.Stop(ctx)
	}

	if err := serviceManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown services", "error", err)
	}

	// closes the database and redis
	if err := repoManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to close repositories", "error", err)
	}

	logger.Info("Server exited")
}

// newEventPublisher publishes to kafka when brokers are configured and to an
// in-process channel otherwise.
func newEventPublisher(cfg *config.Config, logger *slog.Logger) (events.EventPublisher, string, error) {
	if cfg.Kafka.Enabled() {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, logger)
		if err != nil {
			return nil, "", err
		}
		return publisher, "kafka", nil
	}

	publisher, _ := events.NewInMemoryPublisher(cfg.Kafka.TopicPrefix, logger)
	return publisher, "in-memory", nil
}
