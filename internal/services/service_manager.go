package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/quiz-grading-service/internal/events"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-grading-service/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	// ExpiryGrace is how long past its deadline an attempt may stay in
	// progress before the sweeper expires it
	ExpiryGrace time.Duration

	// CacheEnabled and EventsBackend describe the optional collaborators
	// wired in main
	CacheEnabled  bool
	EventsBackend string

	GradingOptions []GradingOption
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	config    ServiceManagerConfig

	// Service instances
	availabilityService AvailabilityService
	attemptService      AttemptService
	gradingService      GradingService
	resultService       ResultService
	exportService       ExportService

	handles []ServiceHandle

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager. A nil publisher disables
// domain events.
func NewServiceManager(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		config:    config,
	}
}

// Initialize composes all services. Optional collaborators are checked here
// once and recorded as handles.
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}
	if sm.repo == nil {
		return fmt.Errorf("repository is required")
	}

	sm.logger.Info("Initializing service manager")

	sm.handles = sm.resolveHandles()
	for _, h := range sm.handles {
		if h.Available {
			sm.logger.Info("Service handle available", "name", h.Name)
		} else {
			sm.logger.Warn("Service handle unavailable", "name", h.Name, "reason", h.Reason)
		}
	}

	publisher := sm.publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	engine := NewGradingEngine(sm.config.GradingOptions...)

	sm.availabilityService = NewAvailabilityService(sm.repo, sm.logger)
	sm.gradingService = NewGradingService(sm.repo, engine, publisher, sm.logger)
	sm.attemptService = NewAttemptService(sm.repo, sm.gradingService, publisher, sm.logger, sm.validator, sm.config.ExpiryGrace)
	sm.resultService = NewResultService(sm.repo, sm.logger)
	sm.exportService = NewExportService(sm.repo, sm.repo.User(), sm.logger)

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

func (sm *serviceManager) resolveHandles() []ServiceHandle {
	identity := ServiceHandle{Name: "identity", Available: sm.repo.User() != nil}
	if !identity.Available {
		identity.Reason = "casdoor is not configured; exports omit student names"
	}

	cache := ServiceHandle{Name: "cache", Available: sm.config.CacheEnabled}
	if !cache.Available {
		cache.Reason = "redis is not configured; definitions are read from the database"
	}

	eventsHandle := ServiceHandle{Name: "events", Available: sm.publisher != nil}
	if eventsHandle.Available && sm.config.EventsBackend != "" {
		eventsHandle.Reason = sm.config.EventsBackend
	}
	if !eventsHandle.Available {
		eventsHandle.Reason = "no event publisher; domain events are dropped"
	}

	return []ServiceHandle{identity, cache, eventsHandle}
}

// Service getters
func (sm *serviceManager) Availability() AvailabilityService {
	sm.mustBeInitialized()
	return sm.availabilityService
}

func (sm *serviceManager) Attempt() AttemptService {
	sm.mustBeInitialized()
	return sm.attemptService
}

func (sm *serviceManager) Grading() GradingService {
	sm.mustBeInitialized()
	return sm.gradingService
}

func (sm *serviceManager) Result() ResultService {
	sm.mustBeInitialized()
	return sm.resultService
}

func (sm *serviceManager) Export() ExportService {
	sm.mustBeInitialized()
	return sm.exportService
}

func (sm *serviceManager) Handles() []ServiceHandle {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]ServiceHandle, len(sm.handles))
	copy(out, sm.handles)
	return out
}

func (sm *serviceManager) mustBeInitialized() {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}
	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}
	sm.shutdown = true

	sm.logger.Info("Shutting down service manager")

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			return fmt.Errorf("failed to close event publisher: %w", err)
		}
	}
	return nil
}
