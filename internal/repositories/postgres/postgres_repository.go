package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/quiz-grading-service/internal/cache"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories/casdoor"
)

// PostgreSQLRepository implements the main Repository interface
type PostgreSQLRepository struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	test     repositories.TestRepository
	question repositories.QuestionRepository
	attempt  repositories.AttemptRepository
	result   repositories.ResultRepository
	user     repositories.UserRepository

	// set on repositories bound to a transaction
	hooks *commitHooks
}

// commitHooks holds work, such as cache invalidation, that must only run once
// the surrounding transaction has committed. A nil *commitHooks runs work
// immediately.
type commitHooks struct {
	fns []func()
}

func (h *commitHooks) add(fn func()) {
	if h == nil {
		fn()
		return
	}
	h.fns = append(h.fns, fn)
}

func (h *commitHooks) run() {
	for _, fn := range h.fns {
		fn()
	}
}

// RepositoryConfig holds configuration for repository initialization
type RepositoryConfig struct {
	DB            *gorm.DB
	RedisClient   *redis.Client
	CasdoorConfig casdoor.CasdoorConfig

	// UserRepository overrides the Casdoor-backed directory when set
	UserRepository repositories.UserRepository
}

// NewPostgreSQLRepository creates a new repository with all sub-repositories
func NewPostgreSQLRepository(config RepositoryConfig) repositories.Repository {
	cacheManager := cache.NewCacheManager(config.RedisClient)

	repo := newRepositoryOn(config.DB, config.RedisClient, cacheManager, nil)

	switch {
	case config.UserRepository != nil:
		repo.user = config.UserRepository
	case config.CasdoorConfig.Configured():
		repo.user = casdoor.NewUserCasdoor(config.CasdoorConfig, cacheManager)
	}

	return repo
}

func newRepositoryOn(db *gorm.DB, redisClient *redis.Client, cacheManager *cache.CacheManager, hooks *commitHooks) *PostgreSQLRepository {
	return &PostgreSQLRepository{
		db:           db,
		redisClient:  redisClient,
		cacheManager: cacheManager,
		test:         newTestPostgreSQL(db, cacheManager, hooks),
		question:     newQuestionPostgreSQL(db, cacheManager, hooks),
		attempt:      NewAttemptPostgreSQL(db),
		result:       newResultPostgreSQL(db, cacheManager, hooks),
		hooks:        hooks,
	}
}

func (r *PostgreSQLRepository) Test() repositories.TestRepository {
	return r.test
}

func (r *PostgreSQLRepository) Question() repositories.QuestionRepository {
	return r.question
}

func (r *PostgreSQLRepository) Attempt() repositories.AttemptRepository {
	return r.attempt
}

func (r *PostgreSQLRepository) Result() repositories.ResultRepository {
	return r.result
}

// User returns the user directory, nil when no identity provider is configured
func (r *PostgreSQLRepository) User() repositories.UserRepository {
	return r.user
}

// WithTransaction executes a function within a database transaction. Cache
// invalidations queued by the callback run after the outermost commit and
// are dropped on rollback.
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	hooks := r.hooks
	outermost := hooks == nil
	if outermost {
		hooks = &commitHooks{}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := newRepositoryOn(tx, r.redisClient, r.cacheManager, hooks)

		// User repository doesn't need transaction (it's external)
		txRepo.user = r.user

		return fn(txRepo)
	})
	if err != nil {
		return err
	}

	if outermost {
		hooks.run()
	}
	return nil
}

// Ping checks the health of database and cache connections
func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if r.redisClient != nil {
		if err := r.cacheManager.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache ping failed: %w", err)
		}
	}

	return nil
}

// Close closes all connections
func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			return fmt.Errorf("failed to close Redis: %w", err)
		}
	}

	return nil
}

// RepositoryManager implements the RepositoryManager interface
type RepositoryManager struct {
	config RepositoryConfig
	repo   repositories.Repository
}

// NewRepositoryManager creates a new repository manager
func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	return &RepositoryManager{
		config: config,
	}
}

// Initialize initializes all repositories and connections
func (rm *RepositoryManager) Initialize() error {
	if rm.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}

	sqlDB, err := rm.config.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if rm.config.RedisClient != nil {
		if _, err := rm.config.RedisClient.Ping(ctx).Result(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
	}

	rm.repo = NewPostgreSQLRepository(rm.config)

	return nil
}

// GetRepository returns the repository instance
func (rm *RepositoryManager) GetRepository() repositories.Repository {
	return rm.repo
}

// HealthCheck checks the health of all repository connections
func (rm *RepositoryManager) HealthCheck(ctx context.Context) error {
	if rm.repo == nil {
		return fmt.Errorf("repository not initialized")
	}

	return rm.repo.Ping(ctx)
}

// Shutdown gracefully shuts down all repository connections
func (rm *RepositoryManager) Shutdown(ctx context.Context) error {
	if rm.repo == nil {
		return nil
	}

	return rm.repo.Close()
}
