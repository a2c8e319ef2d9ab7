package repositories

import "context"

// Repository groups the stores the attempt lifecycle works against.
type Repository interface {
	// Definitions (read-only for grading)
	Test() TestRepository
	Question() QuestionRepository

	// Attempt lifecycle
	Attempt() AttemptRepository
	Result() ResultRepository

	// User directory (identity provider, optional)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize repositories with database connections
	Initialize() error

	// Get repository instance
	GetRepository() Repository

	// Health check for all repositories
	HealthCheck(ctx context.Context) error

	// Graceful shutdown
	Shutdown(ctx context.Context) error
}
