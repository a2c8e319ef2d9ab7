package repositories

import (
	"context"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
)

// UserRepository resolves users from the identity provider (read-only)
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
}
