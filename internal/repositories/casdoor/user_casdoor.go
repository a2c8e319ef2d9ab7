package casdoor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"

	"github.com/SAP-F-2025/quiz-grading-service/internal/cache"
	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
)

// CasdoorConfig holds the configuration for Casdoor connection
type CasdoorConfig struct {
	Endpoint         string
	ClientID         string
	ClientSecret     string
	Certificate      string
	OrganizationName string
	ApplicationName  string
}

// Configured reports whether enough settings are present to reach Casdoor.
func (c CasdoorConfig) Configured() bool {
	return c.Endpoint != "" && c.ClientID != ""
}

// userDirectory is the part of the Casdoor client the repository uses.
type userDirectory interface {
	GetUserByUserId(userId string) (*casdoorsdk.User, error)
}

type UserCasdoor struct {
	client userDirectory
	cache  *cache.CacheHelper
}

func NewUserCasdoor(config CasdoorConfig, cacheManager *cache.CacheManager) repositories.UserRepository {
	client := casdoorsdk.NewClient(
		config.Endpoint,
		config.ClientID,
		config.ClientSecret,
		config.Certificate,
		config.OrganizationName,
		config.ApplicationName,
	)
	return newUserCasdoor(client, cacheManager)
}

func newUserCasdoor(client userDirectory, cacheManager *cache.CacheManager) *UserCasdoor {
	return &UserCasdoor{
		client: client,
		cache:  cacheManager.User,
	}
}

// ===== CONVERSION METHODS =====

// ConvertUser converts a Casdoor user to the internal model
func ConvertUser(casdoorUser *casdoorsdk.User) *models.User {
	if casdoorUser == nil {
		return nil
	}

	return &models.User{
		ID:            casdoorUser.Id,
		FullName:      casdoorUser.DisplayName,
		Email:         casdoorUser.Email,
		Role:          MapRoles(casdoorUser),
		EmailVerified: casdoorUser.EmailVerified,
	}
}

// MapRoles picks the primary role of a Casdoor user. Admin wins over
// everything; users without a known role are students.
func MapRoles(casdoorUser *casdoorsdk.User) models.UserRole {
	if casdoorUser == nil {
		return models.RoleStudent
	}

	var roles []models.UserRole
	for _, casdoorRole := range casdoorUser.Roles {
		if casdoorRole == nil {
			continue
		}
		mapped := MapRoleName(casdoorRole.Name)
		if !slices.Contains(roles, mapped) {
			roles = append(roles, mapped)
		}
	}

	if slices.Contains(roles, models.RoleAdmin) || casdoorUser.IsAdmin {
		return models.RoleAdmin
	}
	if slices.Contains(roles, models.RoleTeacher) {
		return models.RoleTeacher
	}
	return models.RoleStudent
}

// MapRoleName maps a single Casdoor role name
func MapRoleName(name string) models.UserRole {
	switch strings.ToLower(name) {
	case "teacher", "instructor":
		return models.RoleTeacher
	case "admin", "administrator":
		return models.RoleAdmin
	default:
		return models.RoleStudent
	}
}

// ===== READ OPERATIONS =====

// GetByID retrieves a user by ID
func (u *UserCasdoor) GetByID(ctx context.Context, id string) (*models.User, error) {
	cacheKey := fmt.Sprintf("id:%s", id)

	var cached models.User
	if err := u.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	}

	casdoorUser, err := u.client.GetUserByUserId(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user from Casdoor: %w", err)
	}
	if casdoorUser == nil {
		return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}

	user := ConvertUser(casdoorUser)
	if err := u.cache.Set(ctx, cacheKey, user, cache.UserCacheConfig.TTL); err != nil {
		slog.WarnContext(ctx, "Cache set error", "error", err, "user_id", id)
	}
	return user, nil
}

// GetByIDs retrieves multiple users. Users that cannot be resolved are
// skipped rather than failing the batch.
func (u *UserCasdoor) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	users := make([]*models.User, 0, len(ids))
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		user, err := u.GetByID(ctx, id)
		if err != nil {
			slog.DebugContext(ctx, "Skipping unresolved user", "user_id", id, "error", err)
			continue
		}
		users = append(users, user)
	}
	return users, nil
}
