package handlers

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-grading-service/internal/config"
	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/quiz-grading-service/internal/utils"
)

// tokenParser is the part of the Casdoor client used to verify tokens
type tokenParser interface {
	ParseJwtToken(token string) (*casdoorsdk.Claims, error)
}

// CasdoorAuthMiddleware provides authentication using Casdoor SDK
type CasdoorAuthMiddleware struct {
	parser   tokenParser
	userRepo repositories.UserRepository
	logger   utils.Logger
}

// NewCasdoorAuthMiddleware creates a new Casdoor authentication middleware.
// userRepo may be nil, users are then built from the token claims alone.
func NewCasdoorAuthMiddleware(cfg config.CasdoorConfig, userRepo repositories.UserRepository, logger utils.Logger) *CasdoorAuthMiddleware {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Organization,
		cfg.Application,
	)
	return newCasdoorAuthMiddleware(client, userRepo, logger)
}

func newCasdoorAuthMiddleware(parser tokenParser, userRepo repositories.UserRepository, logger utils.Logger) *CasdoorAuthMiddleware {
	return &CasdoorAuthMiddleware{
		parser:   parser,
		userRepo: userRepo,
		logger:   logger,
	}
}

// AuthMiddleware returns a Gin middleware function for Casdoor authentication
func (cam *CasdoorAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}

		claims, err := cam.parser.ParseJwtToken(token)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		user, err := cam.extractUserFromClaims(c.Request.Context(), claims)
		if err != nil {
			abortUnauthorized(c, fmt.Sprintf("failed to extract user info: %v", err))
			return
		}

		c.Set("user_id", user.ID)
		c.Set("user", user)
		c.Set("user_role", user.Role)
		c.Set("user_email", user.Email)

		c.Next()
	}
}

// RequireRoleMiddleware checks if user has required role. Admins pass every check.
func (cam *CasdoorAuthMiddleware) RequireRoleMiddleware(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := GetUserRoleFromContext(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": err.Error(),
			})
			return
		}

		if role != models.RoleAdmin && !slices.Contains(requiredRoles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": fmt.Sprintf("insufficient permissions, required role: %v", requiredRoles),
			})
			return
		}

		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("authorization header missing")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", fmt.Errorf("invalid authorization header format")
	}
	return parts[1], nil
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "unauthorized",
		"message": message,
	})
}

// extractUserFromClaims prefers the directory record and falls back to the
// claims when the directory is unavailable.
func (cam *CasdoorAuthMiddleware) extractUserFromClaims(ctx context.Context, claims *casdoorsdk.Claims) (*models.User, error) {
	if claims == nil || claims.User.Id == "" {
		return nil, fmt.Errorf("invalid user ID in token")
	}

	if cam.userRepo != nil {
		user, err := cam.userRepo.GetByID(ctx, claims.User.Id)
		if err == nil {
			return user, nil
		}
		cam.logger.Debug("Falling back to token claims", "user_id", claims.User.Id, "error", err)
	}

	return casdoor.ConvertUser(&claims.User), nil
}

// GetUserFromContext extracts user from Gin context
func GetUserFromContext(c *gin.Context) (*models.User, error) {
	user, exists := c.Get("user")
	if !exists {
		return nil, fmt.Errorf("user not found in context")
	}

	userModel, ok := user.(*models.User)
	if !ok {
		return nil, fmt.Errorf("invalid user type in context")
	}

	return userModel, nil
}

// GetUserIDFromContext extracts user ID from Gin context
func GetUserIDFromContext(c *gin.Context) (string, error) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", fmt.Errorf("user ID not found in context")
	}

	id, ok := userID.(string)
	if !ok {
		return "", fmt.Errorf("invalid user ID type in context")
	}

	return id, nil
}

// GetUserRoleFromContext extracts user role from Gin context
func GetUserRoleFromContext(c *gin.Context) (models.UserRole, error) {
	userRole, exists := c.Get("user_role")
	if !exists {
		return "", fmt.Errorf("user role not found in context")
	}

	role, ok := userRole.(models.UserRole)
	if !ok {
		return "", fmt.Errorf("invalid user role type in context")
	}

	return role, nil
}
