package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/services"
	"github.com/SAP-F-2025/quiz-grading-service/internal/utils"
	"github.com/SAP-F-2025/quiz-grading-service/internal/validator"
)

type ErrorResponse struct {
	Error     string      `json:"error"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Path      string      `json:"path"`
}

type SuccessResponse struct {
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// BaseHandler carries what every handler needs: logging and error mapping
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	args = append(args, "method", c.Request.Method, "path", c.FullPath())
	utils.FromContext(c, h.logger).Debug(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	args = append(args, "error", err, "method", c.Request.Method, "path", c.FullPath())
	utils.FromContext(c, h.logger).Error(msg, args...)
}

func (h *BaseHandler) respondError(c *gin.Context, status int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		Path:      c.Request.URL.Path,
	})
}

// currentUser returns the authenticated user id and role set by the auth
// middleware. It writes a 401 and returns false when they are missing.
func (h *BaseHandler) currentUser(c *gin.Context) (string, models.UserRole, bool) {
	userID, err := GetUserIDFromContext(c)
	if err != nil || userID == "" {
		h.respondError(c, http.StatusUnauthorized, "unauthorized", "User not authenticated", nil)
		return "", "", false
	}
	role, err := GetUserRoleFromContext(c)
	if err != nil {
		role = models.RoleStudent
	}
	return userID, role, true
}

func (h *BaseHandler) bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.respondError(c, http.StatusBadRequest, "bad_request", "Invalid request payload", err.Error())
		return false
	}
	return true
}

// queryInt reads an optional integer query parameter
func (h *BaseHandler) queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "bad_request", "Invalid query parameter", gin.H{name: raw})
		return 0, false
	}
	return value, true
}

// handleServiceError maps service errors to HTTP responses
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		h.respondError(c, http.StatusBadRequest, "validation_failed", "Validation failed", validationErrors)
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		h.respondError(c, http.StatusForbidden, "forbidden", "Access denied", gin.H{
			"resource": permissionError.Resource,
			"action":   permissionError.Action,
			"reason":   permissionError.Reason,
		})
		return
	}

	var transitionError *services.StateTransitionError
	if errors.As(err, &transitionError) {
		h.respondError(c, http.StatusConflict, transitionCode(transitionError), transitionError.Error(), gin.H{
			"operation": transitionError.Operation,
			"status":    transitionError.Status,
			"reason":    transitionError.Reason,
		})
		return
	}

	switch {
	case errors.Is(err, validator.ErrValidationFailed):
		h.respondError(c, http.StatusBadRequest, "validation_failed", "Validation failed", err.Error())
	case errors.Is(err, services.ErrUnauthorized):
		h.respondError(c, http.StatusForbidden, "forbidden", "Access denied", nil)
	case errors.Is(err, services.ErrAttemptNotFound):
		h.respondError(c, http.StatusNotFound, "not_found", "Attempt not found", nil)
	case errors.Is(err, services.ErrTestNotFound):
		h.respondError(c, http.StatusNotFound, "not_found", "Test not found", nil)
	case errors.Is(err, services.ErrResultNotFound):
		h.respondError(c, http.StatusNotFound, "not_found", "Result not found", nil)
	case errors.Is(err, services.ErrNotFound):
		h.respondError(c, http.StatusNotFound, "not_found", "Resource not found", nil)
	case errors.Is(err, services.ErrStorageUnavailable):
		h.LogError(c, err, "Storage unavailable")
		h.respondError(c, http.StatusServiceUnavailable, "storage_unavailable", "Storage temporarily unavailable, retry later", nil)
	case errors.Is(err, services.ErrGradingFailed):
		h.LogError(c, err, "Grading failed")
		h.respondError(c, http.StatusInternalServerError, "grading_failed", "Grading failed, the attempt stays pending", nil)
	default:
		h.LogError(c, err, "Unexpected service error")
		h.respondError(c, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
	}
}

func transitionCode(err *services.StateTransitionError) string {
	switch {
	case errors.Is(err, services.ErrAttemptInProgress):
		return "attempt_in_progress"
	case errors.Is(err, services.ErrAttemptsExhausted):
		return "attempts_exhausted"
	case errors.Is(err, services.ErrInvalidAccessCode):
		return "invalid_access_code"
	case errors.Is(err, services.ErrTestNotAvailable):
		return "test_not_available"
	case errors.Is(err, services.ErrAttemptNotActive):
		return "attempt_not_active"
	case errors.Is(err, services.ErrAttemptNotSubmitted):
		return "attempt_not_submitted"
	case errors.Is(err, services.ErrAttemptNotTimed):
		return "attempt_not_timed"
	default:
		return "invalid_state_transition"
	}
}
