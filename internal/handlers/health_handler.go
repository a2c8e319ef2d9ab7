package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-grading-service/internal/services"
)

const serviceName = "quiz-grading-service"

type HealthHandler struct {
	services services.ServiceManager
}

func NewHealthHandler(serviceManager services.ServiceManager) *HealthHandler {
	return &HealthHandler{services: serviceManager}
}

// Health reports storage health and the optional collaborators in use
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"handles":   h.services.Handles(),
	}

	if err := h.services.HealthCheck(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["error"] = err.Error()
	}

	c.JSON(status, body)
}
