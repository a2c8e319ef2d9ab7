package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-grading-service/internal/services"
	"github.com/SAP-F-2025/quiz-grading-service/internal/utils"
)

const defaultGradePendingLimit = 100

type GradingHandler struct {
	BaseHandler
	service services.GradingService
}

func NewGradingHandler(service services.GradingService, logger utils.Logger) *GradingHandler {
	return &GradingHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// GradeAttempt grades a submitted attempt. Attempts that already have a
// result return it unchanged.
// @Summary Grade attempt
// @Tags grading
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} models.TestResult
// @Router /grading/attempts/{id} [post]
func (h *GradingHandler) GradeAttempt(c *gin.Context) {
	attemptID := c.Param("id")
	h.LogRequest(c, "Grading attempt", "attempt_id", attemptID)

	result, err := h.service.GradeAttempt(c.Request.Context(), attemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GradePending grades submitted attempts that have no result yet
// @Summary Grade pending attempts
// @Tags grading
// @Produce json
// @Param limit query int false "Batch size (default: 100)"
// @Success 200 {object} services.GradePendingReport
// @Router /grading/pending [post]
func (h *GradingHandler) GradePending(c *gin.Context) {
	limit, ok := h.queryInt(c, "limit", defaultGradePendingLimit)
	if !ok {
		return
	}
	if limit <= 0 {
		h.respondError(c, http.StatusBadRequest, "bad_request", "limit must be positive", nil)
		return
	}

	h.LogRequest(c, "Grading pending attempts", "limit", limit)

	report, err := h.service.GradePending(c.Request.Context(), limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
