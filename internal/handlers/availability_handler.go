package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-grading-service/internal/services"
	"github.com/SAP-F-2025/quiz-grading-service/internal/utils"
)

type AvailabilityHandler struct {
	BaseHandler
	service services.AvailabilityService
}

func NewAvailabilityHandler(service services.AvailabilityService, logger utils.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// CheckAvailability reports whether the caller can start the test now
// @Summary Check test availability
// @Tags tests
// @Produce json
// @Param id path string true "Test ID"
// @Param access_code query string false "Access code"
// @Success 200 {object} services.Availability
// @Router /tests/{id}/availability [get]
func (h *AvailabilityHandler) CheckAvailability(c *gin.Context) {
	testID := c.Param("id")
	h.LogRequest(c, "Checking availability", "test_id", testID)

	studentID, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	var accessCode *string
	if code, exists := c.GetQuery("access_code"); exists {
		accessCode = &code
	}

	availability, err := h.service.Check(c.Request.Context(), testID, studentID, accessCode)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, availability)
}

// ListMyTests lists published tests with the caller's availability
// @Summary List my tests
// @Tags students
// @Produce json
// @Success 200 {array} services.Availability
// @Router /students/me/tests [get]
func (h *AvailabilityHandler) ListMyTests(c *gin.Context) {
	h.LogRequest(c, "Listing student tests")

	studentID, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	tests, err := h.service.ListForStudent(c.Request.Context(), studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tests": tests, "total": len(tests)})
}
