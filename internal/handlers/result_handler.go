package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-grading-service/internal/repositories"
	"github.com/SAP-F-2025/quiz-grading-service/internal/services"
	"github.com/SAP-F-2025/quiz-grading-service/internal/utils"
)

type ResultHandler struct {
	BaseHandler
	resultService services.ResultService
	exportService services.ExportService
}

func NewResultHandler(resultService services.ResultService, exportService services.ExportService, logger utils.Logger) *ResultHandler {
	return &ResultHandler{
		BaseHandler:   NewBaseHandler(logger),
		resultService: resultService,
		exportService: exportService,
	}
}

// ListMyResults lists the results of the authenticated student
// @Summary List my results
// @Tags results
// @Produce json
// @Param passed query bool false "Filter by pass/fail"
// @Param limit query int false "Page size (default: 20, max: 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} services.ResultListResponse
// @Router /students/me/results [get]
func (h *ResultHandler) ListMyResults(c *gin.Context) {
	h.LogRequest(c, "Listing student results")

	studentID, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	filters, ok := h.parseResultFilters(c)
	if !ok {
		return
	}

	results, err := h.resultService.ListForStudent(c.Request.Context(), studentID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// ListTestResults lists the results of a test with its summary
// @Summary List test results
// @Tags results
// @Produce json
// @Param id path string true "Test ID"
// @Success 200 {object} services.TestResultsResponse
// @Failure 403 {object} ErrorResponse
// @Router /tests/{id}/results [get]
func (h *ResultHandler) ListTestResults(c *gin.Context) {
	testID := c.Param("id")
	h.LogRequest(c, "Listing test results", "test_id", testID)

	userID, role, ok := h.currentUser(c)
	if !ok {
		return
	}

	filters, ok := h.parseResultFilters(c)
	if !ok {
		return
	}

	results, err := h.resultService.ListForTest(c.Request.Context(), testID, userID, role, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}

// ExportTestResults downloads the results of a test as a workbook
// @Summary Export test results
// @Tags results
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Test ID"
// @Router /tests/{id}/results/export [get]
func (h *ResultHandler) ExportTestResults(c *gin.Context) {
	testID := c.Param("id")
	h.LogRequest(c, "Exporting test results", "test_id", testID)

	userID, role, ok := h.currentUser(c)
	if !ok {
		return
	}

	file, err := h.exportService.ExportTestResults(c.Request.Context(), testID, userID, role)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FileName))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func (h *ResultHandler) parseResultFilters(c *gin.Context) (repositories.ResultFilters, bool) {
	filters := repositories.ResultFilters{
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	var ok bool
	if filters.Limit, ok = h.queryInt(c, "limit", 0); !ok {
		return filters, false
	}
	if filters.Offset, ok = h.queryInt(c, "offset", 0); !ok {
		return filters, false
	}

	if raw := c.Query("passed"); raw != "" {
		passed, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(c, http.StatusBadRequest, "bad_request", "Invalid query parameter", gin.H{"passed": raw})
			return filters, false
		}
		filters.Passed = &passed
	}

	for name, target := range map[string]**time.Time{"date_from": &filters.DateFrom, "date_to": &filters.DateTo} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respondError(c, http.StatusBadRequest, "bad_request", "Invalid query parameter, expected RFC3339", gin.H{name: raw})
			return filters, false
		}
		*target = &t
	}

	return filters, true
}
