package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-grading-service/internal/services"
	"github.com/SAP-F-2025/quiz-grading-service/internal/utils"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	resultService  services.ResultService
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	resultService services.ResultService,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		resultService:  resultService,
	}
}

// StartAttempt starts a new attempt for the authenticated student
// @Summary Start attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param attempt body services.StartAttemptRequest true "Start attempt data"
// @Success 201 {object} services.AttemptResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	h.LogRequest(c, "Starting attempt")

	studentID, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.StartAttemptRequest
	if !h.bindJSON(c, &req) {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, attempt)
}

// GetAttempt returns an attempt owned by the caller
// @Summary Get attempt
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	attemptID := c.Param("id")
	h.LogRequest(c, "Getting attempt", "attempt_id", attemptID)

	studentID, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Get(c.Request.Context(), attemptID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// UpdateAttempt applies a partial update to an in-progress attempt
// @Summary Update attempt progress
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param attempt body services.UpdateAttemptRequest true "Progress"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id} [patch]
func (h *AttemptHandler) UpdateAttempt(c *gin.Context) {
	attemptID := c.Param("id")
	h.LogRequest(c, "Updating attempt", "attempt_id", attemptID)

	studentID, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.UpdateAttemptRequest
	if !h.bindJSON(c, &req) {
		return
	}

	attempt, err := h.attemptService.Update(c.Request.Context(), attemptID, studentID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SaveAnswer saves the answer of one question slot
// @Summary Save one answer
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param slot path string true "Slot key, question_{n}"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id}/answers/{slot} [put]
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	attemptID := c.Param("id")
	slot := c.Param("slot")
	h.LogRequest(c, "Saving answer", "attempt_id", attemptID, "slot", slot)

	studentID, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.SaveAnswerRequest
	if !h.bindJSON(c, &req) {
		return
	}

	attempt, err := h.attemptService.SaveAnswer(c.Request.Context(), attemptID, studentID, slot, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SaveAllAnswers saves several answers at once
// @Summary Save answers
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id}/answers [put]
func (h *AttemptHandler) SaveAllAnswers(c *gin.Context) {
	attemptID := c.Param("id")
	h.LogRequest(c, "Saving answers", "attempt_id", attemptID)

	studentID, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.SaveAllAnswersRequest
	if !h.bindJSON(c, &req) {
		return
	}

	attempt, err := h.attemptService.SaveAllAnswers(c.Request.Context(), attemptID, studentID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SubmitAttempt submits the attempt and grades it. The body is optional.
// @Summary Submit attempt
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.SubmissionResponse
// @Success 202 {object} services.SubmissionResponse "Submitted, grading pending"
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	attemptID := c.Param("id")
	h.LogRequest(c, "Submitting attempt", "attempt_id", attemptID)

	studentID, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.SubmitAttemptRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}

	submission, err := h.attemptService.Submit(c.Request.Context(), attemptID, studentID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(submissionStatus(submission), submission)
}

// ExpireAttempt ends a timed attempt whose client timer reached zero
// @Summary Expire attempt
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.SubmissionResponse
// @Success 202 {object} services.SubmissionResponse "Expired, grading pending"
// @Router /attempts/{id}/expire [post]
func (h *AttemptHandler) ExpireAttempt(c *gin.Context) {
	attemptID := c.Param("id")
	h.LogRequest(c, "Expiring attempt", "attempt_id", attemptID)

	studentID, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	submission, err := h.attemptService.ExpireForStudent(c.Request.Context(), attemptID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(submissionStatus(submission), submission)
}

// GetTimeRemaining reports the time left on an attempt
// @Summary Time remaining
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.TimeRemainingResponse
// @Router /attempts/{id}/time-remaining [get]
func (h *AttemptHandler) GetTimeRemaining(c *gin.Context) {
	attemptID := c.Param("id")

	studentID, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	remaining, err := h.attemptService.TimeRemaining(c.Request.Context(), attemptID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, remaining)
}

// GetAttemptResult returns the result of a submitted attempt, or its
// pending grading status
// @Summary Attempt result
// @Tags attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} services.ResultResponse
// @Success 202 {object} services.ResultResponse "Grading pending"
// @Router /attempts/{id}/result [get]
func (h *AttemptHandler) GetAttemptResult(c *gin.Context) {
	attemptID := c.Param("id")
	h.LogRequest(c, "Getting attempt result", "attempt_id", attemptID)

	studentID, _, ok := h.currentUser(c)
	if !ok {
		return
	}

	result, err := h.resultService.GetResult(c.Request.Context(), attemptID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusOK
	if result.GradingStatus == services.GradingPending {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

func submissionStatus(s *services.SubmissionResponse) int {
	if s.GradingStatus == services.GradingPending {
		return http.StatusAccepted
	}
	return http.StatusOK
}
