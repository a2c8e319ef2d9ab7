package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/quiz-grading-service/internal/models"
	"github.com/SAP-F-2025/quiz-grading-service/internal/services"
	"github.com/SAP-F-2025/quiz-grading-service/internal/utils"
)

type HandlerManager struct {
	availabilityHandler *AvailabilityHandler
	attemptHandler      *AttemptHandler
	resultHandler       *ResultHandler
	gradingHandler      *GradingHandler
	healthHandler       *HealthHandler
	authMiddleware      *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	authMiddleware *CasdoorAuthMiddleware,
) *HandlerManager {
	return &HandlerManager{
		availabilityHandler: NewAvailabilityHandler(serviceManager.Availability(), logger),
		attemptHandler:      NewAttemptHandler(serviceManager.Attempt(), serviceManager.Result(), logger),
		resultHandler:       NewResultHandler(serviceManager.Result(), serviceManager.Export(), logger),
		gradingHandler:      NewGradingHandler(serviceManager.Grading(), logger),
		healthHandler:       NewHealthHandler(serviceManager),
		authMiddleware:      authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.healthHandler.Health)

	instructors := hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		tests := v1.Group("/tests")
		{
			tests.GET("/:id/availability", hm.availabilityHandler.CheckAvailability)
			tests.GET("/:id/results", instructors, hm.resultHandler.ListTestResults)
			tests.GET("/:id/results/export", instructors, hm.resultHandler.ExportTestResults)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.PATCH("/:id", hm.attemptHandler.UpdateAttempt)
			attempts.PUT("/:id/answers", hm.attemptHandler.SaveAllAnswers)
			attempts.PUT("/:id/answers/:slot", hm.attemptHandler.SaveAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.POST("/:id/expire", hm.attemptHandler.ExpireAttempt)
			attempts.GET("/:id/time-remaining", hm.attemptHandler.GetTimeRemaining)
			attempts.GET("/:id/result", hm.attemptHandler.GetAttemptResult)
		}

		students := v1.Group("/students/me")
		{
			students.GET("/tests", hm.availabilityHandler.ListMyTests)
			students.GET("/results", hm.resultHandler.ListMyResults)
		}

		grading := v1.Group("/grading")
		{
			grading.POST("/attempts/:id", instructors, hm.gradingHandler.GradeAttempt)
			grading.POST("/pending", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.gradingHandler.GradePending)
		}
	}
}
