package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tmarkov/edumetrics-backend/internal/handlers"
)

type RouterConfig struct {
	JobsHandler      *handlers.JobsHandler
	AnalyticsHandler *handlers.AnalyticsHandler
	StudentsHandler  *handlers.StudentsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Jobs
		api.POST("/jobs", cfg.JobsHandler.EnqueueJob)
		api.GET("/jobs/stats", cfg.JobsHandler.GetJobStats)
		api.GET("/jobs/:id", cfg.JobsHandler.GetJobByID)

		// Institution analytics
		api.GET("/institutions/:id/report", cfg.AnalyticsHandler.GetLatestReport)
		api.GET("/institutions/:id/similar", cfg.AnalyticsHandler.GetSimilarInstitutions)
		api.GET("/institutions/:id/documents", cfg.AnalyticsHandler.GetAnalyticsDocuments)
		api.GET("/institutions/:id/students/:studentId/snapshot", cfg.StudentsHandler.GetStudentSnapshot)

		// Reports
		api.POST("/reports/:reportId/unpublish", cfg.AnalyticsHandler.UnpublishReport)

		// Market and insight
		api.GET("/market/latest", cfg.AnalyticsHandler.GetLatestMarketReport)
		api.POST("/analytics/ask", cfg.AnalyticsHandler.AskQuestion)
	}

	return router
}
