package router

import (
	"net/http"

	"github.com/cuongbtq/report-export/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "report-export-api",
		})
	})

	exportHandler := handler.NewExportHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		exports := v1.Group("/exports")
		{
			// POST /api/v1/exports - Request an export
			exports.POST("", exportHandler.CreateExport)

			// POST /api/v1/exports/test - Publish a smoke-test message
			exports.POST("/test", exportHandler.PublishTest)

			// GET /api/v1/exports/files - List artifacts
			exports.GET("/files", exportHandler.ListArtifacts)

			// GET /api/v1/exports/files/:name - Download an artifact
			exports.GET("/files/:name", exportHandler.DownloadArtifact)

			// GET /api/v1/exports/:job_id - Get job status
			exports.GET("/:job_id", exportHandler.GetExportStatus)
		}
	}

	return r
}
