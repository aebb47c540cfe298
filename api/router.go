package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourusername/trackfetch-go/api/handlers"
	"github.com/yourusername/trackfetch-go/api/middleware"
	"github.com/yourusername/trackfetch-go/internal/app"
	"github.com/yourusername/trackfetch-go/internal/domain"
	"github.com/yourusername/trackfetch-go/pkg/logger"
)

// RouterConfig carries the collaborators the HTTP API serves
type RouterConfig struct {
	QueueManager *app.QueueManager
	Blocklist    domain.BlockListRepository
	Events       *handlers.JobEventHub
	Upstream     handlers.Pinger // optional slskd reachability check
	LogAdapter   *logger.LoggerAdapter
	LogsDir      string
	MetricsPath  string // empty disables /metrics
}

// SetupRouter sets up the HTTP router
func SetupRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	general := config.LogAdapter.General()

	// Middleware
	router.Use(middleware.Logger(config.LogAdapter))
	router.Use(middleware.Recovery(config.LogAdapter))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(config.QueueManager, config.Upstream)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	if config.MetricsPath != "" {
		router.GET(config.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		jobHandler := handlers.NewJobHandler(config.QueueManager, general)
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.RequestTrack)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/stats", jobHandler.GetStats)
			jobs.GET("/health", jobHandler.GetHealth)
			jobs.GET("/history", jobHandler.GetHistory)
			jobs.POST("/cancel-all", jobHandler.CancelAll)
			jobs.POST("/resume", jobHandler.Resume)
			if config.Events != nil {
				jobs.GET("/events", config.Events.HandleWebSocket)
			}
			jobs.GET("/:id", jobHandler.GetJob)
			jobs.POST("/:id/cancel", jobHandler.CancelJob)
			jobs.DELETE("/:id", jobHandler.DeleteJob)
		}

		searchHandler := handlers.NewSearchHandler(config.QueueManager, general)
		v1.POST("/search", searchHandler.Search)

		if config.Blocklist != nil {
			blocklistHandler := handlers.NewBlocklistHandler(config.Blocklist, general)
			blocklist := v1.Group("/blocklist")
			{
				blocklist.GET("", blocklistHandler.List)
				blocklist.POST("", blocklistHandler.Block)
				blocklist.DELETE("/:peer", blocklistHandler.Unblock)
			}
		}

		// Log endpoints
		logHandler := handlers.NewLogHandler(config.LogsDir)
		logStream := handlers.NewLogWebSocketHandler(config.LogsDir, general)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
			logs.GET("/:category/stream", logStream.HandleWebSocket)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
