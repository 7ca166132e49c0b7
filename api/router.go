package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/klyp/klyp-go/api/handlers"
	"github.com/klyp/klyp-go/api/middleware"
	"github.com/klyp/klyp-go/internal/eventbus"
	"github.com/klyp/klyp-go/internal/history"
	"github.com/klyp/klyp-go/internal/queue"
	"github.com/klyp/klyp-go/internal/service"
	"github.com/klyp/klyp-go/internal/settings"
)

// Services bundles everything the router exposes
type Services struct {
	Store     *queue.Store
	Downloads *service.DownloadService
	Searches  *service.SearchService
	Settings  *settings.Store
	History   *history.Store
	Bus       *eventbus.Bus
}

// SetupRouter builds the HTTP router over the core services
func SetupRouter(services Services, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(services.Store, services.Downloads)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		queueHandler := handlers.NewQueueHandler(services.Store, services.Downloads, services.Settings, log)
		downloads := v1.Group("/downloads")
		{
			downloads.POST("", queueHandler.AddDownload)
			downloads.GET("", queueHandler.ListDownloads)
			downloads.DELETE("", queueHandler.ClearQueue)
			downloads.GET("/stats", queueHandler.GetStats)
			downloads.POST("/start-all", queueHandler.StartAll)
			downloads.POST("/stop-all", queueHandler.StopAll)
			downloads.GET("/:id", queueHandler.GetDownload)
			downloads.POST("/:id/start", queueHandler.StartDownload)
			downloads.POST("/:id/stop", queueHandler.StopDownload)
			downloads.DELETE("/:id", queueHandler.DeleteDownload)
		}

		settingsHandler := handlers.NewSettingsHandler(services.Settings)
		settingsGroup := v1.Group("/settings")
		{
			settingsGroup.GET("", settingsHandler.GetSettings)
			settingsGroup.PUT("", settingsHandler.UpdateSettings)
			settingsGroup.POST("/reset", settingsHandler.ResetSettings)
		}

		searchHandler := handlers.NewSearchHandler(services.Searches)
		v1.POST("/search", searchHandler.Search)

		historyHandler := handlers.NewHistoryHandler(services.History)
		historyGroup := v1.Group("/history")
		{
			historyGroup.GET("", historyHandler.ListHistory)
			historyGroup.GET("/stats", historyHandler.GetStats)
			historyGroup.DELETE("", historyHandler.ClearHistory)
			historyGroup.DELETE("/:id", historyHandler.DeleteEntry)
		}

		eventHandler := handlers.NewEventStreamHandler(services.Bus, log)
		v1.GET("/events", eventHandler.HandleWebSocket)
	}

	return router
}
