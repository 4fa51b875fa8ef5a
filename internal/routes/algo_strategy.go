package routes

import (
	"copycontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupAlgoStrategyRoutes sets up all routes related to strategy management
func SetupAlgoStrategyRoutes(r *gin.Engine) {
	strategies := r.Group("/strategies")
	{
		strategies.GET("", handlers.ListAlgoStrategies)
		strategies.GET("/:id", handlers.GetAlgoStrategy)
		strategies.POST("", handlers.CreateAlgoStrategy)
		strategies.PUT("/:id", handlers.UpdateAlgoStrategy)
		strategies.DELETE("/:id", handlers.DeleteAlgoStrategy)
		strategies.POST("/toggle/:id", handlers.ToggleAlgoStrategy)

		// Master trader linkage
		strategies.GET("/:id/masters", handlers.ListStrategyMasterTraders)
		strategies.POST("/:id/masters", handlers.LinkStrategyMasterTrader)
		strategies.DELETE("/:id/masters/:master_id", handlers.UnlinkStrategyMasterTrader)
	}
}
