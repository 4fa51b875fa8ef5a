package routes

import (
	"copycontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupTradeRoutes sets up read-only trade inspection routes
func SetupTradeRoutes(r *gin.Engine) {
	trades := r.Group("/trades")
	{
		trades.GET("", handlers.ListTrades)
		trades.GET("/:id", handlers.GetTrade)
		trades.GET("/external/:external_id", handlers.GetTradeByExternalID)
		trades.GET("/external/:external_id/replicas", handlers.ListTradeReplicas)
	}
}
