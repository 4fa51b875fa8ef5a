package routes

import (
	"copycontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupMasterTraderRoutes sets up all routes related to master trader management
func SetupMasterTraderRoutes(r *gin.Engine) {
	traders := r.Group("/master-traders")
	{
		traders.GET("", handlers.ListMasterTraders)
		traders.GET("/:id", handlers.GetMasterTrader)
		traders.POST("", handlers.CreateMasterTrader)
		traders.PUT("/:id", handlers.UpdateMasterTrader)
		traders.DELETE("/:id", handlers.DeleteMasterTrader)

		traders.POST("/:id/suspend", handlers.SuspendMasterTrader)
		traders.POST("/:id/activate", handlers.ActivateMasterTrader)
	}
}
