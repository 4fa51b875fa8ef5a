package routes

import (
	"copycontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupCommissionEntryRoutes sets up commission inspection routes
func SetupCommissionEntryRoutes(r *gin.Engine) {
	commissions := r.Group("/commissions")
	{
		commissions.GET("", handlers.ListCommissionEntries)
		commissions.GET("/:id", handlers.GetCommissionEntry)
		commissions.GET("/summary/:master_id", handlers.GetMasterCommissionSummary)
	}
}
