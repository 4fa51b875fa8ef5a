package routes

import (
	"copycontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupSystemConfigRoutes sets up system log and param routes
func SetupSystemConfigRoutes(r *gin.Engine) {
	logs := r.Group("/system-logs")
	{
		logs.GET("", handlers.ListSystemLogs)
		logs.GET("/:id", handlers.GetSystemLog)
	}

	params := r.Group("/system-params")
	{
		params.GET("/commission-cap", handlers.GetCommissionCap)
		params.PUT("/commission-cap", handlers.UpdateCommissionCap)
	}
}
