package routes

import (
	"copycontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupSymbolConfigRoutes sets up all routes related to symbol config management
func SetupSymbolConfigRoutes(r *gin.Engine) {
	symbols := r.Group("/symbol-config")
	{
		symbols.GET("", handlers.ListSymbolConfigs)
		symbols.GET("/:symbol", handlers.GetSymbolConfig)
		symbols.POST("", handlers.CreateSymbolConfig)
		symbols.PUT("/:id", handlers.UpdateSymbolConfig)
		symbols.DELETE("/:id", handlers.DeleteSymbolConfig)
	}
}
