package routes

import (
	"copycontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupCopySubscriptionRoutes sets up all routes related to subscription management
func SetupCopySubscriptionRoutes(r *gin.Engine) {
	subs := r.Group("/subscriptions")
	{
		subs.GET("", handlers.ListCopySubscriptions)
		subs.GET("/:id", handlers.GetCopySubscription)
		subs.POST("", handlers.CreateCopySubscription)
		subs.PUT("/:id", handlers.UpdateCopySubscription)
		subs.DELETE("/:id", handlers.DeleteCopySubscription)
		subs.POST("/toggle/:id", handlers.ToggleCopySubscription)
	}
}
