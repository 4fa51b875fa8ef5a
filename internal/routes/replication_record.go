package routes

import (
	"copycontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupReplicationRecordRoutes sets up routes for the consistency ledger
func SetupReplicationRecordRoutes(r *gin.Engine) {
	records := r.Group("/replication-records")
	{
		records.GET("", handlers.ListReplicationRecords)
		records.GET("/:id", handlers.GetReplicationRecord)
		records.POST("/requeue", handlers.RequeueReplicationRecords)
	}
}
