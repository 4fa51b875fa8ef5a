package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"copycontrol/internal/models"
	dbconfig "copycontrol/pkg/config"

	"github.com/gin-gonic/gin"
)

// RequeueReplicationRequest represents the request body for requeueing failed records
type RequeueReplicationRequest struct {
	MasterTradeID     string `json:"master_trade_id" binding:"required"`
	EventType         string `json:"event_type" binding:"required"`
	FollowerAccountID *uint  `json:"follower_account_id"`
}

// ListReplicationRecords returns paginated replication records with optional filters
func ListReplicationRecords(c *gin.Context) {
	page := 1
	if p := c.Query("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}
	pageSize := 20
	if ps := c.Query("page_size"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 && parsed <= 100 {
			pageSize = parsed
		}
	}

	query := dbconfig.DB.Model(&models.ReplicationRecord{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", strings.ToUpper(status))
	}
	if eventType := c.Query("event_type"); eventType != "" {
		query = query.Where("event_type = ?", strings.ToUpper(eventType))
	}
	if tradeID := c.Query("master_trade_id"); tradeID != "" {
		query = query.Where("master_trade_id = ?", tradeID)
	}
	if followerID := c.Query("follower_account_id"); followerID != "" {
		if parsed, err := strconv.Atoi(followerID); err == nil {
			query = query.Where("follower_account_id = ?", parsed)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	offset := (page - 1) * pageSize
	var records []models.ReplicationRecord
	if err := query.Order("id desc").
		Offset(offset).Limit(pageSize).Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	c.JSON(http.StatusOK, gin.H{
		"data": records,
		"pagination": gin.H{
			"current_page": page,
			"page_size":    pageSize,
			"total_pages":  totalPages,
			"total_count":  total,
			"has_next":     page < int(totalPages),
			"has_prev":     page > 1,
		},
	})
}

// GetReplicationRecord returns a specific replication record by ID
func GetReplicationRecord(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var record models.ReplicationRecord
	if err := dbconfig.DB.First(&record, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// RequeueReplicationRecords resets FAILED records back to PENDING so the
// recovery sweep picks them up again. Omitting follower_account_id
// requeues the whole event, including the event-level intent row.
func RequeueReplicationRecords(c *gin.Context) {
	var request RequeueReplicationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eventType := strings.ToUpper(request.EventType)
	query := dbconfig.DB.Model(&models.ReplicationRecord{}).
		Where("master_trade_id = ? AND event_type = ? AND status = ?",
			request.MasterTradeID, eventType, models.ReplicationFailed)
	if request.FollowerAccountID != nil {
		query = query.Where("follower_account_id = ?", *request.FollowerAccountID)
	}

	result := query.Updates(map[string]interface{}{
		"status":     models.ReplicationPending,
		"attempts":   0,
		"last_error": "",
	})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Failed records requeued",
		"master_trade_id": request.MasterTradeID,
		"event_type":      eventType,
		"rows_updated":    result.RowsAffected,
	})
}
