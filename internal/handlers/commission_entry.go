package handlers

import (
	"net/http"
	"strconv"

	"copycontrol/internal/models"
	dbconfig "copycontrol/pkg/config"

	"github.com/gin-gonic/gin"
)

// ListCommissionEntries returns paginated commission entries with optional filters
func ListCommissionEntries(c *gin.Context) {
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

	query := dbconfig.DB.Model(&models.CommissionEntry{})
	if masterID := c.Query("master_id"); masterID != "" {
		if parsed, err := strconv.Atoi(masterID); err == nil {
			query = query.Where("master_id = ?", parsed)
		}
	}
	if tradeID := c.Query("master_trade_id"); tradeID != "" {
		query = query.Where("master_trade_id = ?", tradeID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	offset := (page - 1) * pageSize
	var entries []models.CommissionEntry
	if err := query.Order("id desc").
		Offset(offset).Limit(pageSize).Find(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	c.JSON(http.StatusOK, gin.H{
		"data": entries,
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

// GetCommissionEntry returns a specific commission entry by ID
func GetCommissionEntry(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var entry models.CommissionEntry
	if err := dbconfig.DB.First(&entry, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GetMasterCommissionSummary returns totals per master trader
func GetMasterCommissionSummary(c *gin.Context) {
	masterID, err := strconv.Atoi(c.Param("master_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid master_id format"})
		return
	}

	type summary struct {
		EntryCount  int64   `json:"entry_count"`
		TotalGross  float64 `json:"total_gross"`
		TotalAmount float64 `json:"total_amount"`
	}

	var result summary
	if err := dbconfig.DB.Model(&models.CommissionEntry{}).
		Where("master_id = ?", masterID).
		Select("COUNT(*) as entry_count, COALESCE(SUM(gross_follower_profit), 0) as total_gross, COALESCE(SUM(commission_amount), 0) as total_amount").
		Scan(&result).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"master_id":    masterID,
		"entry_count":  result.EntryCount,
		"total_gross":  result.TotalGross,
		"total_amount": result.TotalAmount,
	})
}
