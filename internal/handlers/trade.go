package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"copycontrol/internal/models"
	dbconfig "copycontrol/pkg/config"

	"github.com/gin-gonic/gin"
)

// ListTrades returns paginated trades with optional filters
func ListTrades(c *gin.Context) {
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

	query := dbconfig.DB.Model(&models.Trade{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", strings.ToUpper(status))
	}
	if symbol := c.Query("symbol"); symbol != "" {
		query = query.Where("symbol = ?", strings.ToUpper(symbol))
	}
	if accountID := c.Query("trading_account_id"); accountID != "" {
		if parsed, err := strconv.Atoi(accountID); err == nil {
			query = query.Where("trading_account_id = ?", parsed)
		}
	}
	if origin := c.Query("origin_master_trade_id"); origin != "" {
		query = query.Where("origin_master_trade_id = ?", origin)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	offset := (page - 1) * pageSize
	var trades []models.Trade
	if err := query.Order("id desc").
		Offset(offset).Limit(pageSize).Find(&trades).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	c.JSON(http.StatusOK, gin.H{
		"data": trades,
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

// GetTrade returns a specific trade by ID
func GetTrade(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var trade models.Trade
	if err := dbconfig.DB.First(&trade, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, trade)
}

// GetTradeByExternalID returns a trade by its external id
func GetTradeByExternalID(c *gin.Context) {
	externalID := c.Param("external_id")
	if externalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "external_id is required"})
		return
	}

	var trade models.Trade
	if err := dbconfig.DB.Where("external_id = ?", externalID).First(&trade).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, trade)
}

// ListTradeReplicas returns the replica trades of a master trade
func ListTradeReplicas(c *gin.Context) {
	externalID := c.Param("external_id")
	if externalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "external_id is required"})
		return
	}

	var replicas []models.Trade
	if err := dbconfig.DB.
		Where("origin_master_trade_id = ?", externalID).
		Order("id asc").
		Find(&replicas).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, replicas)
}
