package handlers

import (
	"net/http"
	"strconv"
	"time"

	"copycontrol/internal/models"
	dbconfig "copycontrol/pkg/config"

	"github.com/gin-gonic/gin"
)

// MasterTraderRequest represents the request body for creating a master trader
type MasterTraderRequest struct {
	TradingAccountID uint   `json:"trading_account_id" binding:"required"`
	DisplayName      string `json:"display_name" binding:"required"`
}

// UpdateMasterTraderRequest represents the request body for updating a master trader
type UpdateMasterTraderRequest struct {
	DisplayName *string `json:"display_name"`
}

// ListMasterTraders returns all master traders with optional status filter
func ListMasterTraders(c *gin.Context) {
	query := dbconfig.DB.Model(&models.MasterTrader{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var traders []models.MasterTrader
	if err := query.Find(&traders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, traders)
}

// GetMasterTrader returns a specific master trader by ID
func GetMasterTrader(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var trader models.MasterTrader
	if err := dbconfig.DB.First(&trader, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, trader)
}

// CreateMasterTrader creates a new master trader in active status
func CreateMasterTrader(c *gin.Context) {
	var request MasterTraderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trader := models.MasterTrader{
		TradingAccountID: request.TradingAccountID,
		DisplayName:      request.DisplayName,
		Status:           models.MasterTraderActive,
		ApprovedAt:       time.Now().UTC(),
	}

	if err := dbconfig.DB.Create(&trader).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, trader)
}

// UpdateMasterTrader updates a master trader's display name. The trading
// account id is immutable after creation.
func UpdateMasterTrader(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var request UpdateMasterTraderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var trader models.MasterTrader
	if err := dbconfig.DB.First(&trader, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	if request.DisplayName != nil {
		trader.DisplayName = *request.DisplayName
	}

	if err := dbconfig.DB.Save(&trader).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trader)
}

// SuspendMasterTrader sets a master trader to suspended. New trade events
// for this trader are ignored until reactivated; open replicas still close.
func SuspendMasterTrader(c *gin.Context) {
	setMasterTraderStatus(c, models.MasterTraderSuspended)
}

// ActivateMasterTrader sets a master trader back to active
func ActivateMasterTrader(c *gin.Context) {
	setMasterTraderStatus(c, models.MasterTraderActive)
}

func setMasterTraderStatus(c *gin.Context, status string) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var trader models.MasterTrader
	if err := dbconfig.DB.First(&trader, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	trader.Status = status
	if err := dbconfig.DB.Save(&trader).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     trader.ID,
		"status": trader.Status,
	})
}

// DeleteMasterTrader deletes a master trader that has no active subscriptions
func DeleteMasterTrader(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var count int64
	if err := dbconfig.DB.Model(&models.CopySubscription{}).
		Where("master_trader_id = ? AND is_active = true", id).
		Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Master trader still has active subscriptions"})
		return
	}

	if err := dbconfig.DB.Delete(&models.MasterTrader{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Record deleted successfully"})
}
