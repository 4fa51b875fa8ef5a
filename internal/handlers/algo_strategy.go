package handlers

import (
	"net/http"
	"strconv"

	"copycontrol/internal/models"
	dbconfig "copycontrol/pkg/config"

	"github.com/gin-gonic/gin"
)

// AlgoStrategyRequest represents the request body for creating/updating a strategy
type AlgoStrategyRequest struct {
	Name               string `json:"name" binding:"required"`
	CopyTradingEnabled *bool  `json:"copy_trading_enabled"`
}

// StrategyMasterLinkRequest represents the request body for linking a master trader
type StrategyMasterLinkRequest struct {
	MasterTraderID uint `json:"master_trader_id" binding:"required"`
}

// ListAlgoStrategies returns all strategies
func ListAlgoStrategies(c *gin.Context) {
	var strategies []models.AlgoStrategy
	if err := dbconfig.DB.Find(&strategies).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, strategies)
}

// GetAlgoStrategy returns a specific strategy by ID
func GetAlgoStrategy(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var strategy models.AlgoStrategy
	if err := dbconfig.DB.First(&strategy, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, strategy)
}

// CreateAlgoStrategy creates a new strategy
func CreateAlgoStrategy(c *gin.Context) {
	var request AlgoStrategyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	strategy := models.AlgoStrategy{
		Name: request.Name,
	}
	if request.CopyTradingEnabled != nil {
		strategy.CopyTradingEnabled = *request.CopyTradingEnabled
	}

	if err := dbconfig.DB.Create(&strategy).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, strategy)
}

// UpdateAlgoStrategy updates an existing strategy
func UpdateAlgoStrategy(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var request AlgoStrategyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var strategy models.AlgoStrategy
	if err := dbconfig.DB.First(&strategy, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	strategy.Name = request.Name
	if request.CopyTradingEnabled != nil {
		strategy.CopyTradingEnabled = *request.CopyTradingEnabled
	}

	if err := dbconfig.DB.Save(&strategy).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, strategy)
}

// DeleteAlgoStrategy deletes a strategy and its master trader links
func DeleteAlgoStrategy(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	if err := dbconfig.DB.Where("strategy_id = ?", id).
		Delete(&models.StrategyMasterTrader{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := dbconfig.DB.Delete(&models.AlgoStrategy{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Record deleted successfully"})
}

// ToggleAlgoStrategy flips the copy trading enabled flag
func ToggleAlgoStrategy(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var strategy models.AlgoStrategy
	if err := dbconfig.DB.First(&strategy, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	strategy.CopyTradingEnabled = !strategy.CopyTradingEnabled
	if err := dbconfig.DB.Save(&strategy).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                   strategy.ID,
		"copy_trading_enabled": strategy.CopyTradingEnabled,
	})
}

// ListStrategyMasterTraders returns the master traders linked to a strategy
func ListStrategyMasterTraders(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var traders []models.MasterTrader
	if err := dbconfig.DB.
		Joins("JOIN strategy_master_trader ON strategy_master_trader.master_trader_id = master_trader.id").
		Where("strategy_master_trader.strategy_id = ?", id).
		Find(&traders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, traders)
}

// LinkStrategyMasterTrader links a master trader to a strategy
func LinkStrategyMasterTrader(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var request StrategyMasterLinkRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var strategy models.AlgoStrategy
	if err := dbconfig.DB.First(&strategy, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Strategy not found"})
		return
	}
	var trader models.MasterTrader
	if err := dbconfig.DB.First(&trader, request.MasterTraderID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Master trader not found"})
		return
	}

	link := models.StrategyMasterTrader{
		StrategyID:     strategy.ID,
		MasterTraderID: trader.ID,
	}
	if err := dbconfig.DB.Create(&link).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, link)
}

// UnlinkStrategyMasterTrader removes a master trader link from a strategy
func UnlinkStrategyMasterTrader(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}
	masterID, err := strconv.Atoi(c.Param("master_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid master_id format"})
		return
	}

	result := dbconfig.DB.
		Where("strategy_id = ? AND master_trader_id = ?", id, masterID).
		Delete(&models.StrategyMasterTrader{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Link removed successfully"})
}
