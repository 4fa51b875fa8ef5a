package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"copycontrol/internal/models"
	dbconfig "copycontrol/pkg/config"

	"github.com/gin-gonic/gin"
)

// SymbolConfigRequest represents the request body for creating/updating a symbol config
type SymbolConfigRequest struct {
	Symbol       string  `json:"symbol" binding:"required"`
	MinIncrement float64 `json:"min_increment" binding:"required"`
	IsActive     *bool   `json:"is_active"`
}

// ListSymbolConfigs returns all symbol configs
func ListSymbolConfigs(c *gin.Context) {
	var configs []models.SymbolConfig
	if err := dbconfig.DB.Find(&configs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, configs)
}

// GetSymbolConfig returns a symbol config by symbol
func GetSymbolConfig(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	var config models.SymbolConfig
	if err := dbconfig.DB.Where("symbol = ?", symbol).First(&config).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, config)
}

// CreateSymbolConfig creates a new symbol config. Symbols are stored
// uppercase.
func CreateSymbolConfig(c *gin.Context) {
	var request SymbolConfigRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if request.MinIncrement <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "min_increment must be positive"})
		return
	}

	config := models.SymbolConfig{
		Symbol:       strings.ToUpper(request.Symbol),
		MinIncrement: request.MinIncrement,
		IsActive:     true,
	}
	if request.IsActive != nil {
		config.IsActive = *request.IsActive
	}

	if err := dbconfig.DB.Create(&config).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, config)
}

// UpdateSymbolConfig updates an existing symbol config by ID
func UpdateSymbolConfig(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var request SymbolConfigRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if request.MinIncrement <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "min_increment must be positive"})
		return
	}

	var config models.SymbolConfig
	if err := dbconfig.DB.First(&config, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	config.Symbol = strings.ToUpper(request.Symbol)
	config.MinIncrement = request.MinIncrement
	if request.IsActive != nil {
		config.IsActive = *request.IsActive
	}

	if err := dbconfig.DB.Save(&config).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, config)
}

// DeleteSymbolConfig deletes a symbol config
func DeleteSymbolConfig(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	if err := dbconfig.DB.Delete(&models.SymbolConfig{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Record deleted successfully"})
}
