package handlers

import (
	"net/http"
	"strconv"

	"copycontrol/internal/models"
	dbconfig "copycontrol/pkg/config"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpdateCommissionCapRequest represents the request body for setting the global commission cap
type UpdateCommissionCapRequest struct {
	Value float64 `json:"value" binding:"required"`
}

// ListSystemLogs returns paginated system logs with optional filters
func ListSystemLogs(c *gin.Context) {
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

	query := dbconfig.DB.Model(&models.SystemLog{})
	if level := c.Query("level"); level != "" {
		query = query.Where("level = ?", level)
	}
	if module := c.Query("module"); module != "" {
		query = query.Where("module = ?", module)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	offset := (page - 1) * pageSize
	var logs []models.SystemLog
	if err := query.Order("id desc").
		Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	c.JSON(http.StatusOK, gin.H{
		"data": logs,
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

// GetSystemLog returns a specific system log by ID
func GetSystemLog(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var entry models.SystemLog
	if err := dbconfig.DB.First(&entry, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GetCommissionCap returns the global commission cap param
func GetCommissionCap(c *gin.Context) {
	var param models.SystemParams
	err := dbconfig.DB.
		Where("name = ?", models.ParamMaxCommissionPct).
		First(&param).Error
	if err == gorm.ErrRecordNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commission cap not configured"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":       param.Name,
		"value":      param.ParamsConfig["value"],
		"updated_at": param.UpdatedAt,
	})
}

// UpdateCommissionCap upserts the global commission cap. The new value
// applies to every settlement that happens after this call, including
// trades already open.
func UpdateCommissionCap(c *gin.Context) {
	var request UpdateCommissionCapRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if request.Value <= 0 || request.Value > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value must be in (0, 100]"})
		return
	}

	param := models.SystemParams{
		Name:         models.ParamMaxCommissionPct,
		IsActive:     true,
		ParamsConfig: models.JSONMap{"value": request.Value},
	}

	if err := dbconfig.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"params_config", "is_active", "updated_at"}),
	}).Create(&param).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":  models.ParamMaxCommissionPct,
		"value": request.Value,
	})
}
