package handlers

import (
	"net/http"
	"strconv"

	"copycontrol/internal/models"
	dbconfig "copycontrol/pkg/config"

	"github.com/gin-gonic/gin"
)

// CopySubscriptionRequest represents the request body for creating a subscription
type CopySubscriptionRequest struct {
	FollowerAccountID  uint    `json:"follower_account_id" binding:"required"`
	MasterTraderID     uint    `json:"master_trader_id" binding:"required"`
	SizingMode         string  `json:"sizing_mode" binding:"required"`
	RiskRatio          float64 `json:"risk_ratio"`
	FixedLotSize       float64 `json:"fixed_lot_size"`
	CommissionSharePct float64 `json:"commission_share_pct"`
}

// UpdateCopySubscriptionRequest represents the request body for updating a subscription
type UpdateCopySubscriptionRequest struct {
	SizingMode         *string  `json:"sizing_mode"`
	RiskRatio          *float64 `json:"risk_ratio"`
	FixedLotSize       *float64 `json:"fixed_lot_size"`
	CommissionSharePct *float64 `json:"commission_share_pct"`
	IsActive           *bool    `json:"is_active"`
}

func validSizingMode(mode string) bool {
	switch mode {
	case models.SizingFixedRatio, models.SizingFixedLot, models.SizingCapitalProportional:
		return true
	}
	return false
}

// currentCommissionCap reads the global commission cap from system params.
// Returns 0 and false when the param is missing or out of range.
func currentCommissionCap() (float64, bool) {
	var param models.SystemParams
	if err := dbconfig.DB.
		Where("name = ?", models.ParamMaxCommissionPct).
		First(&param).Error; err != nil {
		return 0, false
	}
	raw, ok := param.ParamsConfig["value"]
	if !ok {
		return 0, false
	}
	value, ok := raw.(float64)
	if !ok || value <= 0 || value > 100 {
		return 0, false
	}
	return value, true
}

// ListCopySubscriptions returns subscriptions with optional filters
func ListCopySubscriptions(c *gin.Context) {
	query := dbconfig.DB.Model(&models.CopySubscription{})
	if masterID := c.Query("master_trader_id"); masterID != "" {
		if parsed, err := strconv.Atoi(masterID); err == nil {
			query = query.Where("master_trader_id = ?", parsed)
		}
	}
	if followerID := c.Query("follower_account_id"); followerID != "" {
		if parsed, err := strconv.Atoi(followerID); err == nil {
			query = query.Where("follower_account_id = ?", parsed)
		}
	}
	if isActive := c.Query("is_active"); isActive != "" {
		if parsed, err := strconv.ParseBool(isActive); err == nil {
			query = query.Where("is_active = ?", parsed)
		}
	}

	var subs []models.CopySubscription
	if err := query.Find(&subs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, subs)
}

// GetCopySubscription returns a specific subscription by ID
func GetCopySubscription(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var sub models.CopySubscription
	if err := dbconfig.DB.First(&sub, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

// CreateCopySubscription creates a new subscription after validating the
// sizing parameters and commission share against the global cap
func CreateCopySubscription(c *gin.Context) {
	var request CopySubscriptionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !validSizingMode(request.SizingMode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sizing_mode"})
		return
	}
	if request.SizingMode == models.SizingFixedLot {
		if request.FixedLotSize <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fixed_lot_size must be positive for fixed_lot mode"})
			return
		}
	} else if request.RiskRatio <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "risk_ratio must be positive"})
		return
	}
	if request.CommissionSharePct < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "commission_share_pct cannot be negative"})
		return
	}
	if capPct, ok := currentCommissionCap(); ok && request.CommissionSharePct > capPct {
		c.JSON(http.StatusBadRequest, gin.H{"error": "commission_share_pct exceeds the global cap"})
		return
	}

	var trader models.MasterTrader
	if err := dbconfig.DB.First(&trader, request.MasterTraderID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Master trader not found"})
		return
	}
	if trader.TradingAccountID == request.FollowerAccountID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A master trader cannot subscribe to itself"})
		return
	}

	sub := models.CopySubscription{
		FollowerAccountID:  request.FollowerAccountID,
		MasterTraderID:     request.MasterTraderID,
		SizingMode:         request.SizingMode,
		RiskRatio:          request.RiskRatio,
		FixedLotSize:       request.FixedLotSize,
		CommissionSharePct: request.CommissionSharePct,
		IsActive:           true,
	}

	if err := dbconfig.DB.Create(&sub).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// UpdateCopySubscription updates mutable subscription fields
func UpdateCopySubscription(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var request UpdateCopySubscriptionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var sub models.CopySubscription
	if err := dbconfig.DB.First(&sub, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	if request.SizingMode != nil {
		if !validSizingMode(*request.SizingMode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sizing_mode"})
			return
		}
		sub.SizingMode = *request.SizingMode
	}
	if request.RiskRatio != nil {
		if *request.RiskRatio <= 0 && sub.SizingMode != models.SizingFixedLot {
			c.JSON(http.StatusBadRequest, gin.H{"error": "risk_ratio must be positive"})
			return
		}
		sub.RiskRatio = *request.RiskRatio
	}
	if request.FixedLotSize != nil {
		if *request.FixedLotSize <= 0 && sub.SizingMode == models.SizingFixedLot {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fixed_lot_size must be positive for fixed_lot mode"})
			return
		}
		sub.FixedLotSize = *request.FixedLotSize
	}
	if request.CommissionSharePct != nil {
		if *request.CommissionSharePct < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "commission_share_pct cannot be negative"})
			return
		}
		if capPct, ok := currentCommissionCap(); ok && *request.CommissionSharePct > capPct {
			c.JSON(http.StatusBadRequest, gin.H{"error": "commission_share_pct exceeds the global cap"})
			return
		}
		sub.CommissionSharePct = *request.CommissionSharePct
	}
	if request.IsActive != nil {
		sub.IsActive = *request.IsActive
	}

	if err := dbconfig.DB.Save(&sub).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ToggleCopySubscription flips the active flag. Deactivating excludes the
// follower from future fan-outs without touching open replicas.
func ToggleCopySubscription(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	var sub models.CopySubscription
	if err := dbconfig.DB.First(&sub, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}

	sub.IsActive = !sub.IsActive
	if err := dbconfig.DB.Save(&sub).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        sub.ID,
		"is_active": sub.IsActive,
	})
}

// DeleteCopySubscription deletes a subscription
func DeleteCopySubscription(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return
	}

	if err := dbconfig.DB.Delete(&models.CopySubscription{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Record deleted successfully"})
}
