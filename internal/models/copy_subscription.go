package models

import (
	"time"
)

// Sizing modes for CopySubscription.SizingMode
const (
	SizingFixedRatio          = "fixed_ratio"
	SizingFixedLot            = "fixed_lot"
	SizingCapitalProportional = "capital_proportional"
)

// CopySubscription links a follower trading account to a master trader.
// RiskRatio must be > 0. CommissionSharePct is bounded by the global
// max_commission_percentage system param, re-checked at settlement time.
type CopySubscription struct {
	ID                 uint      `gorm:"primarykey" json:"id"`
	FollowerAccountID  uint      `gorm:"not null;uniqueIndex:idx_follower_master" json:"follower_account_id"`
	MasterTraderID     uint      `gorm:"not null;uniqueIndex:idx_follower_master;index" json:"master_trader_id"`
	SizingMode         string    `gorm:"size:32;not null;default:'fixed_ratio'" json:"sizing_mode"`
	RiskRatio          float64   `gorm:"not null;default:1" json:"risk_ratio"`
	FixedLotSize       float64   `gorm:"default:0" json:"fixed_lot_size"`
	CommissionSharePct float64   `gorm:"not null;default:0" json:"commission_share_pct"`
	IsActive           bool      `gorm:"default:true" json:"is_active"`
	SubscribedAt       time.Time `json:"subscribed_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (CopySubscription) TableName() string {
	return "copy_subscription"
}
