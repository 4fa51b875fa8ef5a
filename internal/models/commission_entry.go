package models

import (
	"time"
)

// CommissionEntry records the master's commission on a closed follower
// trade. An entry is written even when the follower trade lost (amount 0)
// so settlement stays auditable. The unique index makes settlement
// idempotent per follower trade.
type CommissionEntry struct {
	ID                   uint      `gorm:"primarykey" json:"id"`
	MasterTradeID        string    `gorm:"size:64;not null;uniqueIndex:idx_commission_key" json:"master_trade_id"`
	FollowerTradeID      uint      `gorm:"not null;uniqueIndex:idx_commission_key" json:"follower_trade_id"`
	MasterID             uint      `gorm:"not null;index" json:"master_id"`
	GrossFollowerProfit  float64   `gorm:"not null" json:"gross_follower_profit"`
	CommissionPctApplied float64   `gorm:"not null" json:"commission_pct_applied"`
	CommissionAmount     float64   `gorm:"not null" json:"commission_amount"`
	CreditedAt           time.Time `json:"credited_at" gorm:"autoCreateTime"`
}

func (CommissionEntry) TableName() string {
	return "commission_entry"
}
