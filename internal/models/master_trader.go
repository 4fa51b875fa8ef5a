package models

import (
	"time"
)

// MasterTraderStatus values for MasterTrader.Status
const (
	MasterTraderActive    = "active"
	MasterTraderSuspended = "suspended"
)

// MasterTrader is a trader whose trades are copyable by subscribers.
// TradingAccountID is immutable once the trader is active.
type MasterTrader struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	TradingAccountID uint      `gorm:"not null;uniqueIndex" json:"trading_account_id"`
	DisplayName      string    `gorm:"size:64;not null" json:"display_name"`
	Status           string    `gorm:"size:20;not null;default:'active'" json:"status"`
	ApprovedAt       time.Time `json:"approved_at"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (MasterTrader) TableName() string {
	return "master_trader"
}
