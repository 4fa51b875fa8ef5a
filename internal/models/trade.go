package models

import (
	"time"
)

// Trade status values
const (
	TradeOpen   = "OPEN"
	TradeClosed = "CLOSED"
)

// Trade sides
const (
	SideLong  = "long"
	SideShort = "short"
)

// Trade is a position. Master trades are written by the execution
// subsystem and identified by ExternalID; replicas are created by the
// replication coordinator with OriginMasterTradeID pointing at the master
// trade's external id. SizingRatio is the follower/master quantity ratio
// persisted at open time and reused for MODIFY adjustments.
type Trade struct {
	ID                  uint       `gorm:"primarykey" json:"id"`
	ExternalID          string     `gorm:"size:64;uniqueIndex" json:"external_id"`
	TradingAccountID    uint       `gorm:"not null;index" json:"trading_account_id"`
	Symbol              string     `gorm:"size:32;not null" json:"symbol"`
	Side                string     `gorm:"size:10;not null" json:"side"`
	Quantity            float64    `gorm:"not null" json:"quantity"`
	OpenPrice           float64    `gorm:"not null" json:"open_price"`
	ClosePrice          *float64   `json:"close_price,omitempty"`
	Status              string     `gorm:"size:10;not null;default:'OPEN';index" json:"status"`
	OriginMasterTradeID *string    `gorm:"size:64;index" json:"origin_master_trade_id,omitempty"`
	SizingRatio         float64    `gorm:"default:0" json:"sizing_ratio"`
	OpenedAt            time.Time  `json:"opened_at"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt           time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Trade) TableName() string {
	return "trade"
}

// DirectionSign returns +1 for long trades and -1 for short trades.
func (t *Trade) DirectionSign() float64 {
	if t.Side == SideShort {
		return -1
	}
	return 1
}
